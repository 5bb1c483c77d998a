package models

import (
	"context"
	"time"
)

type AlertChannel string

const (
	AlertChannelTelegram AlertChannel = "telegram"
	AlertChannelEmail    AlertChannel = "email"
)

// AlertRecipient is a destination for operator alerts.
type AlertRecipient struct {
	// ID is the unique identifier for the recipient.
	ID int64 `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	// Channel is the delivery channel.
	Channel AlertChannel `json:"channel" gorm:"column:channel;not null;uniqueIndex:idx_alert_destination"`
	// Address is the telegram chat ID or the email address.
	Address string `json:"address" gorm:"column:address;not null;uniqueIndex:idx_alert_destination"`
	// Username is the telegram username that subscribed, if any.
	Username string `json:"username" gorm:"column:username"`
	// CreatedAt is the date when the recipient subscribed.
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at;autoCreateTime"`
}

func (AlertRecipient) TableName() string {
	return "alert_recipients"
}

// Alert is a short operator-facing message.
type Alert struct {
	Subject string
	Body    string
}

// NotificationService delivers alerts to every configured recipient.
type NotificationService interface {
	SendAlert(ctx context.Context, alert Alert)
}
