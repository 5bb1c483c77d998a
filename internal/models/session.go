package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LoginSession records a successful login and its liveness.
type LoginSession struct {
	ID string `json:"id" gorm:"column:id;primaryKey;type:uuid"`
	// SessionID is the public reference handed to the client guard.
	SessionID   string   `json:"session_id" gorm:"column:session_id;not null;uniqueIndex"`
	IPAddress   *string  `json:"ip_address" gorm:"column:ip_address;index"`
	UserAgent   *string  `json:"user_agent" gorm:"column:user_agent"`
	DeviceType  *string  `json:"device_type" gorm:"column:device_type"`
	BrowserName *string  `json:"browser_name" gorm:"column:browser_name"`
	OSName      *string  `json:"os_name" gorm:"column:os_name"`
	Country     *string  `json:"country" gorm:"column:country"`
	City        *string  `json:"city" gorm:"column:city"`
	Latitude    *float64 `json:"latitude" gorm:"column:latitude"`
	Longitude   *float64 `json:"longitude" gorm:"column:longitude"`

	LoginTime    time.Time `json:"login_time" gorm:"column:login_time;not null;index"`
	LastActivity time.Time `json:"last_activity" gorm:"column:last_activity;not null;index"`
	IsActive     bool      `json:"is_active" gorm:"column:is_active;not null;default:true;index"`

	CreatedAt time.Time `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

func (LoginSession) TableName() string {
	return "login_sessions"
}

func (s *LoginSession) BeforeCreate(*gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.SessionID == "" {
		s.SessionID = uuid.NewString()
	}
	return nil
}

// BannedIP blocks a client address. Unbanning keeps the row with IsActive
// false.
type BannedIP struct {
	ID        string    `json:"id" gorm:"column:id;primaryKey;type:uuid"`
	IPAddress string    `json:"ip_address" gorm:"column:ip_address;not null;uniqueIndex"`
	Reason    *string   `json:"reason" gorm:"column:reason"`
	BannedBy  *string   `json:"banned_by" gorm:"column:banned_by"`
	BannedAt  time.Time `json:"banned_at" gorm:"column:banned_at;not null"`
	IsActive  bool      `json:"is_active" gorm:"column:is_active;not null;default:true"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

func (BannedIP) TableName() string {
	return "banned_ips"
}

func (b *BannedIP) BeforeCreate(*gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}
