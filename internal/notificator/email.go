package notificator

import (
	"context"
	"fmt"
	"net/smtp"
	"strconv"

	"github.com/campaigndesk/campaigndesk/internal/models"
	"github.com/campaigndesk/campaigndesk/pkg/logger"
)

type EmailNotificator struct {
	logger *logger.Logger

	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPSender   string

	SMTPAuth smtp.Auth

	// alertEmail is the configured operator address, if any.
	alertEmail string
	db         RecipientStore

	// sendMail is smtp.SendMail, replaced in tests.
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewEmailNotificator(logger *logger.Logger, SMTPHost string, SMTPPort int, SMTPUser, SMTPPassword, SMTPSender, alertEmail string, db RecipientStore) *EmailNotificator {
	var auth smtp.Auth
	if SMTPUser != "" {
		auth = smtp.PlainAuth("", SMTPUser, SMTPPassword, SMTPHost)
	}

	return &EmailNotificator{
		logger:       logger.Named("email"),
		SMTPAuth:     auth,
		SMTPHost:     SMTPHost,
		SMTPPort:     SMTPPort,
		SMTPUser:     SMTPUser,
		SMTPPassword: SMTPPassword,
		SMTPSender:   SMTPSender,
		alertEmail:   alertEmail,
		db:           db,
		sendMail:     smtp.SendMail,
	}
}

func (e *EmailNotificator) Name() models.AlertChannel {
	return models.AlertChannelEmail
}

func (e *EmailNotificator) Recipients(ctx context.Context) ([]string, error) {
	var to []string
	if e.alertEmail != "" {
		to = append(to, e.alertEmail)
	}
	stored, err := e.db.ListAlertRecipients(ctx, models.AlertChannelEmail)
	if err != nil {
		return to, err
	}
	for _, r := range stored {
		if r.Address != e.alertEmail {
			to = append(to, r.Address)
		}
	}
	return to, nil
}

// Send delivers alert to one address. net/smtp has no context support, so
// ctx is only checked before dialing.
func (e *EmailNotificator) Send(ctx context.Context, to string, alert models.Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	addr := e.SMTPHost + ":" + strconv.Itoa(e.SMTPPort)
	msg := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s\r\n",
		e.SMTPSender,
		to,
		alert.Subject,
		alert.Body,
	)
	if err := e.sendMail(addr, e.SMTPAuth, e.SMTPSender, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}
