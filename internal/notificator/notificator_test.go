package notificator

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/campaigndesk/campaigndesk/internal/guard"
	"github.com/campaigndesk/campaigndesk/internal/models"
	"github.com/campaigndesk/campaigndesk/pkg/logger"
)

type sent struct {
	to    string
	alert models.Alert
}

type fakeChannel struct {
	name       models.AlertChannel
	recipients []string
	listErr    error
	panicOn    string

	mu   sync.Mutex
	sent []sent
}

func (f *fakeChannel) Name() models.AlertChannel { return f.name }

func (f *fakeChannel) Recipients(context.Context) ([]string, error) {
	return f.recipients, f.listErr
}

func (f *fakeChannel) Send(_ context.Context, to string, alert models.Alert) error {
	if to == f.panicOn {
		panic("send exploded")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{to: to, alert: alert})
	return nil
}

type memoryRecipients struct {
	stored []*models.AlertRecipient
	err    error
}

func (m *memoryRecipients) AddAlertRecipient(_ context.Context, r *models.AlertRecipient) error {
	m.stored = append(m.stored, r)
	return m.err
}

func (m *memoryRecipients) ListAlertRecipients(_ context.Context, ch models.AlertChannel) ([]*models.AlertRecipient, error) {
	var out []*models.AlertRecipient
	for _, r := range m.stored {
		if r.Channel == ch {
			out = append(out, r)
		}
	}
	return out, m.err
}

func TestNotificatorDeliversToEveryChannel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	tg := &fakeChannel{name: models.AlertChannelTelegram, recipients: []string{"100", "200"}}
	mail := &fakeChannel{name: models.AlertChannelEmail, recipients: []string{"ops@example.com"}}
	n := NewNotificator(logger.NewNop(), tg, mail)

	lat, lon := 18.5, 73.8
	n.LoginGranted(guard.RoleAdmin, guard.DeviceInfo{
		IPAddress: "203.0.113.5", City: "Pune", Country: "India",
		BrowserName: "Firefox", OSName: "Linux", Latitude: &lat, Longitude: &lon,
	})
	n.LoginDenied(guard.DeviceInfo{}, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))
	n.LoginRejectedLocked()
	n.Heartbeat(errors.New("ignored"))
	n.Close()

	require.Len(t, tg.sent, 4)
	require.Len(t, mail.sent, 2)
	assert.Equal(t, "Console login (admin)", tg.sent[0].alert.Subject)
	assert.Equal(t, "Logged in as admin from 203.0.113.5 (Pune, India) using Firefox on Linux.", tg.sent[0].alert.Body)
	assert.Contains(t, mail.sent[1].alert.Body, "an unknown address")
	assert.Contains(t, mail.sent[1].alert.Body, "Wed, 01 May 2024 10:00:00 UTC")

	// Alerts after close are dropped.
	n.SendAlert(context.Background(), models.Alert{Subject: "late"})
}

func TestNotificatorSurvivesChannelFailures(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	broken := &fakeChannel{name: models.AlertChannelTelegram, listErr: errors.New("db down")}
	panicky := &fakeChannel{name: models.AlertChannelTelegram, recipients: []string{"boom", "ok"}, panicOn: "boom"}
	mail := &fakeChannel{name: models.AlertChannelEmail, recipients: []string{"ops@example.com"}}
	n := NewNotificator(logger.NewNop(), broken, panicky, mail)

	n.SendAlert(context.Background(), models.Alert{Subject: "s", Body: "b"})
	n.Close()

	assert.Empty(t, panicky.sent)
	assert.Len(t, mail.sent, 1)
}

func TestEmailNotificator(t *testing.T) {
	store := &memoryRecipients{stored: []*models.AlertRecipient{
		{Channel: models.AlertChannelEmail, Address: "ops@example.com"},
		{Channel: models.AlertChannelEmail, Address: "second@example.com"},
		{Channel: models.AlertChannelTelegram, Address: "42"},
	}}
	e := NewEmailNotificator(logger.NewNop(), "smtp.example.com", 587, "user", "pass", "alerts@example.com", "ops@example.com", store)

	to, err := e.Recipients(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"ops@example.com", "second@example.com"}, to)

	var gotAddr string
	var gotMsg []byte
	e.sendMail = func(addr string, _ smtp.Auth, from string, rcpt []string, msg []byte) error {
		gotAddr = addr
		gotMsg = msg
		assert.Equal(t, "alerts@example.com", from)
		assert.Equal(t, []string{"ops@example.com"}, rcpt)
		return nil
	}
	require.NoError(t, e.Send(context.Background(), "ops@example.com", models.Alert{Subject: "Console login locked", Body: "details"}))
	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.True(t, strings.HasPrefix(string(gotMsg), "From: alerts@example.com\r\nTo: ops@example.com\r\nSubject: Console login locked\r\n"))

	e.sendMail = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("421 try later") }
	assert.ErrorContains(t, e.Send(context.Background(), "ops@example.com", models.Alert{}), "421")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, e.Send(ctx, "ops@example.com", models.Alert{}), context.Canceled)
}
