package notificator

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/campaigndesk/campaigndesk/internal/guard"
	"github.com/campaigndesk/campaigndesk/internal/models"
	"github.com/campaigndesk/campaigndesk/pkg/logger"
)

const (
	queueSize   = 64
	sendTimeout = 15 * time.Second
)

// RecipientStore persists alert destinations.
type RecipientStore interface {
	AddAlertRecipient(ctx context.Context, recipient *models.AlertRecipient) error
	ListAlertRecipients(ctx context.Context, channel models.AlertChannel) ([]*models.AlertRecipient, error)
}

// Channel is one delivery mechanism.
type Channel interface {
	Name() models.AlertChannel
	Recipients(ctx context.Context) ([]string, error)
	Send(ctx context.Context, to string, alert models.Alert) error
}

// Notificator delivers alerts on a background worker so that callers on the
// login path never wait for Telegram or SMTP.
type Notificator struct {
	logger   *logger.Logger
	channels []Channel

	queue     chan models.Alert
	wg        sync.WaitGroup
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

var (
	_ models.NotificationService = (*Notificator)(nil)
	_ guard.Observer             = (*Notificator)(nil)
)

func NewNotificator(logger *logger.Logger, channels ...Channel) *Notificator {
	n := &Notificator{
		logger:   logger.Named("notificator"),
		channels: channels,
		queue:    make(chan models.Alert, queueSize),
	}
	n.wg.Add(1)
	go n.run()
	return n
}

// safeCall runs a function with panic recovery (synchronous, no goroutine spawning)
func (n *Notificator) safeCall(fn func(), context string) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("Function panicked",
				"context", context,
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	fn()
}

// SendAlert queues alert for delivery. A full queue drops the alert.
func (n *Notificator) SendAlert(_ context.Context, alert models.Alert) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed || len(n.channels) == 0 {
		return
	}
	select {
	case n.queue <- alert:
	default:
		n.logger.Warn("Alert queue full, dropping alert", "subject", alert.Subject)
	}
}

func (n *Notificator) run() {
	defer n.wg.Done()
	for alert := range n.queue {
		n.deliver(alert)
	}
}

func (n *Notificator) deliver(alert models.Alert) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	for _, ch := range n.channels {
		ch := ch
		n.safeCall(func() {
			recipients, err := ch.Recipients(ctx)
			if err != nil {
				n.logger.Error("Failed to list alert recipients", "channel", ch.Name(), "error", err)
				return
			}
			for _, to := range recipients {
				if err := ch.Send(ctx, to, alert); err != nil {
					n.logger.Error("Failed to send alert", "channel", ch.Name(), "to", to, "error", err)
				}
			}
		}, string(ch.Name())+"Alert")
	}
}

// Close delivers queued alerts and stops the worker.
func (n *Notificator) Close() {
	n.closeOnce.Do(func() {
		n.mu.Lock()
		n.closed = true
		close(n.queue)
		n.mu.Unlock()
		n.wg.Wait()
	})
}

func (n *Notificator) LoginGranted(role guard.Role, device guard.DeviceInfo) {
	n.SendAlert(context.Background(), models.Alert{
		Subject: fmt.Sprintf("Console login (%s)", role),
		Body:    fmt.Sprintf("Logged in as %s from %s.", role, describe(device)),
	})
}

func (n *Notificator) LoginDenied(device guard.DeviceInfo, unlockAt time.Time) {
	n.SendAlert(context.Background(), models.Alert{
		Subject: "Console login locked",
		Body: fmt.Sprintf("Wrong secret entered from %s. Logins are locked for that client until %s.",
			describe(device), unlockAt.UTC().Format(time.RFC1123)),
	})
}

func (n *Notificator) LoginRejectedLocked() {}

func (n *Notificator) Heartbeat(error) {}

func describe(d guard.DeviceInfo) string {
	var parts []string
	if d.IPAddress != "" {
		parts = append(parts, d.IPAddress)
	} else {
		parts = append(parts, "an unknown address")
	}
	if place := join(", ", d.City, d.Country); place != "" {
		parts = append(parts, "("+place+")")
	}
	if agent := join(" on ", d.BrowserName, d.OSName); agent != "" {
		parts = append(parts, "using "+agent)
	}
	return strings.Join(parts, " ")
}

func join(sep string, values ...string) string {
	var out []string
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return strings.Join(out, sep)
}
