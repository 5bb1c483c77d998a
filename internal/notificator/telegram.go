package notificator

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	tgModels "github.com/go-telegram/bot/models"

	"github.com/campaigndesk/campaigndesk/internal/models"
	"github.com/campaigndesk/campaigndesk/pkg/logger"
)

type TelegramNotificator struct {
	logger *logger.Logger
	bot    *bot.Bot

	db RecipientStore
	// chatID is the operator chat from configuration, if any.
	chatID string
	// allowed lists the usernames whose /start subscribes their chat.
	allowed map[string]struct{}
}

func NewTelegramNotificator(logger *logger.Logger, token, chatID string, allowedUsernames []string, db RecipientStore) (*TelegramNotificator, error) {
	provider := &TelegramNotificator{
		logger:  logger.Named("telegram"),
		db:      db,
		chatID:  chatID,
		allowed: make(map[string]struct{}, len(allowedUsernames)),
	}
	for _, u := range allowedUsernames {
		provider.allowed[normalizeUsername(u)] = struct{}{}
	}

	opts := []bot.Option{
		bot.WithDefaultHandler(provider.handler),
	}
	b, err := bot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	provider.bot = b

	return provider, nil
}

// Start polls for updates until ctx is done.
func (t *TelegramNotificator) Start(ctx context.Context) {
	t.bot.Start(ctx)
}

func (t *TelegramNotificator) Name() models.AlertChannel {
	return models.AlertChannelTelegram
}

func (t *TelegramNotificator) Recipients(ctx context.Context) ([]string, error) {
	var chats []string
	if t.chatID != "" {
		chats = append(chats, t.chatID)
	}
	stored, err := t.db.ListAlertRecipients(ctx, models.AlertChannelTelegram)
	if err != nil {
		return chats, err
	}
	for _, r := range stored {
		if r.Address != t.chatID {
			chats = append(chats, r.Address)
		}
	}
	return chats, nil
}

func (t *TelegramNotificator) Send(ctx context.Context, chatID string, alert models.Alert) error {
	params := &bot.SendMessageParams{
		ChatID: chatID,
		Text:   alert.Subject + "\n\n" + alert.Body,
	}
	if _, err := t.bot.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}

func (t *TelegramNotificator) handler(ctx context.Context, b *bot.Bot, update *tgModels.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	user := update.Message.From
	chatID := fmt.Sprint(update.Message.Chat.ID)
	t.logger.Debug("Telegram update", "username", user.Username, "text", update.Message.Text)

	if strings.TrimSpace(update.Message.Text) != "/start" {
		return
	}

	reply := fmt.Sprintf("Your chat ID is %s.", chatID)
	if _, ok := t.allowed[normalizeUsername(user.Username)]; ok {
		err := t.db.AddAlertRecipient(ctx, &models.AlertRecipient{
			Channel:  models.AlertChannelTelegram,
			Address:  chatID,
			Username: user.Username,
		})
		if err != nil {
			t.logger.Error("Failed to store telegram chat", "username", user.Username, "error", err)
		} else {
			t.logger.Info("Telegram chat subscribed to alerts", "username", user.Username, "chat_id", chatID)
			reply += " You will now receive console alerts here."
		}
	}

	if _, err := b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: reply}); err != nil {
		t.logger.Error("Failed to reply to /start", "error", err)
	}
}

func normalizeUsername(u string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(u), "@"))
}
