package services

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// telegramMaxMessage is the Bot API limit for one text message
const telegramMaxMessage = 4096

// Notifier delivers one plain or HTML formatted text message
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// TelegramNotifier sends HTML messages to a single chat. The bot is
// created on first use because the link is only up during network phases.
type TelegramNotifier struct {
	token       string
	chatID      int64
	apiEndpoint string
	httpClient  *http.Client
	logger      *zap.Logger

	mu  sync.Mutex
	bot *tgbotapi.BotAPI
}

func NewTelegramNotifier(token, chatID string, logger *zap.Logger) (*TelegramNotifier, error) {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("error parsing chat ID: %v", err)
	}
	return &TelegramNotifier{
		token:       token,
		chatID:      id,
		apiEndpoint: tgbotapi.APIEndpoint,
		httpClient:  &http.Client{},
		logger:      logger,
	}, nil
}

func (tn *TelegramNotifier) client() (*tgbotapi.BotAPI, error) {
	tn.mu.Lock()
	defer tn.mu.Unlock()
	if tn.bot != nil {
		return tn.bot, nil
	}
	bot, err := tgbotapi.NewBotAPIWithClient(tn.token, tn.apiEndpoint, tn.httpClient)
	if err != nil {
		return nil, fmt.Errorf("error creating telegram bot: %v", err)
	}
	tn.logger.Info("Telegram bot authorized", zap.String("username", bot.Self.UserName))
	tn.bot = bot
	return bot, nil
}

// Notify sends text with HTML parse mode, truncated to the Bot API limit
func (tn *TelegramNotifier) Notify(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	bot, err := tn.client()
	if err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(tn.chatID, truncateRunes(text, telegramMaxMessage))
	msg.ParseMode = "HTML"
	msg.DisableWebPagePreview = true

	if _, err := bot.Send(msg); err != nil {
		return fmt.Errorf("error sending telegram message: %v", err)
	}
	tn.logger.Debug("Telegram message sent", zap.Int("length", len(text)))
	return nil
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max])
}
