package telegram

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"telegram-stock-alert/internal/alert"
	"telegram-stock-alert/internal/session"
	"telegram-stock-alert/internal/types"
)

// BotConfig configuration of the bot
type BotConfig struct {
	Token          string
	Debug          bool
	UpdatesTimeout int
}

// Quoter supplies current prices for chart annotations.
type Quoter interface {
	FetchBatch(ctx context.Context, tickers []string) (map[string]float64, error)
}

// Charter draws an alert chart; nil disables chart attachments.
type Charter interface {
	RenderAlert(ctx context.Context, a types.Alert, current float64) ([]byte, error)
}

// Bot telegram interaction client
type Bot struct {
	Bot      *tgbotapi.BotAPI
	Config   BotConfig
	sessions *session.Manager
	mirror   *alert.Mirror
	charts   Charter
	quotes   Quoter
}

// Message a telegram message struct
type Message struct {
	ChatID    int
	MessageID int
	Text      string
}
