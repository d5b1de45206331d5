package telegram

import (
	"context"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// BotConfig configuration of the bot
type BotConfig struct {
	Token          string
	Debug          bool
	UpdatesTimeout int
	// NotifyTimeout bounds each alert notification. Long polling and
	// command replies use a client that outlives UpdatesTimeout.
	NotifyTimeout time.Duration
}

// Commands produces the replies for the chat commands.
type Commands interface {
	CommandSet(ctx context.Context, userID int64, args string) string
	CommandList(ctx context.Context, userID int64) string
	CommandRemove(ctx context.Context, userID int64, args string) string
	CommandCurrencies() string
	CommandTest(ctx context.Context, args string) string
	CommandInfo(ctx context.Context, args string) string
	CommandChart(args string) ([]byte, string, error)
}

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Bot telegram interaction client
type Bot struct {
	api      *tgbotapi.BotAPI
	sender   sender
	notifier sender
	commands Commands
	config   BotConfig
}

// Message a telegram message struct
type Message struct {
	ChatID    int64
	MessageID int
	Text      string
}
