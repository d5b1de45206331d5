package telegram

import (
	"bytes"
	"context"
	"net/http"
	"runtime"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"ramzinex-alert-bot/internal/commands"
	"ramzinex-alert-bot/internal/metrics"
	"ramzinex-alert-bot/internal/types"
	"ramzinex-alert-bot/lib/helpers"
	"ramzinex-alert-bot/lib/translation"
)

const pollSlack = 15 * time.Second

// clientTimeouts returns the HTTP timeouts for polling and notifications.
// getUpdates holds the request open for UpdatesTimeout seconds, so the
// polling client must wait longer than that.
func clientTimeouts(c BotConfig) (poll, notify time.Duration) {
	poll = time.Duration(c.UpdatesTimeout)*time.Second + pollSlack
	notify = c.NotifyTimeout
	if notify <= 0 {
		notify = 10 * time.Second
	}
	return poll, notify
}

// NewBot creates new telegram bot
func NewBot(c BotConfig, cmds Commands) (*Bot, error) {
	pollTimeout, notifyTimeout := clientTimeouts(c)

	bot, err := tgbotapi.NewBotAPIWithClient(c.Token, tgbotapi.APIEndpoint, &http.Client{Timeout: pollTimeout})
	if err != nil {
		return nil, errors.Wrap(err, "could not create telegram bot")
	}

	bot.Debug = c.Debug
	log.Debugf("Authorized on account %s", bot.Self.UserName)

	notifier := *bot
	notifier.Client = &http.Client{Timeout: notifyTimeout}

	return &Bot{
		api:      bot,
		sender:   bot,
		notifier: &notifier,
		commands: cmds,
		config:   c,
	}, nil
}

// SendMessage sends a telegram message
func (b *Bot) SendMessage(m Message) error {
	return sendMessage(b.sender, m)
}

func sendMessage(s sender, m Message) error {
	msg := tgbotapi.NewMessage(m.ChatID, m.Text)
	msg.ReplyToMessageID = m.MessageID
	msg.DisableWebPagePreview = true
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	_, err := s.Send(msg)
	return errors.Wrapf(err, "could not send message to chat %d", m.ChatID)
}

// Notify delivers an alert notification to the user's chat.
func (b *Bot) Notify(userID int64, text string) error {
	if err := sendMessage(b.notifier, Message{ChatID: userID, Text: text}); err != nil {
		return errors.Wrapf(types.ErrDelivery, "%v", err)
	}
	return nil
}

// Run consumes updates until ctx is done.
func (b *Bot) Run(ctx context.Context) {
	updatesConfig := tgbotapi.NewUpdate(0)
	if b.config.UpdatesTimeout > 0 {
		updatesConfig.Timeout = b.config.UpdatesTimeout
	}
	updates := b.api.GetUpdatesChan(updatesConfig)
	defer b.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.handle(ctx, update)
		}
	}
}

func (b *Bot) handle(ctx context.Context, update tgbotapi.Update) {
	if update.Message == nil || !update.Message.IsCommand() {
		log.Debug("Received non-message or non-command")
		return
	}

	metrics.MessagesHandled.Inc()

	defer func() {
		if r := recover(); r != nil {
			stackBuf := make([]byte, 1024)
			stackSize := runtime.Stack(stackBuf, false)
			stackTrace := bytes.TrimRight(stackBuf[:stackSize], "\x00")
			log.Errorf("Recovered from panic: %v\nStack trace: %s", r, stackTrace)
		}
	}()

	text := b.HandleUpdate(ctx, update)
	if text == "" {
		return
	}

	err := b.SendMessage(Message{
		ChatID:    update.Message.Chat.ID,
		Text:      text,
		MessageID: update.Message.MessageID,
	})
	if err != nil {
		log.Errorf("Failed to send message: %v", err)
		return
	}
	metrics.CommandsProcessed.Inc()
}

// HandleUpdate processes a command and returns the reply text. An empty
// reply means the answer was already sent.
func (b *Bot) HandleUpdate(ctx context.Context, u tgbotapi.Update) string {
	log.Debugf("received command: %s", u.Message.Command())

	chatID := u.Message.Chat.ID
	args := u.Message.CommandArguments()

	switch u.Message.Command() {
	case "set":
		return b.commands.CommandSet(ctx, chatID, args)
	case "list":
		return b.commands.CommandList(ctx, chatID)
	case "remove":
		return b.commands.CommandRemove(ctx, chatID, args)
	case "currencies":
		return b.commands.CommandCurrencies()
	case "test":
		return b.commands.CommandTest(ctx, args)
	case "info":
		return b.commands.CommandInfo(ctx, args)
	case "chart":
		return b.sendChart(u.Message, args)
	}
	return commands.CommandHelp()
}

func (b *Bot) sendChart(m *tgbotapi.Message, args string) string {
	chartData, caption, err := b.commands.CommandChart(args)
	if err != nil {
		log.Error(err)
		return helpers.EscapeMarkdownV2(translation.Translate("Could not draw the chart. Please try again later."))
	}
	if chartData == nil {
		return caption
	}

	photo := tgbotapi.NewPhoto(m.Chat.ID, tgbotapi.FileBytes{
		Name:  "chart.png",
		Bytes: chartData,
	})
	photo.Caption = caption
	photo.ParseMode = tgbotapi.ModeMarkdownV2
	photo.ReplyToMessageID = m.MessageID
	if _, err := b.sender.Send(photo); err != nil {
		log.Error("error sending chart:", err)
		return ""
	}
	metrics.CommandsProcessed.Inc()
	return ""
}
