package telegram

import (
	"context"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"

	"ramzinex-alert-bot/internal/types"
)

type fakeSender struct {
	sent []tgbotapi.Chattable
	err  error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, f.err
}

type fakeCommands struct {
	calls []string
	chart []byte
	panic bool
}

func (f *fakeCommands) record(call string) string {
	f.calls = append(f.calls, call)
	if f.panic {
		panic("boom")
	}
	return "reply to " + call
}

func (f *fakeCommands) CommandSet(ctx context.Context, userID int64, args string) string {
	return f.record("set " + args)
}

func (f *fakeCommands) CommandList(ctx context.Context, userID int64) string {
	return f.record("list")
}

func (f *fakeCommands) CommandRemove(ctx context.Context, userID int64, args string) string {
	return f.record("remove " + args)
}

func (f *fakeCommands) CommandCurrencies() string { return f.record("currencies") }

func (f *fakeCommands) CommandTest(ctx context.Context, args string) string {
	return f.record("test " + args)
}

func (f *fakeCommands) CommandInfo(ctx context.Context, args string) string {
	return f.record("info " + args)
}

func (f *fakeCommands) CommandChart(args string) ([]byte, string, error) {
	f.record("chart " + args)
	return f.chart, "caption", nil
}

func command(text string) tgbotapi.Update {
	name := strings.Fields(text)[0]
	return tgbotapi.Update{
		Message: &tgbotapi.Message{
			MessageID: 7,
			Chat:      &tgbotapi.Chat{ID: 42},
			Text:      text,
			Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(name)}},
		},
	}
}

func newTestBot(s *fakeSender, c *fakeCommands) *Bot {
	return &Bot{sender: s, notifier: s, commands: c}
}

func TestHandleRoutesCommands(t *testing.T) {
	s := &fakeSender{}
	c := &fakeCommands{}
	b := newTestBot(s, c)

	b.handle(context.Background(), command("/set BTC 5%"))

	if len(c.calls) != 1 || c.calls[0] != "set BTC 5%" {
		t.Fatalf("unexpected calls %v", c.calls)
	}
	if len(s.sent) != 1 {
		t.Fatalf("expected one reply, got %d", len(s.sent))
	}
	msg, ok := s.sent[0].(tgbotapi.MessageConfig)
	if !ok {
		t.Fatalf("expected a text message, got %T", s.sent[0])
	}
	if msg.ChatID != 42 || msg.ReplyToMessageID != 7 || msg.ParseMode != tgbotapi.ModeMarkdownV2 {
		t.Errorf("unexpected message %+v", msg)
	}
	if msg.Text != "reply to set BTC 5%" {
		t.Errorf("unexpected text %q", msg.Text)
	}
}

func TestHandleIgnoresPlainText(t *testing.T) {
	s := &fakeSender{}
	b := newTestBot(s, &fakeCommands{})

	b.handle(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 1}, Text: "hello"}})
	b.handle(context.Background(), tgbotapi.Update{})

	if len(s.sent) != 0 {
		t.Errorf("expected no replies, got %d", len(s.sent))
	}
}

func TestUnknownCommandGetsHelp(t *testing.T) {
	c := &fakeCommands{}
	b := newTestBot(&fakeSender{}, c)

	if text := b.HandleUpdate(context.Background(), command("/start")); text != "Command help message" {
		t.Errorf("expected help, got %q", text)
	}
	if len(c.calls) != 0 {
		t.Errorf("unexpected calls %v", c.calls)
	}
}

func TestChartIsSentAsPhoto(t *testing.T) {
	s := &fakeSender{}
	b := newTestBot(s, &fakeCommands{chart: []byte("\x89PNG")})

	b.handle(context.Background(), command("/chart BTC"))

	if len(s.sent) != 1 {
		t.Fatalf("expected one upload, got %d", len(s.sent))
	}
	photo, ok := s.sent[0].(tgbotapi.PhotoConfig)
	if !ok {
		t.Fatalf("expected a photo, got %T", s.sent[0])
	}
	if photo.Caption != "caption" || photo.ChatID != 42 {
		t.Errorf("unexpected photo %+v", photo)
	}
}

func TestChartWithoutDataRepliesWithCaption(t *testing.T) {
	s := &fakeSender{}
	b := newTestBot(s, &fakeCommands{})

	b.handle(context.Background(), command("/chart BTC"))

	if len(s.sent) != 1 {
		t.Fatalf("expected one reply, got %d", len(s.sent))
	}
	if msg, ok := s.sent[0].(tgbotapi.MessageConfig); !ok || msg.Text != "caption" {
		t.Errorf("unexpected reply %#v", s.sent[0])
	}
}

func TestHandleRecoversFromPanic(t *testing.T) {
	s := &fakeSender{}
	b := newTestBot(s, &fakeCommands{panic: true})

	b.handle(context.Background(), command("/list"))

	if len(s.sent) != 0 {
		t.Errorf("expected no reply, got %d", len(s.sent))
	}
}

func TestNotifyWrapsDeliveryErrors(t *testing.T) {
	replies := &fakeSender{}
	notifications := &fakeSender{err: errors.New("Forbidden: bot was blocked by the user")}
	b := &Bot{sender: replies, notifier: notifications, commands: &fakeCommands{}}

	err := b.Notify(42, "alert")
	if !errors.Is(err, types.ErrDelivery) {
		t.Fatalf("expected ErrDelivery, got %v", err)
	}
	if !strings.Contains(err.Error(), "blocked") {
		t.Errorf("expected the cause in %q", err.Error())
	}

	notifications.err = nil
	if err := b.Notify(42, "alert"); err != nil {
		t.Errorf("unexpected error %v", err)
	}
	if len(replies.sent) != 0 {
		t.Errorf("notifications must not use the polling client, got %d sends", len(replies.sent))
	}
	msg := notifications.sent[1].(tgbotapi.MessageConfig)
	if msg.ChatID != 42 || msg.Text != "alert" {
		t.Errorf("unexpected message %+v", msg)
	}
}

func TestClientTimeouts(t *testing.T) {
	poll, notify := clientTimeouts(BotConfig{UpdatesTimeout: 60, NotifyTimeout: 10 * time.Second})
	if poll <= 60*time.Second {
		t.Errorf("polling timeout %s must outlast the 60s long poll", poll)
	}
	if notify != 10*time.Second {
		t.Errorf("expected notify timeout 10s, got %s", notify)
	}

	if _, notify := clientTimeouts(BotConfig{}); notify <= 0 {
		t.Errorf("expected a default notify timeout, got %s", notify)
	}
}
