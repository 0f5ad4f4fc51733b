package telegram

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"invoice-extractor/api/internal/extract"
	"invoice-extractor/api/internal/interactive"
	"invoice-extractor/api/internal/llm"
	"invoice-extractor/api/internal/pipeline"
)

type fakeBot struct {
	mu   sync.Mutex
	url  string
	sent []string
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		b.sent = append(b.sent, m.Text)
	}
	return tgbotapi.Message{}, nil
}

func (b *fakeBot) GetFileDirectURL(string) (string, error) { return b.url, nil }

func (b *fakeBot) last() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.sent) == 0 {
		return ""
	}
	return b.sent[len(b.sent)-1]
}

type fakeEngine struct {
	name     string
	model    string
	question string
}

func (f *fakeEngine) Name() string     { return f.name }
func (f *fakeEngine) GetModel() string { return f.model }
func (f *fakeEngine) Generate(_ context.Context, req llm.Request) (string, error) {
	f.question = req.Question
	m := f.model
	if req.ModelOverride != "" {
		m = req.ModelOverride
	}
	return f.name + "/" + m + ": " + req.Question, nil
}

type fakeExtractor struct{}

func (fakeExtractor) Extract(_ context.Context, name string, _ []byte) (pipeline.Document, error) {
	known := extract.NewFields()
	known.Set("UHID", extract.Str("77"))
	known.Set("Bill No", nil)
	return pipeline.Document{FileName: name, Known: known, Extra: extract.NewFields()}, nil
}

var jpeg = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0x10, 'J', 'F', 'I', 'F'}

func newRouter(t *testing.T) (*Router, *fakeBot) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(jpeg)
	}))
	t.Cleanup(srv.Close)

	bot := &fakeBot{url: srv.URL}
	gem := &fakeEngine{name: "gemini", model: "gemini-1.5-pro"}
	gpt := &fakeEngine{name: "gpt", model: "gpt-4o-mini"}
	return &Router{
		Bot:        bot,
		Engines:    llm.NewEngines(gem, gpt),
		EngManager: llm.NewManager(gem),
		Asker:      interactive.New(interactive.Config{Engine: gem}),
		Extractor:  fakeExtractor{},
	}, bot
}

func command(chatID int64, text string) tgbotapi.Update {
	cmd := strings.Fields(text)[0]
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Chat:     &tgbotapi.Chat{ID: chatID},
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}},
	}}
}

func photo(chatID int64, caption string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Chat:    &tgbotapi.Chat{ID: chatID},
		Caption: caption,
		Photo:   []tgbotapi.PhotoSize{{FileID: "small"}, {FileID: "big", FileUniqueID: "u1"}},
	}}
}

func text(chatID int64, s string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chatID}, Text: s}}
}

func TestRouter_AskWithCaption(t *testing.T) {
	r, bot := newRouter(t)
	r.HandleUpdate(context.Background(), photo(1, "What is the total?"))
	if got := bot.last(); got != "gemini/gemini-1.5-pro: What is the total?" {
		t.Errorf("reply = %q", got)
	}
}

func TestRouter_QuestionAfterPhoto(t *testing.T) {
	r, bot := newRouter(t)
	ctx := context.Background()

	r.HandleUpdate(ctx, text(2, "total?"))
	if !strings.HasPrefix(bot.last(), "No file uploaded") {
		t.Errorf("reply = %q", bot.last())
	}

	r.HandleUpdate(ctx, photo(2, ""))
	if !strings.Contains(bot.last(), "What would you like to know") {
		t.Errorf("reply = %q", bot.last())
	}
	r.HandleUpdate(ctx, text(2, "who is the patient?"))
	if got := bot.last(); got != "gemini/gemini-1.5-pro: who is the patient?" {
		t.Errorf("reply = %q", got)
	}
}

func TestRouter_EngineSwitch(t *testing.T) {
	r, bot := newRouter(t)
	ctx := context.Background()

	r.HandleUpdate(ctx, command(3, "/engine gpt gpt-4o"))
	if got := bot.last(); got != "Engine: gpt (gpt-4o)." {
		t.Errorf("reply = %q", got)
	}
	r.HandleUpdate(ctx, photo(3, "hi"))
	if got := bot.last(); got != "gpt/gpt-4o: hi" {
		t.Errorf("reply = %q", got)
	}

	// other chats keep the default
	r.HandleUpdate(ctx, photo(4, "hi"))
	if got := bot.last(); got != "gemini/gemini-1.5-pro: hi" {
		t.Errorf("reply = %q", got)
	}

	r.HandleUpdate(ctx, command(3, "/engine bard"))
	if !strings.Contains(bot.last(), "unknown engine") {
		t.Errorf("reply = %q", bot.last())
	}
}

func TestRouter_ExtractMode(t *testing.T) {
	r, bot := newRouter(t)
	ctx := context.Background()

	r.HandleUpdate(ctx, command(5, "/extract"))
	r.HandleUpdate(ctx, photo(5, ""))
	got := bot.last()
	if !strings.HasPrefix(got, "UHID: 77\n") || strings.Contains(got, "Bill No") {
		t.Errorf("reply = %q", got)
	}

	r.HandleUpdate(ctx, command(5, "/ask"))
	r.HandleUpdate(ctx, photo(5, "q"))
	if got := bot.last(); got != "gemini/gemini-1.5-pro: q" {
		t.Errorf("reply = %q", got)
	}
}

func TestRouter_RejectsOtherDocuments(t *testing.T) {
	r, bot := newRouter(t)
	r.HandleUpdate(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{
		Chat:     &tgbotapi.Chat{ID: 6},
		Document: &tgbotapi.Document{FileID: "d", FileName: "a.zip", MimeType: "application/zip"},
	}})
	if !strings.Contains(bot.last(), "unsupported file type") {
		t.Errorf("reply = %q", bot.last())
	}
}

func TestSendResult_Truncates(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"short", "UHID: 1", "UHID: 1"},
		{"exact", strings.Repeat("a", maxMessageBytes), strings.Repeat("a", maxMessageBytes)},
		{"ascii", strings.Repeat("a", maxMessageBytes+10), strings.Repeat("a", maxMessageBytes) + "…"},
		{"split rune", strings.Repeat("a", maxMessageBytes-1) + "₹100", strings.Repeat("a", maxMessageBytes-1) + "…"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, bot := newRouter(t)
			r.SendResult(1, tt.in)
			got := bot.last()
			if !utf8.ValidString(got) {
				t.Fatalf("invalid UTF-8: %q", got[len(got)-8:])
			}
			if got != tt.want {
				t.Errorf("len %d, want len %d", len(got), len(tt.want))
			}
		})
	}
}

func TestSendError_NoFile(t *testing.T) {
	r, bot := newRouter(t)
	r.SendError(1, fmt.Errorf("ask: %w", interactive.ErrNoFile))
	if got := bot.last(); got != "No file uploaded" {
		t.Errorf("reply = %q", got)
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestRetryDelayFromError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want time.Duration
	}{
		{"nil", nil, 0},
		{"retry after", errors.New("Too Many Requests: retry after 7"), 7 * time.Second},
		{"429 without hint", errors.New("Too Many Requests"), 3 * time.Second},
		{"timeout", timeoutErr{}, 2 * time.Second},
		{"other", errors.New("boom"), time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RetryDelayFromError(tt.err); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

type fakeUpdater struct {
	calls int
	cancel context.CancelFunc
}

func (f *fakeUpdater) GetUpdates(c tgbotapi.UpdateConfig) ([]tgbotapi.Update, error) {
	f.calls++
	if f.calls == 1 {
		return []tgbotapi.Update{{UpdateID: 10}, {UpdateID: 11}}, nil
	}
	if c.Offset != 12 {
		return nil, errors.New("unexpected offset")
	}
	f.cancel()
	return nil, nil
}

func TestRunPolling(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	up := &fakeUpdater{cancel: cancel}
	var got []int
	RunPolling(ctx, up, nil, func(u tgbotapi.Update) { got = append(got, u.UpdateID) })
	if len(got) != 2 || got[0] != 10 || got[1] != 11 {
		t.Errorf("handled = %v", got)
	}
	if up.calls != 2 {
		t.Errorf("calls = %d", up.calls)
	}
}
