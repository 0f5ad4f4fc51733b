package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"invoice-extractor/api/internal/interactive"
	"invoice-extractor/api/internal/llm"
	"invoice-extractor/api/internal/pipeline"
)

// Bot is the subset of *tgbotapi.BotAPI the router uses.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Extractor produces a structured document from an uploaded invoice.
type Extractor interface {
	Extract(ctx context.Context, fileName string, data []byte) (pipeline.Document, error)
}

type Router struct {
	Bot        Bot
	Engines    *llm.Engines
	EngManager *llm.Manager
	Asker      *interactive.Service
	Extractor  Extractor
	Logger     *slog.Logger

	// Timeout bounds one model round trip for a chat message.
	Timeout time.Duration

	state chatState
}

const helpText = "Send a photo or PDF of an invoice with your question as the caption.\n" +
	"Commands: /extract, /ask, /engine, /health"

func (r *Router) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

func (r *Router) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	msg := upd.Message
	if msg == nil {
		return
	}
	cid := msg.Chat.ID

	if msg.IsCommand() {
		r.HandleCommand(cid, msg.Command(), msg.CommandArguments())
		return
	}

	if up, ok, err := r.uploadFrom(ctx, msg); err != nil {
		r.SendError(cid, err)
		return
	} else if ok {
		r.acceptUpload(ctx, cid, up, strings.TrimSpace(msg.Caption))
		return
	}

	if q := strings.TrimSpace(msg.Text); q != "" {
		up, ok := r.state.pendingUpload(cid)
		if !ok {
			r.send(cid, noFileText+". "+helpText)
			return
		}
		r.answer(ctx, cid, up, q)
	}
}

func (r *Router) HandleCommand(cid int64, command, args string) {
	switch command {
	case "start", "help":
		r.send(cid, helpText)
	case "health":
		r.send(cid, "OK")
	case "extract":
		r.state.setMode(cid, modeExtract)
		r.send(cid, "Extraction mode: send an invoice and I will return its fields.")
	case "ask":
		r.state.setMode(cid, modeAsk)
		r.send(cid, "Question mode: send an invoice with a question as the caption.")
	case "engine":
		r.handleEngineCommand(cid, args)
	default:
		r.send(cid, "Unknown command. "+helpText)
	}
}

// handleEngineCommand switches the chat's engine:
//
//	/engine gemini [model]
//	/engine gpt [model]
func (r *Router) handleEngineCommand(cid int64, args string) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		cur := r.EngManager.Get(cid)
		r.send(cid, fmt.Sprintf("Current engine: %s (%s)\nUsage: /engine {%s} [model]",
			cur.Name(), cur.GetModel(), strings.Join(r.Engines.Names(), "|")))
		return
	}
	eng, err := r.Engines.GetEngine(fields[0])
	if err != nil {
		r.send(cid, err.Error())
		return
	}
	if len(fields) > 1 {
		eng = llm.WithModel(eng, fields[1])
	}
	r.EngManager.Set(cid, eng)
	r.send(cid, fmt.Sprintf("Engine: %s (%s).", eng.Name(), eng.GetModel()))
}

func (r *Router) acceptUpload(ctx context.Context, cid int64, up interactive.Upload, caption string) {
	if r.state.getMode(cid) == modeExtract {
		r.extract(ctx, cid, up)
		return
	}
	r.state.park(cid, up)
	if caption == "" {
		r.send(cid, "Invoice received. What would you like to know about it?")
		return
	}
	r.answer(ctx, cid, up, caption)
}

func (r *Router) answer(ctx context.Context, cid int64, up interactive.Upload, question string) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	ans, err := r.Asker.AskWith(ctx, r.EngManager.Get(cid), up, question)
	if err != nil {
		r.logger().Error("ask failed", "chat", cid, "err", err)
		r.SendError(cid, err)
		return
	}
	r.SendResult(cid, ans.Text)
}

func (r *Router) extract(ctx context.Context, cid int64, up interactive.Upload) {
	if r.Extractor == nil {
		r.send(cid, "Extraction is not configured.")
		return
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	doc, err := r.Extractor.Extract(ctx, up.FileName, up.Data)
	if err != nil {
		r.logger().Error("extract failed", "chat", cid, "err", err)
		r.SendError(cid, err)
		return
	}
	r.SendResult(cid, FormatDocument(doc))
}

func (r *Router) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	d := r.Timeout
	if d <= 0 {
		d = 180 * time.Second
	}
	return context.WithTimeout(ctx, d)
}

func (r *Router) send(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := r.Bot.Send(msg); err != nil {
		r.logger().Warn("send failed", "chat", chatID, "err", err)
	}
}

// maxMessageBytes keeps replies under Telegram's 4096 character cap.
const maxMessageBytes = 3900

const noFileText = "No file uploaded"

func (r *Router) SendResult(chatID int64, text string) {
	r.send(chatID, truncate(text, maxMessageBytes))
}

// truncate cuts text to at most n bytes on a rune boundary and marks the cut.
func truncate(text string, n int) string {
	if len(text) <= n {
		return text
	}
	for n > 0 && !utf8.RuneStart(text[n]) {
		n--
	}
	return text[:n] + "…"
}

func (r *Router) SendError(chatID int64, err error) {
	if errors.Is(err, interactive.ErrNoFile) {
		r.send(chatID, noFileText)
		return
	}
	r.send(chatID, fmt.Sprintf("Error: %v", err))
}
