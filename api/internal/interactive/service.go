// Package interactive answers free-form questions about one uploaded invoice.
package interactive

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"invoice-extractor/api/internal/imaging"
	"invoice-extractor/api/internal/llm"
	"invoice-extractor/api/internal/pdf"
	"invoice-extractor/api/internal/storage"
)

var ErrNoFile = errors.New("no file uploaded")

// Upload is the file the user attached.
type Upload struct {
	Data     []byte
	MIME     string
	FileName string
}

type Answer struct {
	ID             uuid.UUID `json:"id" yaml:"id"`
	Text           string    `json:"text" yaml:"text"`
	Engine         string    `json:"engine" yaml:"engine"`
	Model          string    `json:"model" yaml:"model"`
	SavedKey       string    `json:"saved_key,omitempty" yaml:"saved_key,omitempty"`
	ElapsedSeconds float64   `json:"elapsed_seconds" yaml:"elapsed_seconds"`
}

// AnswerCache remembers answers per (image, engine, model, question).
type AnswerCache interface {
	Find(ctx context.Context, imageHash, engine, model, question string, maxAge time.Duration) (string, error)
	Upsert(ctx context.Context, imageHash, engine, model, question, answer, savedKey string) error
}

type Config struct {
	Engine llm.Engine
	Prompt string

	// Store and ResponseBucket enable saving every answer as response_<timestamp>.txt.
	Store          storage.Store
	ResponseBucket string

	Cache       AnswerCache
	CacheMaxAge time.Duration

	Logger *slog.Logger
	Now    func() time.Time
}

type Service struct {
	cfg Config
}

func New(cfg Config) *Service {
	if strings.TrimSpace(cfg.Prompt) == "" {
		cfg.Prompt = llm.InvoiceQuestionPrompt
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{cfg: cfg}
}

func (s *Service) Engine() llm.Engine { return s.cfg.Engine }

// Ask answers question about up with the default engine.
func (s *Service) Ask(ctx context.Context, up Upload, question string) (Answer, error) {
	return s.AskWith(ctx, s.cfg.Engine, up, question)
}

// AskWith answers with a specific engine, e.g. one a chat switched to.
func (s *Service) AskWith(ctx context.Context, eng llm.Engine, up Upload, question string) (Answer, error) {
	if len(up.Data) == 0 {
		return Answer{}, ErrNoFile
	}
	if eng == nil {
		return Answer{}, errors.New("interactive: no engine configured")
	}
	start := s.cfg.Now()

	img, mime, err := imageOf(ctx, up)
	if err != nil {
		return Answer{}, err
	}

	ans := Answer{ID: uuid.New(), Engine: eng.Name(), Model: eng.GetModel()}
	log := s.cfg.Logger.With("id", ans.ID, "engine", ans.Engine, "model", ans.Model)
	hash := hashOf(img)

	if s.cfg.Cache != nil {
		if text, err := s.cfg.Cache.Find(ctx, hash, ans.Engine, ans.Model, question, s.cfg.CacheMaxAge); err == nil && text != "" {
			log.Info("using cached answer")
			ans.Text = text
		}
	}
	if ans.Text == "" {
		text, err := eng.Generate(ctx, llm.Request{
			Instruction: s.cfg.Prompt,
			Image:       img,
			MIME:        mime,
			Question:    question,
		})
		if err != nil {
			log.Error("model call failed", "err", err)
			return Answer{}, fmt.Errorf("error generating response: %w", err)
		}
		ans.Text = text
	}

	if s.cfg.Store != nil && s.cfg.ResponseBucket != "" {
		key := ResponseKey(s.cfg.Now())
		if err := s.cfg.Store.Put(ctx, s.cfg.ResponseBucket, key, []byte(ans.Text), "text/plain; charset=utf-8"); err != nil {
			log.Warn("saving response failed", "bucket", s.cfg.ResponseBucket, "key", key, "err", err)
		} else {
			ans.SavedKey = key
			log.Info("response saved", "bucket", s.cfg.ResponseBucket, "key", key)
		}
	}
	if s.cfg.Cache != nil {
		if err := s.cfg.Cache.Upsert(ctx, hash, ans.Engine, ans.Model, question, ans.Text, ans.SavedKey); err != nil {
			log.Warn("caching answer failed", "err", err)
		}
	}

	ans.ElapsedSeconds = s.cfg.Now().Sub(start).Seconds()
	return ans, nil
}

// ResponseKey names a saved answer after the time it was produced.
func ResponseKey(t time.Time) string {
	return "response_" + t.Format("2006-01-02_15-04-05") + ".txt"
}

// imageOf returns the bytes sent to the model: a PDF's first page image, or the upload itself.
func imageOf(ctx context.Context, up Upload) ([]byte, string, error) {
	if imaging.IsPDF(up.MIME, up.Data) {
		page, err := pdf.FirstImage(ctx, up.Data)
		if err != nil {
			return nil, "", fmt.Errorf("read pdf %s: %w", up.FileName, err)
		}
		return page, imaging.MimePNG, nil
	}
	return up.Data, imaging.PickMIME(up.MIME, "", up.Data), nil
}

func hashOf(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
