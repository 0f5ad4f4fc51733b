// Package pipeline turns an uploaded invoice image into a stored extraction document.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path"
	"strings"
	"time"

	"invoice-extractor/api/internal/clarity"
	"invoice-extractor/api/internal/extract"
	"invoice-extractor/api/internal/imaging"
	"invoice-extractor/api/internal/llm"
	"invoice-extractor/api/internal/pdf"
	"invoice-extractor/api/internal/storage"
	"invoice-extractor/api/internal/store"
	"invoice-extractor/api/internal/structured"
)

const DefaultOutputPrefix = "json_files/"

var ErrMissingInput = errors.New("missing input")

// Cache remembers model answers per image so that reprocessing skips the model call.
type Cache interface {
	FindResponse(ctx context.Context, imageHash, engine, model string) (string, error)
	Save(ctx context.Context, row store.ExtractionRow) error
}

type Config struct {
	Store    storage.Store
	Engine   llm.Engine
	Schema   extract.Schema
	Assessor *clarity.Assessor
	Prompt   string

	InputBucket  string
	OutputBucket string
	OutputPrefix string

	Width, Height int

	// Structured asks the engine for JSON and validates it before structuring.
	Structured bool

	Cache  Cache
	Logger *slog.Logger
	Now    func() time.Time
}

type Processor struct {
	cfg       Config
	validator *structured.Validator
	schemaDoc []byte
}

// Output describes one processed object.
type Output struct {
	Key       string
	OutputKey string
	Document  Document
}

func NewProcessor(cfg Config) (*Processor, error) {
	if cfg.Engine == nil {
		return nil, errors.New("pipeline: engine is required")
	}
	if cfg.Schema.Len() == 0 {
		cfg.Schema = extract.DefaultInvoiceSchema()
	}
	if cfg.Assessor == nil {
		cfg.Assessor = clarity.New(clarity.DefaultThresholds())
	}
	if strings.TrimSpace(cfg.Prompt) == "" {
		cfg.Prompt = llm.ExtractionPrompt(cfg.Schema.Names())
	}
	if cfg.Width <= 0 {
		cfg.Width = imaging.PayloadWidth
	}
	if cfg.Height <= 0 {
		cfg.Height = imaging.PayloadHeight
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	p := &Processor{cfg: cfg}
	if cfg.Structured {
		p.schemaDoc = structured.BuildSchema(cfg.Schema)
		v, err := structured.NewValidator(p.schemaDoc)
		if err != nil {
			return nil, err
		}
		p.validator = v
	}
	return p, nil
}

// OutputKey maps an input key to prefix + basename without its last extension + ".json".
func OutputKey(prefix, key string) string {
	base := path.Base(key)
	if i := strings.LastIndex(base, "."); i > 0 {
		base = base[:i]
	}
	return prefix + base + ".json"
}

// Process fetches key from the input bucket, extracts it and writes the document
// to the output bucket.
func (p *Processor) Process(ctx context.Context, key string) (Output, error) {
	start := p.cfg.Now()
	if strings.TrimSpace(key) == "" {
		return Output{}, fmt.Errorf("%w: empty key", ErrMissingInput)
	}
	if p.cfg.Store == nil {
		return Output{}, errors.New("pipeline: no object store configured")
	}
	data, err := p.cfg.Store.Get(ctx, p.cfg.InputBucket, key)
	if err != nil {
		return Output{}, fmt.Errorf("fetch %s: %w", key, err)
	}
	doc, err := p.extract(ctx, start, key, data)
	if err != nil {
		return Output{}, err
	}
	outKey, err := p.Write(ctx, key, doc)
	if err != nil {
		return Output{}, err
	}
	return Output{Key: key, OutputKey: outKey, Document: doc}, nil
}

// Extract runs the pipeline on bytes already in hand. PDFs contribute their first page image.
func (p *Processor) Extract(ctx context.Context, fileName string, data []byte) (Document, error) {
	return p.extract(ctx, p.cfg.Now(), fileName, data)
}

// Write stores doc under OutputKey in the output bucket and returns the key.
func (p *Processor) Write(ctx context.Context, key string, doc Document) (string, error) {
	if p.cfg.Store == nil {
		return "", errors.New("pipeline: no object store configured")
	}
	body, err := doc.Encode()
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", key, err)
	}
	prefix := p.cfg.OutputPrefix
	if prefix == "" {
		prefix = DefaultOutputPrefix
	}
	outKey := OutputKey(prefix, key)
	if err := p.cfg.Store.Put(ctx, p.cfg.OutputBucket, outKey, body, "application/json"); err != nil {
		return "", fmt.Errorf("store %s: %w", outKey, err)
	}
	p.cfg.Logger.Info("saved extraction", "key", key, "output", outKey)
	return outKey, nil
}

func (p *Processor) extract(ctx context.Context, start time.Time, fileName string, data []byte) (Document, error) {
	if len(data) == 0 {
		return Document{}, fmt.Errorf("%w: %s is empty", ErrMissingInput, fileName)
	}
	if imaging.IsPDF("", data) {
		page, err := pdf.FirstImage(ctx, data)
		if err != nil {
			return Document{}, fmt.Errorf("pdf %s: %w", fileName, err)
		}
		data = page
	}

	// An undecodable image still goes to the model as is; only its clarity is lost.
	mime := imaging.MimePNG
	var clar clarity.Record
	src, payload, err := imaging.PreparePayload(data, p.cfg.Width, p.cfg.Height)
	if err != nil {
		p.cfg.Logger.Warn("image decode failed, sending original bytes", "key", fileName, "err", err)
		payload, mime = data, imaging.PickMIME("", "", data)
		clar = p.cfg.Assessor.AssessBytes(data)
	} else {
		clar = p.cfg.Assessor.Assess(src)
	}

	text, cached := p.respond(ctx, fileName, data, payload, mime)
	rec := p.structure(fileName, text)

	doc := Document{
		FileName: fileName,
		Known:    rec.Known,
		Extra:    rec.Extra,
		Clarity:  clar,
	}
	doc.ResponseTimeSeconds = round2(p.cfg.Now().Sub(start).Seconds())

	if p.cfg.Cache != nil && text != "" && !cached {
		p.remember(ctx, fileName, data, text, doc)
	}
	return doc, nil
}

// respond returns the model's raw answer and whether it came from the cache.
// A failed call yields "".
func (p *Processor) respond(ctx context.Context, fileName string, source, payload []byte, mime string) (string, bool) {
	eng := p.cfg.Engine
	log := p.cfg.Logger.With("key", fileName, "engine", eng.Name(), "model", eng.GetModel())

	if p.cfg.Cache != nil {
		cached, err := p.cfg.Cache.FindResponse(ctx, hashOf(source), eng.Name(), eng.GetModel())
		if err == nil && cached != "" {
			log.Info("using cached model response")
			return cached, true
		}
	}
	t0 := time.Now()
	out, err := eng.Generate(ctx, llm.Request{
		Instruction: p.cfg.Prompt,
		Image:       payload,
		MIME:        mime,
		JSONSchema:  p.schemaDoc,
	})
	if err != nil {
		log.Error("model call failed", "err", err)
		return "", false
	}
	log.Info("model responded", "elapsed", time.Since(t0))
	return out, false
}

// structure parses text against the schema. Structured answers that are not
// JSON fall back to line parsing.
func (p *Processor) structure(fileName, text string) extract.Record {
	if !p.cfg.Structured || text == "" {
		return extract.Structure(text, p.cfg.Schema)
	}
	log := p.cfg.Logger.With("key", fileName)
	if err := p.validator.Validate(text); err != nil && !errors.Is(err, structured.ErrNotJSON) {
		log.Warn("structured response failed validation", "err", err)
	}
	rec, err := structured.Structure(text, p.cfg.Schema)
	if err != nil {
		log.Warn("structured response is not JSON, parsing as lines", "err", err)
		return extract.Structure(text, p.cfg.Schema)
	}
	return rec
}

func (p *Processor) remember(ctx context.Context, fileName string, source []byte, text string, doc Document) {
	body, err := doc.MarshalJSON()
	if err != nil {
		return
	}
	row := store.ExtractionRow{
		FileName:     fileName,
		ImageHash:    hashOf(source),
		Engine:       p.cfg.Engine.Name(),
		Model:        p.cfg.Engine.GetModel(),
		ResponseText: text,
		Document:     body,
		Clarity:      string(doc.Clarity.Feedback),
		ResponseTime: doc.ResponseTimeSeconds,
	}
	if err := p.cfg.Cache.Save(ctx, row); err != nil {
		p.cfg.Logger.Warn("cache save failed", "key", fileName, "err", err)
	}
}

func hashOf(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
