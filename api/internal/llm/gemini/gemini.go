package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"invoice-extractor/api/internal/imaging"
	"invoice-extractor/api/internal/llm"
)

const DefaultModel = "gemini-1.5-pro"

type Engine struct {
	APIKey      string
	Model       string
	Temperature float32
}

func New(apiKey, model string, temperature float32) *Engine {
	model = strings.TrimSpace(model)
	if model == "" {
		model = DefaultModel
	}
	return &Engine{
		APIKey:      strings.TrimSpace(apiKey),
		Model:       model,
		Temperature: temperature,
	}
}

func (e *Engine) Name() string     { return "gemini" }
func (e *Engine) GetModel() string { return e.Model }

// Generate sends [instruction, image, question] as one user turn and returns the answer text.
func (e *Engine) Generate(ctx context.Context, req llm.Request) (string, error) {
	if e.APIKey == "" {
		return "", fmt.Errorf("%w: GEMINI_API_KEY is empty", llm.ErrPermanent)
	}
	if len(req.Image) == 0 {
		return "", fmt.Errorf("%w: no image supplied", llm.ErrPermanent)
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(e.APIKey))
	if err != nil {
		return "", err
	}
	defer cl.Close()

	model := e.Model
	if req.ModelOverride != "" {
		model = req.ModelOverride
	}
	m := cl.GenerativeModel(model)
	if m == nil {
		return "", fmt.Errorf("gemini: model is nil")
	}
	m.GenerationConfig = genai.GenerationConfig{
		Temperature: ptrFloat32(e.Temperature),
	}
	if len(req.JSONSchema) > 0 {
		m.GenerationConfig.ResponseMIMEType = "application/json"
	}

	mime := imaging.PickMIME(req.MIME, "", req.Image)
	parts := []genai.Part{}
	if s := strings.TrimSpace(req.Instruction); s != "" {
		parts = append(parts, genai.Text(req.Instruction))
	}
	parts = append(parts, genai.Blob{MIMEType: mime, Data: req.Image})
	if s := strings.TrimSpace(req.Question); s != "" {
		parts = append(parts, genai.Text(req.Question))
	}

	resp, err := m.GenerateContent(ctx, parts...)
	if err != nil {
		return "", classify(err)
	}
	txt := firstText(resp)
	if txt == "" {
		return "", fmt.Errorf("gemini: empty response")
	}
	return strings.TrimSpace(txt), nil
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}

// classify marks client-side API errors as permanent so they are not retried.
func classify(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			return fmt.Errorf("%w: gemini %d: %v", llm.ErrPermanent, gerr.Code, err)
		}
	}
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return fmt.Errorf("%w: gemini: %v", llm.ErrPermanent, err)
	}
	return fmt.Errorf("gemini: %w", err)
}

func ptrFloat32(f float32) *float32 { return &f }

var _ llm.Engine = (*Engine)(nil)
