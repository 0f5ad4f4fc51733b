package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"invoice-extractor/api/internal/imaging"
	"invoice-extractor/api/internal/llm"
)

const DefaultModel = "gpt-4o-mini"

type Engine struct {
	APIKey      string
	Model       string
	Temperature float64

	client openai.Client
}

func New(key, model string, temperature float64) *Engine {
	model = strings.TrimSpace(model)
	if model == "" {
		model = DefaultModel
	}
	// Retries belong to llm.Retrying; the SDK's own retries are disabled.
	client := openai.NewClient(
		option.WithAPIKey(strings.TrimSpace(key)),
		option.WithHTTPClient(&http.Client{Timeout: 120 * time.Second}),
		option.WithMaxRetries(0),
	)
	return &Engine{
		APIKey:      strings.TrimSpace(key),
		Model:       model,
		Temperature: temperature,
		client:      client,
	}
}

func (e *Engine) Name() string     { return "gpt" }
func (e *Engine) GetModel() string { return e.Model }

func (e *Engine) Generate(ctx context.Context, req llm.Request) (string, error) {
	if e.APIKey == "" {
		return "", fmt.Errorf("%w: OPENAI_API_KEY is empty", llm.ErrPermanent)
	}
	if len(req.Image) == 0 {
		return "", fmt.Errorf("%w: no image supplied", llm.ErrPermanent)
	}
	model := e.Model
	if req.ModelOverride != "" {
		model = req.ModelOverride
	}

	mime := imaging.PickMIME(req.MIME, "", req.Image)
	content := []openai.ChatCompletionContentPartUnionParam{
		openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL:    imaging.MakeDataURL(mime, req.Image),
			Detail: "high",
		}),
	}
	if q := strings.TrimSpace(req.Question); q != "" {
		content = append(content, openai.TextContentPart(q))
	}

	messages := []openai.ChatCompletionMessageParamUnion{}
	if s := strings.TrimSpace(req.Instruction); s != "" {
		messages = append(messages, openai.SystemMessage(req.Instruction))
	}
	messages = append(messages, openai.UserMessage(content))

	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(model),
		Messages:    messages,
		Temperature: openai.Float(e.Temperature),
	}
	if len(req.JSONSchema) > 0 {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	resp, err := e.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: empty response")
	}
	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	if out == "" {
		return "", fmt.Errorf("openai: empty response")
	}
	return out, nil
}

func classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			return fmt.Errorf("%w: openai %d: %v", llm.ErrPermanent, apiErr.StatusCode, err)
		}
	}
	return fmt.Errorf("openai: %w", err)
}

var _ llm.Engine = (*Engine)(nil)
