package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/offerflow/offerflow-api/internal/config"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// ErrExtractor is returned when the extractor could not be reached or answered with an error
var ErrExtractor = errors.New("structured extractor request failed")

// Extractor turns free text into a JSON document in the canonical parsed-offer shape
type Extractor interface {
	Extract(ctx context.Context, text string) (json.RawMessage, error)
}

const extractionPrompt = `You read wholesale vendor offer emails and extract pricing.
Reply with a single JSON object and nothing else, using exactly these keys:
{"vendor_name": string|null, "vendor_email": string|null, "valid_until": "YYYY-MM-DD"|null,
 "lead_time_days": integer|null, "terms": string|null,
 "items": [{"sku": string|null, "description": string, "quantity": number, "unit": string|null,
            "unit_price": number, "moq": number|null}]}
Use null for anything the email does not state. quantity, unit_price and moq are plain JSON numbers without currency symbols.`

// ChatExtractor asks an OpenAI-compatible chat completions endpoint for the parsed offer in JSON mode
type ChatExtractor struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// NewChatExtractor creates an extractor from configuration
func NewChatExtractor(cfg *config.ExtractorConfig, logger *zap.Logger) *ChatExtractor {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.TimeoutDuration()}

	return &ChatExtractor{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		logger: logger.Named("extractor"),
	}
}

// Extract sends the text to the model and returns the raw JSON content of its answer
func (e *ChatExtractor) Extract(ctx context.Context, text string) (json.RawMessage, error) {
	start := time.Now()
	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: extractionPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, extractorError(err)
	}

	e.logger.Debug("extractor responded",
		zap.String("model", resp.Model),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
	)

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return nil, fmt.Errorf("%w: empty completion", ErrInvalidPayload)
	}
	return json.RawMessage(stripCodeFence(resp.Choices[0].Message.Content)), nil
}

// extractorError keeps the upstream status of a failed call
func extractorError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: status %d: %s", ErrExtractor, apiErr.HTTPStatusCode, truncate(apiErr.Message, 300))
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("%w: status %d: %v", ErrExtractor, reqErr.HTTPStatusCode, reqErr.Err)
	}
	return fmt.Errorf("%w: %v", ErrExtractor, err)
}

// stripCodeFence removes a markdown code fence some models wrap JSON in
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
