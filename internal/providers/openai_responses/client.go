package openai_responses

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"

	"soonpsy/internal/providers"
)

type Config struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

type Client struct {
	sdk openai.Client
}

func New(cfg Config) *Client {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if base := providers.BaseURL(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(base+"/"))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	return &Client{sdk: openai.NewClient(opts...)}
}

var _ providers.Provider = (*Client)(nil)

func (c *Client) Chat(ctx context.Context, req providers.ChatRequest) (providers.ChatResponse, error) {
	params := responses.ResponseNewParams{
		Model:       shared.ResponsesModel(req.Model),
		Input:       responses.ResponseNewParamsInputUnion{OfString: openai.String(req.UserPrompt)},
		Temperature: openai.Float(req.Temperature),
	}
	if strings.TrimSpace(req.SystemPrompt) != "" {
		params.Instructions = openai.String(req.SystemPrompt)
	}
	if req.MaxTokens > 0 {
		params.MaxOutputTokens = openai.Int(int64(req.MaxTokens))
	}

	resp, err := c.sdk.Responses.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return providers.ChatResponse{}, &providers.StatusError{StatusCode: apiErr.StatusCode, Body: apiErr.Error()}
		}
		return providers.ChatResponse{}, fmt.Errorf("responses request: %w", err)
	}

	if !hasOutputText(resp) {
		return providers.ChatResponse{}, fmt.Errorf("missing output text in responses api response")
	}
	return providers.ChatResponse{Text: resp.OutputText()}, nil
}

// hasOutputText reports whether any message part carries text, even an
// empty one.
func hasOutputText(resp *responses.Response) bool {
	for _, item := range resp.Output {
		for _, part := range item.Content {
			if part.Type == "output_text" {
				return true
			}
		}
	}
	return false
}
