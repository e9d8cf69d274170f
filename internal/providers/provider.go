package providers

import (
	"context"
	"fmt"
	"strings"
)

type ChatRequest struct {
	Model        string
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Temperature  float64
}

type ChatResponse struct {
	Text string
}

type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
}

// StatusError is returned by every provider when the remote side answers
// with a non-2xx status. Body holds the raw response text for logging.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider status %d", e.StatusCode)
}

// BaseURL strips a trailing chat completions or responses path so SDK
// clients can append their own route.
func BaseURL(endpoint string) string {
	base := strings.TrimSuffix(strings.TrimSpace(endpoint), "/")
	for _, suffix := range []string{"/chat/completions", "/responses"} {
		if strings.HasSuffix(base, suffix) {
			return strings.TrimSuffix(base, suffix)
		}
	}
	return base
}
