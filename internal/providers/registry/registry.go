package registry

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"soonpsy/internal/providers"
	"soonpsy/internal/providers/openai_compat"
	"soonpsy/internal/providers/openai_responses"
	"soonpsy/internal/providers/openai_sdk"
)

const (
	KindHTTP         = "http"
	KindSDKResponses = "sdk_responses"
	KindSDKChat      = "sdk_chat"
)

var ErrUnsupportedKind = errors.New("unsupported transport kind")

type BuildOptions struct {
	Kind       string
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// Normalize maps accepted aliases onto one of the Kind constants. Unknown
// values are returned lowercased so the caller can report them.
func Normalize(kind string) string {
	switch k := strings.ToLower(strings.TrimSpace(kind)); k {
	case "", KindHTTP, "fetch", "openai_compat", "openai-compatible":
		return KindHTTP
	case KindSDKResponses, "sdk-responses", "responses":
		return KindSDKResponses
	case KindSDKChat, "sdk-chat", "chat_completions", "sdk":
		return KindSDKChat
	default:
		return k
	}
}

func Build(opts BuildOptions) (providers.Provider, error) {
	switch Normalize(opts.Kind) {
	case KindHTTP:
		return openai_compat.New(openai_compat.Config{
			BaseURL:    opts.BaseURL,
			APIKey:     opts.APIKey,
			HTTPClient: opts.HTTPClient,
		}), nil

	case KindSDKResponses:
		return openai_responses.New(openai_responses.Config{
			BaseURL:    opts.BaseURL,
			APIKey:     opts.APIKey,
			HTTPClient: opts.HTTPClient,
		}), nil

	case KindSDKChat:
		return openai_sdk.New(openai_sdk.Config{
			BaseURL:    opts.BaseURL,
			APIKey:     opts.APIKey,
			HTTPClient: opts.HTTPClient,
		}), nil

	default:
		return nil, fmt.Errorf("%w %q", ErrUnsupportedKind, opts.Kind)
	}
}
