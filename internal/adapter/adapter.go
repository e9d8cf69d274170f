// Package adapter sends one SoonPsy chat turn to an OpenAI-compatible
// provider and folds every outcome into a Result.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"soonpsy/internal/companion"
	"soonpsy/internal/metrics"
	"soonpsy/internal/providers"
	"soonpsy/internal/providers/registry"
)

const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 1024
)

// ProviderConfig is supplied by the caller on every call and is not kept
// past it.
type ProviderConfig struct {
	APIKey      string
	EndpointURL string
	Model       string
	Transport   string
}

type Config struct {
	HTTPClient *http.Client
	Logger     zerolog.Logger
	Metrics    *metrics.Metrics
}

type Adapter struct {
	httpClient *http.Client
	logger     zerolog.Logger
	metrics    *metrics.Metrics
	build      func(registry.BuildOptions) (providers.Provider, error)
}

func New(cfg Config) *Adapter {
	m := cfg.Metrics
	if m == nil {
		m = metrics.Global()
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	return &Adapter{
		httpClient: cfg.HTTPClient,
		logger:     cfg.Logger,
		metrics:    m,
		build:      registry.Build,
	}
}

// Send performs exactly one provider call. Every fault, including a
// provider panic, comes back as a Failure.
func (a *Adapter) Send(ctx context.Context, chatCtx *companion.Context, userMessage string, cfg ProviderConfig) (res Result) {
	start := time.Now()
	transport := registry.Normalize(cfg.Transport)
	log := a.logger.With().
		Str("request_id", uuid.NewString()).
		Str("transport", transport).
		Str("model", cfg.Model).
		Logger()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("panic", sanitize(fmt.Sprint(r), cfg.APIKey)).Msg("provider panicked")
			res = transportFailure()
		}
		a.observe(transport, res, time.Since(start))
	}()

	if strings.TrimSpace(cfg.APIKey) == "" || strings.TrimSpace(cfg.EndpointURL) == "" {
		log.Error().
			Bool("api_key_set", strings.TrimSpace(cfg.APIKey) != "").
			Bool("endpoint_set", strings.TrimSpace(cfg.EndpointURL) != "").
			Msg("provider config incomplete")
		return configFailure()
	}

	p, err := a.build(registry.BuildOptions{
		Kind:       transport,
		BaseURL:    cfg.EndpointURL,
		APIKey:     cfg.APIKey,
		HTTPClient: a.httpClient,
	})
	if err != nil {
		log.Error().Str("error", sanitize(err.Error(), cfg.APIKey)).Msg("build provider")
		return configFailure()
	}

	resp, err := p.Chat(ctx, providers.ChatRequest{
		Model:        cfg.Model,
		SystemPrompt: companion.SystemInstruction(chatCtx),
		UserPrompt:   userMessage,
		MaxTokens:    DefaultMaxTokens,
		Temperature:  DefaultTemperature,
	})
	if err != nil {
		var statusErr *providers.StatusError
		if errors.As(err, &statusErr) {
			log.Error().
				Int("status", statusErr.StatusCode).
				Str("body", sanitize(statusErr.Body, cfg.APIKey)).
				Dur("duration", time.Since(start)).
				Msg("provider returned error status")
			return httpFailure(statusErr.StatusCode)
		}
		log.Error().
			Str("error", sanitize(err.Error(), cfg.APIKey)).
			Dur("duration", time.Since(start)).
			Msg("chat request failed")
		return transportFailure()
	}

	log.Debug().Dur("duration", time.Since(start)).Int("reply_len", len(resp.Text)).Msg("chat request completed")
	return success(resp.Text)
}

// Ping sends a fixed greeting with no user context and reports whether a
// reply came back.
func (a *Adapter) Ping(ctx context.Context, cfg ProviderConfig) error {
	res := a.Send(ctx, nil, companion.ConnectionCheckMessage, cfg)
	if !res.OK() {
		return res.Err()
	}
	a.logger.Info().Str("transport", registry.Normalize(cfg.Transport)).Str("reply", truncate(res.Text, 200)).Msg("provider connection ok")
	return nil
}

func (a *Adapter) observe(transport string, res Result, elapsed time.Duration) {
	switch transport {
	case registry.KindHTTP, registry.KindSDKResponses, registry.KindSDKChat:
	default:
		transport = "unknown"
	}
	outcome := "success"
	if res.Failure != nil {
		outcome = string(res.Failure.Kind)
	}
	a.metrics.Requests.WithLabelValues(transport, outcome).Inc()
	a.metrics.RequestDuration.WithLabelValues(transport).Observe(elapsed.Seconds())
}
