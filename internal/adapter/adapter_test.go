package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"soonpsy/internal/companion"
	"soonpsy/internal/metrics"
	"soonpsy/internal/providers"
	"soonpsy/internal/providers/registry"
)

const testKey = "gsk_abcdefghijklmnopqrstuvwxyz012345"

func newTestAdapter(t *testing.T, logs io.Writer) (*Adapter, *metrics.Metrics) {
	t.Helper()
	if logs == nil {
		logs = io.Discard
	}
	m := metrics.New(prometheus.NewRegistry())
	a := New(Config{
		HTTPClient: &http.Client{Timeout: 2 * time.Second},
		Logger:     zerolog.New(logs),
		Metrics:    m,
	})
	return a, m
}

type chatBody struct {
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	Messages    []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func writeChoice(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":     "chatcmpl-1",
		"object": "chat.completion",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]string{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
	})
}

func TestSendSuccess(t *testing.T) {
	for _, transport := range []string{registry.KindHTTP, registry.KindSDKChat} {
		t.Run(transport, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeChoice(w, "X")
			}))
			defer srv.Close()

			a, m := newTestAdapter(t, nil)
			res := a.Send(context.Background(), nil, "hello", ProviderConfig{
				APIKey:      testKey,
				EndpointURL: srv.URL + "/openai/v1/chat/completions",
				Model:       "openai/gpt-oss-20b",
				Transport:   transport,
			})
			if !res.OK() {
				t.Fatalf("expected success, got %+v", res.Failure)
			}
			if res.Text != "X" {
				t.Fatalf("expected text X, got %q", res.Text)
			}
			if got := testutil.ToFloat64(m.Requests.WithLabelValues(transport, "success")); got != 1 {
				t.Fatalf("expected success counter 1, got %v", got)
			}
		})
	}
}

func TestSendResponsesTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/responses") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"resp_1","object":"response","status":"completed","output":[{"type":"message","id":"m1","role":"assistant","status":"completed","content":[{"type":"output_text","text":"Y","annotations":[]}]}]}`)
	}))
	defer srv.Close()

	a, _ := newTestAdapter(t, nil)
	res := a.Send(context.Background(), nil, "hello", ProviderConfig{
		APIKey:      testKey,
		EndpointURL: srv.URL + "/openai/v1",
		Model:       "openai/gpt-oss-20b",
		Transport:   registry.KindSDKResponses,
	})
	if !res.OK() || res.Text != "Y" {
		t.Fatalf("expected success Y, got text=%q failure=%+v", res.Text, res.Failure)
	}
}

func TestSendRequestShape(t *testing.T) {
	type captured struct {
		auth string
		body chatBody
	}
	seen := make(chan captured, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var c captured
		c.auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&c.body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		seen <- c
		writeChoice(w, "ok")
	}))
	defer srv.Close()

	a, _ := newTestAdapter(t, nil)
	res := a.Send(context.Background(), &companion.Context{Mood: "tired", RestHours: 5, Gratitude: "friends"}, "I can't sleep", ProviderConfig{
		APIKey:      testKey,
		EndpointURL: srv.URL,
		Model:       "openai/gpt-oss-20b",
	})
	if !res.OK() {
		t.Fatalf("expected success, got %+v", res.Failure)
	}
	c := <-seen
	auth, got := c.auth, c.body
	if auth != "Bearer "+testKey {
		t.Fatalf("unexpected authorization %q", auth)
	}
	if got.Model != "openai/gpt-oss-20b" || got.Temperature != DefaultTemperature || got.MaxTokens != DefaultMaxTokens {
		t.Fatalf("unexpected request %+v", got)
	}
	if len(got.Messages) != 2 {
		t.Fatalf("expected system and user messages, got %d", len(got.Messages))
	}
	system := got.Messages[0].Content
	for _, want := range []string{"Mood: tired", "Pet Sleep: 5 hours", "Gratitude: friends"} {
		if !strings.Contains(system, want) {
			t.Fatalf("system message missing %q:\n%s", want, system)
		}
	}
	if got.Messages[1].Role != "user" || got.Messages[1].Content != "I can't sleep" {
		t.Fatalf("unexpected user message %+v", got.Messages[1])
	}
}

func TestSendHTTPError(t *testing.T) {
	for _, transport := range []string{registry.KindHTTP, registry.KindSDKChat, registry.KindSDKResponses} {
		t.Run(transport, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = io.WriteString(w, `{"error":{"message":"upstream exploded","type":"server_error"}}`)
			}))
			defer srv.Close()

			a, m := newTestAdapter(t, nil)
			res := a.Send(context.Background(), nil, "hello", ProviderConfig{
				APIKey:      testKey,
				EndpointURL: srv.URL,
				Model:       "m",
				Transport:   transport,
			})
			if res.OK() {
				t.Fatalf("expected failure")
			}
			if res.Failure.Kind != KindHTTPError {
				t.Fatalf("expected http error, got %s", res.Failure.Kind)
			}
			if res.Failure.Message != "HTTP error! status: 500" {
				t.Fatalf("unexpected message %q", res.Failure.Message)
			}
			if got := testutil.ToFloat64(m.Requests.WithLabelValues(transport, string(KindHTTPError))); got != 1 {
				t.Fatalf("expected http_error counter 1, got %v", got)
			}
		})
	}
}

func TestSendUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := srv.URL
	srv.Close()

	a, _ := newTestAdapter(t, nil)
	res := a.Send(context.Background(), nil, "hello", ProviderConfig{APIKey: testKey, EndpointURL: endpoint, Model: "m"})
	if res.OK() {
		t.Fatalf("expected failure")
	}
	if res.Failure.Kind != KindTransportError || res.Failure.Message != "Unable to process request." {
		t.Fatalf("unexpected failure %+v", res.Failure)
	}
}

func TestSendTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	a := New(Config{
		HTTPClient: &http.Client{Timeout: 50 * time.Millisecond},
		Logger:     zerolog.Nop(),
		Metrics:    metrics.New(prometheus.NewRegistry()),
	})
	res := a.Send(context.Background(), nil, "hello", ProviderConfig{APIKey: testKey, EndpointURL: srv.URL, Model: "m"})
	if res.OK() || res.Failure.Kind != KindTransportError {
		t.Fatalf("expected transport error, got %+v", res)
	}
	if res.Failure.Message != MessageTransportError {
		t.Fatalf("unexpected message %q", res.Failure.Message)
	}
}

func TestSendMalformedResponse(t *testing.T) {
	cases := map[string]string{
		"not json":        `<html>oops</html>`,
		"no choices":      `{"choices":[]}`,
		"missing content": `{"choices":[{"message":{"role":"assistant"}}]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, body)
			}))
			defer srv.Close()

			a, _ := newTestAdapter(t, nil)
			res := a.Send(context.Background(), nil, "hello", ProviderConfig{APIKey: testKey, EndpointURL: srv.URL, Model: "m"})
			if res.OK() || res.Failure.Kind != KindTransportError {
				t.Fatalf("expected transport error, got %+v", res)
			}
		})
	}
}

func TestNewLeavesClientTimeoutToCaller(t *testing.T) {
	a := New(Config{Logger: zerolog.Nop(), Metrics: metrics.New(prometheus.NewRegistry())})
	if a.httpClient == nil || a.httpClient.Timeout != 0 {
		t.Fatalf("expected default client without timeout, got %+v", a.httpClient)
	}
}

func TestSendEmptyContentIsSuccess(t *testing.T) {
	for _, transport := range []string{registry.KindHTTP, registry.KindSDKChat, registry.KindSDKResponses} {
		t.Run(transport, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if strings.HasSuffix(r.URL.Path, "/responses") {
					w.Header().Set("Content-Type", "application/json")
					_, _ = io.WriteString(w, `{"id":"resp_1","object":"response","status":"completed","output":[{"type":"message","id":"m1","role":"assistant","status":"completed","content":[{"type":"output_text","text":"","annotations":[]}]}]}`)
					return
				}
				writeChoice(w, "")
			}))
			defer srv.Close()

			a, m := newTestAdapter(t, nil)
			res := a.Send(context.Background(), nil, "hello", ProviderConfig{
				APIKey:      testKey,
				EndpointURL: srv.URL + "/openai/v1",
				Model:       "m",
				Transport:   transport,
			})
			if !res.OK() {
				t.Fatalf("expected success for empty content, got %+v", res.Failure)
			}
			if res.Text != "" {
				t.Fatalf("expected empty text, got %q", res.Text)
			}
			if got := testutil.ToFloat64(m.Requests.WithLabelValues(transport, "success")); got != 1 {
				t.Fatalf("expected success counter 1, got %v", got)
			}
		})
	}
}

func TestSendHTTPTransportSpeaksResponsesOnResponsesEndpoint(t *testing.T) {
	bodies := make(chan map[string]any, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/responses" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		bodies <- body
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"output_text":"hello"}`)
	}))
	defer srv.Close()

	a, _ := newTestAdapter(t, nil)
	res := a.Send(context.Background(), &companion.Context{Mood: "calm"}, "hi", ProviderConfig{
		APIKey:      testKey,
		EndpointURL: srv.URL + "/v1/responses",
		Model:       "m",
		Transport:   registry.KindHTTP,
	})
	if !res.OK() || res.Text != "hello" {
		t.Fatalf("expected success hello, got text=%q failure=%+v", res.Text, res.Failure)
	}
	body := <-bodies
	if _, ok := body["messages"]; ok {
		t.Fatalf("chat completions payload sent to responses endpoint: %v", body)
	}
	if body["input"] != "hi" {
		t.Fatalf("unexpected input %#v", body["input"])
	}
	if instr, _ := body["instructions"].(string); !strings.Contains(instr, "Mood: calm") {
		t.Fatalf("unexpected instructions %#v", body["instructions"])
	}
	if body["max_output_tokens"] != float64(DefaultMaxTokens) {
		t.Fatalf("unexpected max_output_tokens %#v", body["max_output_tokens"])
	}
}

func TestSendMissingConfigFailsFast(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeChoice(w, "should not happen")
	}))
	defer srv.Close()

	a, m := newTestAdapter(t, nil)
	for _, cfg := range []ProviderConfig{
		{APIKey: "", EndpointURL: srv.URL, Model: "m"},
		{APIKey: "   ", EndpointURL: srv.URL, Model: "m"},
		{APIKey: testKey, EndpointURL: "", Model: "m"},
		{APIKey: testKey, EndpointURL: srv.URL, Model: "m", Transport: "smoke_signals"},
	} {
		res := a.Send(context.Background(), nil, "hello", cfg)
		if res.OK() || res.Failure.Kind != KindConfigError {
			t.Fatalf("expected config error for %+v, got %+v", cfg, res)
		}
		if res.Failure.Message != MessageConfigError {
			t.Fatalf("unexpected message %q", res.Failure.Message)
		}
	}
	if n := hits.Load(); n != 0 {
		t.Fatalf("expected no requests, got %d", n)
	}
	if got := testutil.ToFloat64(m.Requests.WithLabelValues("unknown", string(KindConfigError))); got != 1 {
		t.Fatalf("expected unknown transport to be labelled unknown, got %v", got)
	}
}

type panickyProvider struct{}

func (panickyProvider) Chat(context.Context, providers.ChatRequest) (providers.ChatResponse, error) {
	panic("nil map write")
}

func TestSendRecoversProviderPanic(t *testing.T) {
	a, _ := newTestAdapter(t, nil)
	a.build = func(registry.BuildOptions) (providers.Provider, error) {
		return panickyProvider{}, nil
	}
	res := a.Send(context.Background(), nil, "hello", ProviderConfig{APIKey: testKey, EndpointURL: "https://example.test", Model: "m"})
	if res.OK() || res.Failure.Kind != KindTransportError {
		t.Fatalf("expected transport error, got %+v", res)
	}
}

func TestSendConcurrentCallsDoNotCrossTalk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body chatBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		// Stagger replies so responses complete out of order.
		last := body.Messages[len(body.Messages)-1].Content
		time.Sleep(time.Duration(len(last)%5) * 5 * time.Millisecond)
		writeChoice(w, "echo: "+last)
	}))
	defer srv.Close()

	a, _ := newTestAdapter(t, nil)
	cfg := ProviderConfig{APIKey: testKey, EndpointURL: srv.URL, Model: "m"}

	const n = 16
	results := make([]Result, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = a.Send(context.Background(), nil, fmt.Sprintf("message-%d%s", i, strings.Repeat("!", i)), cfg)
		}(i)
	}
	wg.Wait()

	for i, res := range results {
		want := fmt.Sprintf("echo: message-%d%s", i, strings.Repeat("!", i))
		if !res.OK() || res.Text != want {
			t.Fatalf("call %d: expected %q, got text=%q failure=%+v", i, want, res.Text, res.Failure)
		}
	}
}

func TestSendRedactsSecretsFromLogs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"Invalid API Key: `+testKey+`"}}`)
	}))
	defer srv.Close()

	var logs bytes.Buffer
	a, _ := newTestAdapter(t, &logs)
	res := a.Send(context.Background(), nil, "hello", ProviderConfig{APIKey: testKey, EndpointURL: srv.URL, Model: "m"})
	if res.OK() || res.Failure.Kind != KindHTTPError || res.Failure.Message != "HTTP error! status: 401" {
		t.Fatalf("unexpected result %+v", res)
	}
	if strings.Contains(logs.String(), testKey) {
		t.Fatalf("api key leaked into logs: %s", logs.String())
	}
	if !strings.Contains(logs.String(), `"status":401`) {
		t.Fatalf("expected status in logs: %s", logs.String())
	}
	if strings.Contains(res.Failure.Message, "Invalid API Key") {
		t.Fatalf("provider detail leaked to caller: %q", res.Failure.Message)
	}
}

func TestPing(t *testing.T) {
	seen := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body chatBody
		_ = json.NewDecoder(r.Body).Decode(&body)
		seen <- body.Messages[len(body.Messages)-1].Content
		writeChoice(w, "Yes, I can hear you.")
	}))
	defer srv.Close()

	a, _ := newTestAdapter(t, nil)
	if err := a.Ping(context.Background(), ProviderConfig{APIKey: testKey, EndpointURL: srv.URL, Model: "m"}); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if msg := <-seen; msg != companion.ConnectionCheckMessage {
		t.Fatalf("unexpected ping message %q", msg)
	}

	err := a.Ping(context.Background(), ProviderConfig{EndpointURL: srv.URL, Model: "m"})
	if err == nil || err.Error() != MessageConfigError {
		t.Fatalf("expected config failure, got %v", err)
	}
}
