package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/inbox-companion/internal/apperr"
	"github.com/nhle/inbox-companion/internal/model"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, mutate ...func(*model.LLMConfig)) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := model.LLMConfig{
		BaseURL:       srv.URL,
		Model:         "test-model",
		TimeoutSec:    5,
		MaxBodyChars:  100,
		Temperature:   0.2,
		NumCtx:        4096,
		AllowedLabels: []string{"Work", "finance"},
	}
	for _, m := range mutate {
		m(&cfg)
	}
	return New(cfg, nil)
}

func chatReply(content string) string {
	b, _ := json.Marshal(map[string]any{
		"model":             "test-model",
		"message":           map[string]string{"role": "assistant", "content": content},
		"done":              true,
		"prompt_eval_count": 321,
		"eval_count":        45,
	})
	return string(b)
}

func TestAnalyzeSendsChatRequest(t *testing.T) {
	var got chatRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(chatReply(`{"lang":"EN","bullets":["Invoice due"],"key_actions":["Pay invoice"],` +
			`"urgency":4,"importance":3,"labels":["Finance","spam"],"confidence":0.8,"notes":"ok"}`)))
	})

	a, err := c.Analyze(context.Background(), Request{
		Subject:   "Invoice #42",
		FromName:  "Billing",
		FromEmail: "billing@example.org",
		Body:      "Please pay the invoice.",
		Memory: []model.MemoryItem{
			{Kind: "vip", Key: "boss", Value: "alice@example.org"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "test-model", got.Model)
	assert.Equal(t, "json", got.Format)
	assert.False(t, got.Stream)
	assert.Equal(t, 4096, got.Options.NumCtx)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Contains(t, got.Messages[0].Content, "[VIP]\n- boss: alice@example.org")
	assert.Contains(t, got.Messages[1].Content, "Subject: Invoice #42")
	assert.Contains(t, got.Messages[1].Content, "ALLOWED_LABELS: [work, finance]")
	assert.NotContains(t, got.Messages[1].Content, "clipped")

	assert.Equal(t, "en", a.Lang)
	assert.Equal(t, []string{"Invoice due"}, a.Bullets)
	assert.Equal(t, 4, a.Urgency)
	assert.Equal(t, 3, a.Importance)
	assert.Equal(t, []string{"finance"}, a.Labels)
	assert.InDelta(t, 0.8, a.Confidence, 1e-9)
	assert.False(t, a.Truncated)
	assert.Equal(t, "test-model", a.Model)
	assert.Equal(t, 321, a.PromptTokens)
	assert.Equal(t, 45, a.CompletionTokens)
}

func TestAnalyzeTruncatesLongBodies(t *testing.T) {
	var got chatRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(chatReply(`{"urgency":1,"importance":1,"confidence":0.5}`)))
	})

	a, err := c.Analyze(context.Background(), Request{Body: strings.Repeat("word ", 100), Model: "other"})
	require.NoError(t, err)
	assert.True(t, a.Truncated)
	assert.Equal(t, "other", a.Model)
	assert.Equal(t, "other", got.Model)
	assert.Contains(t, got.Messages[1].Content, "NOTE: The body text was clipped.")
	assert.Empty(t, a.Bullets)
	assert.NotNil(t, a.Labels)
}

func TestAnalyzeValidationFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(chatReply(`{"bullets":["x"],"importance":2,"confidence":1}`)))
	})

	_, err := c.Analyze(context.Background(), Request{Body: "hi"})
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Contains(t, apperr.Message(err), "urgency")
}

func TestAnalyzeEmptyReply(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(chatReply("")))
	})

	_, err := c.Analyze(context.Background(), Request{Body: "hi"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestAnalyzeHTTPError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model 'test-model' not found"}`))
	})

	_, err := c.Analyze(context.Background(), Request{Body: "hi"})
	require.Error(t, err)
	assert.True(t, apperr.IsConnectivity(err))
	assert.Contains(t, err.Error(), "not found")
}

func TestAnalyzeTimeout(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)
	c.timeout = 50 * time.Millisecond

	_, err := c.Analyze(context.Background(), Request{Body: "hi"})
	require.Error(t, err)
	assert.True(t, apperr.IsConnectivity(err))
}

func TestAnalyzeBreakerFailsFast(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}, func(cfg *model.LLMConfig) {
		cfg.BreakerFailures = 2
		cfg.BreakerCooldownSec = 60
	})

	for range 2 {
		_, err := c.Analyze(context.Background(), Request{Body: "hi"})
		require.Error(t, err)
	}
	_, err := c.Analyze(context.Background(), Request{Body: "hi"})
	require.Error(t, err)
	assert.True(t, apperr.IsConnectivity(err))
	assert.ErrorIs(t, err, errBreakerOpen)
	assert.Equal(t, int32(2), calls.Load())
}

func TestListModels(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		_, _ = w.Write([]byte(`{"models":[{"name":"llama3.1:8b"},{"name":""},{"name":"qwen2.5:7b"}]}`))
	})

	names, err := c.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"llama3.1:8b", "qwen2.5:7b"}, names)
}

func TestListModelsUnreachable(t *testing.T) {
	c := New(model.LLMConfig{BaseURL: "http://127.0.0.1:1", TimeoutSec: 1}, nil)

	_, err := c.ListModels(context.Background())
	assert.True(t, apperr.IsConnectivity(err))
}
