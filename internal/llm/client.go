// Package llm talks to a local Ollama endpoint to produce a validated
// structured analysis of one message.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/inbox-companion/internal/apperr"
	"github.com/nhle/inbox-companion/internal/logging"
	"github.com/nhle/inbox-companion/internal/metrics"
	"github.com/nhle/inbox-companion/internal/model"
)

const (
	defaultBaseURL      = "http://127.0.0.1:11434"
	defaultModel        = "llama3.1:8b"
	defaultTimeout      = 300 * time.Second
	defaultMaxBodyChars = 12000
	defaultNumCtx       = 8192

	// maxErrorBody bounds how much of a failed response is kept in the
	// error message.
	maxErrorBody = 512
)

// Request is the content of one message to analyze.
type Request struct {
	Subject   string
	FromName  string
	FromEmail string
	Date      time.Time
	Body      string

	// Model overrides the configured model when set.
	Model  string
	Memory []model.MemoryItem
}

// Client is a stateless adapter over the Ollama chat API. It performs no
// retries.
type Client struct {
	baseURL       string
	model         string
	timeout       time.Duration
	maxBodyChars  int
	temperature   float64
	numCtx        int
	allowedLabels []string

	http    *http.Client
	breaker *breaker
	logger  *zap.Logger
}

// New creates a Client from cfg.
func New(cfg model.LLMConfig, logger *zap.Logger) *Client {
	c := &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		model:         cfg.Model,
		timeout:       cfg.Timeout(),
		maxBodyChars:  cfg.MaxBodyChars,
		temperature:   cfg.Temperature,
		numCtx:        cfg.NumCtx,
		allowedLabels: normalizeAllowed(cfg.AllowedLabels),
		http:          &http.Client{},
		breaker:       newBreaker(cfg.BreakerFailures, time.Duration(cfg.BreakerCooldownSec)*time.Second),
		logger:        logging.OrNop(logger).Named("llm"),
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	if c.model == "" {
		c.model = defaultModel
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	if c.maxBodyChars <= 0 {
		c.maxBodyChars = defaultMaxBodyChars
	}
	if c.numCtx <= 0 {
		c.numCtx = defaultNumCtx
	}
	return c
}

// Model returns the default model identifier.
func (c *Client) Model() string { return c.model }

// Analyze sends req to the model and returns the validated analysis.
// Transport failures, timeouts and non-2xx replies are connectivity
// errors; a reply that does not satisfy the analysis contract is a
// validation error.
func (c *Client) Analyze(ctx context.Context, req Request) (*Analysis, error) {
	modelName := req.Model
	if modelName == "" {
		modelName = c.model
	}

	body, truncated := TruncateBody(req.Body, c.maxBodyChars)
	system := SystemPrompt(MemoryBlock(req.Memory, maxMemoryChars))
	user := UserPrompt(c.allowedLabels, req, body, truncated)

	reply, err := c.chat(ctx, modelName, system, user)
	if err != nil {
		return nil, err
	}

	a, err := ParseAnalysis(reply.content(), c.allowedLabels)
	if err != nil {
		c.logger.Warn("model reply rejected",
			zap.String("model", modelName),
			zap.Error(err),
		)
		return nil, err
	}

	a.Truncated = truncated
	a.Model = modelName
	a.PromptTokens = reply.PromptEvalCount
	a.CompletionTokens = reply.EvalCount
	return a, nil
}

// ListModels returns the names of the models installed on the endpoint.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RecordLLMCall("tags", "error", time.Since(start))
		return nil, apperr.Connectivity("llm.tags", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.RecordLLMCall("tags", "error", time.Since(start))
		return nil, apperr.Connectivity("llm.tags", fmt.Errorf("reading response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		metrics.RecordLLMCall("tags", "error", time.Since(start))
		return nil, statusError("llm.tags", resp.StatusCode, respBody)
	}
	metrics.RecordLLMCall("tags", "ok", time.Since(start))

	var tags tagsResponse
	if err := json.Unmarshal(respBody, &tags); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "llm.tags", err, "invalid model list")
	}

	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		if m.Name != "" {
			names = append(names, m.Name)
		}
	}
	return names, nil
}

// chat makes a single non-streaming call to /api/chat with JSON output
// requested. The call is bounded by the client timeout.
func (c *Client) chat(ctx context.Context, modelName, system, user string) (*chatResponse, error) {
	if !c.breaker.allow() {
		return nil, apperr.Wrap(apperr.KindConnectivity, "llm.chat", errBreakerOpen,
			"model endpoint unavailable, skipping call")
	}

	reply, err := c.doChat(ctx, modelName, system, user)
	c.breaker.record(apperr.IsConnectivity(err))
	return reply, err
}

func (c *Client) doChat(ctx context.Context, modelName, system, user string) (*chatResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	bodyBytes, err := json.Marshal(chatRequest{
		Model: modelName,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Stream: false,
		Format: "json",
		Options: chatOptions{
			Temperature: c.temperature,
			NumCtx:      c.numCtx,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		status := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			status = "timeout"
		}
		metrics.RecordLLMCall("chat", status, time.Since(start))
		return nil, apperr.Connectivity("llm.chat", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.RecordLLMCall("chat", "error", time.Since(start))
		return nil, apperr.Connectivity("llm.chat", fmt.Errorf("reading response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		metrics.RecordLLMCall("chat", "error", time.Since(start))
		return nil, statusError("llm.chat", resp.StatusCode, respBody)
	}
	metrics.RecordLLMCall("chat", "ok", time.Since(start))

	var result chatResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "llm.chat", err, "undecodable response envelope")
	}
	metrics.RecordLLMTokens(result.PromptEvalCount, result.EvalCount)

	c.logger.Debug("chat complete",
		zap.String("model", modelName),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("prompt_tokens", result.PromptEvalCount),
		zap.Int("completion_tokens", result.EvalCount),
	)
	return &result, nil
}

func statusError(op string, code int, body []byte) error {
	text := strings.TrimSpace(string(body))
	var apiErr struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
		text = apiErr.Error
	}
	if len(text) > maxErrorBody {
		text = text[:maxErrorBody]
	}
	return apperr.Wrap(apperr.KindConnectivity, op,
		fmt.Errorf("HTTP %d: %s", code, text), "model endpoint returned an error")
}

// --- Ollama API types ---

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Format   string        `json:"format,omitempty"`
	Options  chatOptions   `json:"options"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatOptions struct {
	Temperature float64 `json:"temperature"`
	NumCtx      int     `json:"num_ctx"`
}

type chatResponse struct {
	Model           string      `json:"model"`
	Message         chatMessage `json:"message"`
	Response        string      `json:"response"`
	PromptEvalCount int         `json:"prompt_eval_count"`
	EvalCount       int         `json:"eval_count"`
}

// content returns the assistant text, falling back to the generate-style
// response field.
func (r *chatResponse) content() string {
	if r.Message.Content != "" {
		return r.Message.Content
	}
	return r.Response
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}
