// ABOUTME: Assistant gateway proxying chat prompts to a hosted text-generation endpoint
// ABOUTME: Every failure is turned into a fixed user-facing reply; callers never see an error

package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Fixed replies returned instead of errors.
const (
	FallbackTimeout     = "I'm taking longer than usual to respond. Please try again."
	FallbackUnavailable = "I'm experiencing technical difficulties. Please try again later."
	FallbackUnexpected  = "I encountered an unexpected error. Please try again."
	FallbackEmpty       = "I'm sorry, I couldn't generate a response. Please try again."
	FallbackDisabled    = "The assistant is not configured on this server."
)

var (
	errTimeout     = errors.New("upstream timed out")
	errUnavailable = errors.New("upstream unavailable")
	errMalformed   = errors.New("malformed upstream response")
	errEmpty       = errors.New("empty generation")
)

// Config configures the inference endpoint and generation parameters.
type Config struct {
	Endpoint     string
	APIToken     string
	Timeout      time.Duration
	MaxNewTokens int
	Temperature  float64
	TopP         float64
	HTTPClient   *http.Client
}

// Client calls the hosted model. It is safe for concurrent use.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

// New creates a Client. Pass nil logger for default.
func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		cfg:    cfg,
		http:   httpClient,
		logger: logger.With("component", "assistant"),
	}
}

// Enabled reports whether an API token is configured.
func (c *Client) Enabled() bool {
	return c.cfg.APIToken != ""
}

// Complete returns the model's reply to prompt, or one of the Fallback*
// strings if the call fails. It returns within the configured timeout.
func (c *Client) Complete(ctx context.Context, prompt string) string {
	if !c.Enabled() {
		return FallbackDisabled
	}

	start := time.Now()
	reply, err := c.generate(ctx, prompt)
	if err == nil {
		c.logger.Debug("assistant replied", "duration", time.Since(start), "chars", len(reply))
		return reply
	}

	c.logger.Warn("assistant request failed", "error", err, "duration", time.Since(start))
	switch {
	case errors.Is(err, errTimeout):
		return FallbackTimeout
	case errors.Is(err, errUnavailable):
		return FallbackUnavailable
	case errors.Is(err, errEmpty):
		return FallbackEmpty
	default:
		return FallbackUnexpected
	}
}

type generationParameters struct {
	MaxNewTokens   int     `json:"max_new_tokens"`
	Temperature    float64 `json:"temperature"`
	DoSample       bool    `json:"do_sample"`
	TopP           float64 `json:"top_p"`
	ReturnFullText bool    `json:"return_full_text"`
}

type generationRequest struct {
	Inputs     string               `json:"inputs"`
	Parameters generationParameters `json:"parameters"`
}

// FormatPrompt wraps a user message in the Human/Assistant turn format the
// model expects.
func FormatPrompt(message string) string {
	return "Human: " + message + "\n\nAssistant:"
}

func (c *Client) generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(generationRequest{
		Inputs: FormatPrompt(prompt),
		Parameters: generationParameters{
			MaxNewTokens:   c.cfg.MaxNewTokens,
			Temperature:    c.cfg.Temperature,
			DoSample:       true,
			TopP:           c.cfg.TopP,
			ReturnFullText: false,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal generation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", errUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)

	res, err := c.http.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", errTimeout
		}
		return "", fmt.Errorf("%w: %v", errUnavailable, err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", errTimeout
		}
		return "", fmt.Errorf("%w: read body: %v", errUnavailable, err)
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		snippet := string(raw)
		if len(snippet) > 512 {
			snippet = snippet[:512]
		}
		return "", fmt.Errorf("%w: status %d: %s", errUnavailable, res.StatusCode, strings.TrimSpace(snippet))
	}

	text, err := extractGeneratedText(raw)
	if err != nil {
		return "", err
	}

	text = cleanReply(text)
	if text == "" {
		return "", errEmpty
	}
	return text, nil
}

// extractGeneratedText understands the response shapes the inference API
// returns: [{"generated_text": ...}], {"generated_text": ...} and
// {"choices": [{"text": ...}]}.
func extractGeneratedText(raw []byte) (string, error) {
	if !gjson.ValidBytes(raw) {
		return "", errMalformed
	}

	result := gjson.ParseBytes(raw)
	switch {
	case result.IsArray():
		if len(result.Array()) == 0 {
			return "", errEmpty
		}
		return result.Get("0.generated_text").String(), nil
	case result.IsObject():
		if v := result.Get("generated_text"); v.Exists() {
			return v.String(), nil
		}
		return result.Get("choices.0.text").String(), nil
	default:
		return "", errMalformed
	}
}

// cleanReply strips an echoed prompt and surrounding whitespace.
func cleanReply(text string) string {
	if strings.Contains(text, "Human:") {
		if i := strings.LastIndex(text, "Assistant:"); i >= 0 {
			text = text[i+len("Assistant:"):]
		}
	}
	return strings.TrimSpace(text)
}
