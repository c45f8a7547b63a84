// Package openai implements ports.Planner over any OpenAI-compatible
// chat-completions endpoint using function calling.
package openai

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

	"github.com/aretw0/tally/internal/logging"
	"github.com/aretw0/tally/pkg/domain"
	"github.com/aretw0/tally/pkg/ports"
)

const (
	// DefaultBaseURL is the public OpenAI API.
	DefaultBaseURL = "https://api.openai.com/v1"
	// DefaultMaxTokens caps the completion length.
	DefaultMaxTokens = 1024
)

// DefaultSystemPrompt instructs the model to act through the declared actions.
const DefaultSystemPrompt = `You are a CRM assistant. You record tasks, deals and expenses for the user.
Use the provided functions to make changes; never claim a change you did not make.
When an action fails, explain the failure to the user instead of retrying blindly.
Answer briefly once everything requested is done.`

// ErrEmptyResponse is returned when the endpoint answers without any choice.
var ErrEmptyResponse = errors.New("empty choices in response")

// Planner calls an OpenAI-compatible /chat/completions endpoint.
type Planner struct {
	baseURL      string
	model        string
	apiKey       string
	systemPrompt string
	maxTokens    int
	temperature  float64
	headers      map[string]string
	client       *http.Client
	now          func() time.Time
	logger       *slog.Logger
}

// Option configures the Planner.
type Option func(*Planner)

// WithAPIKey sets the bearer token.
func WithAPIKey(key string) Option {
	return func(p *Planner) {
		p.apiKey = key
	}
}

// WithSystemPrompt replaces DefaultSystemPrompt.
func WithSystemPrompt(prompt string) Option {
	return func(p *Planner) {
		p.systemPrompt = prompt
	}
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) Option {
	return func(p *Planner) {
		if n > 0 {
			p.maxTokens = n
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(p *Planner) {
		p.temperature = t
	}
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) Option {
	return func(p *Planner) {
		p.headers[key] = value
	}
}

// WithHTTPClient replaces the default client. Timeouts are normally enforced
// by the engine through the context.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Planner) {
		p.client = c
	}
}

// WithClock overrides the clock used for the date line of the system prompt.
func WithClock(now func() time.Time) Option {
	return func(p *Planner) {
		p.now = now
	}
}

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Planner) {
		p.logger = logger
	}
}

// New creates a Planner for model at baseURL (DefaultBaseURL when empty).
func New(baseURL, model string, opts ...Option) (*Planner, error) {
	if strings.TrimSpace(model) == "" {
		return nil, errors.New("model is required")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	p := &Planner{
		baseURL:      strings.TrimRight(baseURL, "/"),
		model:        model,
		systemPrompt: DefaultSystemPrompt,
		maxTokens:    DefaultMaxTokens,
		headers:      map[string]string{},
		client:       &http.Client{Timeout: 120 * time.Second},
		now:          time.Now,
		logger:       logging.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

var _ ports.Planner = (*Planner)(nil)

// Model returns the configured model name.
func (p *Planner) Model() string { return p.model }

// Plan sends the conversation and the action definitions and maps the first
// choice back to a domain.PlannerResponse.
func (p *Planner) Plan(ctx context.Context, req ports.PlanRequest) (domain.PlannerResponse, error) {
	body := map[string]any{
		"model":       p.model,
		"messages":    p.wireMessages(req.Messages),
		"max_tokens":  p.maxTokens,
		"temperature": p.temperature,
	}
	if len(req.Actions) > 0 {
		body["tools"] = wireTools(req.Actions)
		body["tool_choice"] = "auto"
	}

	data, err := json.Marshal(body)
	if err != nil {
		return domain.PlannerResponse{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return domain.PlannerResponse{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	for k, v := range p.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return domain.PlannerResponse{}, fmt.Errorf("HTTP request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.PlannerResponse{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.PlannerResponse{}, fmt.Errorf("HTTP %d: %s", resp.StatusCode, friendlyHTTPError(resp.StatusCode, raw))
	}
	return p.parse(raw)
}

func (p *Planner) systemMessage() map[string]any {
	content := p.systemPrompt
	if content != "" {
		content += "\n\n"
	}
	content += "Today is " + p.now().Format("2006-01-02 (Monday)") + "."
	return map[string]any{"role": "system", "content": content}
}

// wireMessages converts the conversation to the chat-completions message list.
func (p *Planner) wireMessages(msgs []domain.Message) []map[string]any {
	out := make([]map[string]any, 0, len(msgs)+1)
	out = append(out, p.systemMessage())
	for _, m := range msgs {
		switch m.Kind {
		case domain.KindUserText:
			out = append(out, map[string]any{"role": "user", "content": m.Text})
		case domain.KindAssistantText:
			out = append(out, map[string]any{"role": "assistant", "content": m.Text})
		case domain.KindActionRequest:
			calls := make([]map[string]any, len(m.Calls))
			for i, c := range m.Calls {
				args, err := json.Marshal(c.Args)
				if err != nil || c.Args == nil {
					args = []byte("{}")
				}
				calls[i] = map[string]any{
					"id":   c.ID,
					"type": "function",
					"function": map[string]any{
						"name":      c.Name,
						"arguments": string(args),
					},
				}
			}
			// Strict providers require "content" even for tool-call-only messages.
			var content any
			if m.Text != "" {
				content = m.Text
			}
			out = append(out, map[string]any{"role": "assistant", "content": content, "tool_calls": calls})
		case domain.KindActionResult:
			if m.Result == nil {
				continue
			}
			out = append(out, map[string]any{
				"role":         "tool",
				"tool_call_id": m.Result.CallID,
				"name":         m.Result.Name,
				"content":      m.Result.Outcome.String(),
			})
		}
	}
	return out
}

func wireTools(defs []domain.ActionDefinition) []map[string]any {
	out := make([]map[string]any, len(defs))
	for i, d := range defs {
		params := d.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out[i] = map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        d.Name,
				"description": d.Description,
				"parameters":  params,
			},
		}
	}
	return out
}

// respBody is the subset of the chat completion response we care about.
type respBody struct {
	Choices []struct {
		Message struct {
			Content   any `json:"content"`
			ToolCalls []struct {
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

func (p *Planner) parse(raw []byte) (domain.PlannerResponse, error) {
	var body respBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return domain.PlannerResponse{}, fmt.Errorf("parse response: %w", err)
	}
	if len(body.Choices) == 0 {
		return domain.PlannerResponse{}, ErrEmptyResponse
	}

	msg := body.Choices[0].Message
	text, _ := msg.Content.(string)

	if len(msg.ToolCalls) == 0 {
		return domain.Final(text), nil
	}

	calls := make([]domain.ActionCall, 0, len(msg.ToolCalls))
	for _, tc := range msg.ToolCalls {
		args, err := repairJSON(tc.Function.Arguments)
		if err != nil {
			p.logger.Warn("failed to parse action arguments", "action", tc.Function.Name, "err", err)
			args = map[string]any{}
		}
		calls = append(calls, domain.ActionCall{ID: tc.ID, Name: tc.Function.Name, Args: args})
	}
	return domain.RequestActions(calls, text), nil
}

// repairJSON unmarshals the arguments object, retrying after trimming
// trailing garbage some models emit.
func repairJSON(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}, nil
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err == nil {
		return out, nil
	}

	stripped := strings.TrimRight(raw, " \t\n\r}]")
	if !strings.HasSuffix(stripped, "}") {
		stripped += "}"
	}
	if err := json.Unmarshal([]byte(stripped), &out); err == nil {
		return out, nil
	}

	if i := strings.LastIndex(raw, "}"); i >= 0 {
		if err := json.Unmarshal([]byte(raw[:i+1]), &out); err == nil {
			return out, nil
		}
	}
	return nil, fmt.Errorf("cannot repair JSON: %s", raw)
}

func friendlyHTTPError(code int, body []byte) string {
	if code == http.StatusTooManyRequests {
		return "rate limit exceeded"
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 300 {
		s = s[:300]
	}
	return s
}
