// Package genai provides the client side of the text-generation collaborator.
//
// The primary responder forwards the user message and conversation history to
// an external HTTP endpoint; this service never constructs prompts. An
// OpenAI-backed responder is available as a direct fallback for deployments
// without that endpoint.
package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Turn is one prior exchange forwarded as conversation history.
type Turn struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// Request is the payload sent to the text-generation collaborator.
type Request struct {
	Message string `json:"message"`
	BotID   string `json:"botId"`
	History []Turn `json:"conversationHistory,omitempty"`
}

// Responder produces a reply for a message. An empty reply with a nil error
// means "do not respond"; callers send nothing in that case.
type Responder interface {
	Respond(ctx context.Context, req Request) (string, error)
}

// DefaultHTTPTimeout bounds one generation call.
const DefaultHTTPTimeout = 30 * time.Second

// Opts holds configuration options for responders.
type Opts struct {
	URL     string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Option configures responder creation.
type Option func(*Opts)

// WithURL sets the collaborator endpoint URL.
func WithURL(url string) Option {
	return func(o *Opts) { o.URL = url }
}

// WithAPIKey sets the OpenAI API key for the fallback responder.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel overrides the fallback responder's model.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// WithTimeout overrides the HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// HTTPResponder calls the external text-generation endpoint.
type HTTPResponder struct {
	url    string
	client *http.Client
}

// NewHTTPResponder creates a responder against the configured endpoint URL.
func NewHTTPResponder(opts ...Option) (*HTTPResponder, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("genai endpoint URL not set")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultHTTPTimeout
	}
	return &HTTPResponder{
		url:    cfg.URL,
		client: &http.Client{Timeout: timeout},
	}, nil
}

// replyPayload is the collaborator's response shape.
type replyPayload struct {
	Reply string `json:"reply"`
	Error string `json:"error"`
}

// Respond posts the request and returns the reply text. Collaborator-side
// errors come back as normal errors; the caller treats them as "no response".
func (r *HTTPResponder) Respond(ctx context.Context, req Request) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal genai request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build genai request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("genai call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("genai endpoint returned status %d", resp.StatusCode)
	}
	var payload replyPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode genai response: %w", err)
	}
	if payload.Error != "" {
		return "", fmt.Errorf("genai endpoint error: %s", payload.Error)
	}
	return payload.Reply, nil
}

// OpenAIResponder generates replies directly through the OpenAI API. The
// conversation history is forwarded verbatim; no prompt is constructed here.
type OpenAIResponder struct {
	client openai.Client
	model  string
}

// NewOpenAIResponder creates the fallback responder from an API key.
func NewOpenAIResponder(opts ...Option) (*OpenAIResponder, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key not set")
	}
	model := cfg.Model
	if model == "" {
		model = openai.ChatModelGPT4oMini
	}
	return &OpenAIResponder{
		client: openai.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:  model,
	}, nil
}

// Respond forwards the history and message as a chat completion.
func (r *OpenAIResponder) Respond(ctx context.Context, req Request) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.History)+1)
	for _, turn := range req.History {
		if turn.Role == "assistant" {
			messages = append(messages, openai.AssistantMessage(turn.Content))
		} else {
			messages = append(messages, openai.UserMessage(turn.Content))
		}
	}
	messages = append(messages, openai.UserMessage(req.Message))

	completion, err := r.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    r.model,
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("openai completion failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}
	return completion.Choices[0].Message.Content, nil
}
