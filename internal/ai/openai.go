// README: OpenAI-compatible chat completions client (openai, siliconflow, custom): SSE streaming and JSON mode.
package ai

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
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"chatmap/internal/types"
)

// maxErrorBody caps how much of a failed response body is kept for the user-facing message.
const maxErrorBody = 2048

type OpenAIClient struct {
	http *http.Client
	log  logrus.FieldLogger
}

// NewOpenAIClient returns a client using hc, or a default client without an overall
// timeout (streams can run for minutes; cancellation comes from ctx).
func NewOpenAIClient(hc *http.Client, log logrus.FieldLogger) *OpenAIClient {
	if hc == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.ResponseHeaderTimeout = 60 * time.Second
		hc = &http.Client{Transport: transport}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &OpenAIClient{http: hc, log: log}
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	Stream         bool            `json:"stream,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type       string            `json:"type"`
	JSONSchema *jsonSchemaFormat `json:"json_schema,omitempty"`
}

type jsonSchemaFormat struct {
	Name   string          `json:"name"`
	Schema json.RawMessage `json:"schema"`
	Strict bool            `json:"strict"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

// ChatStream posts a streaming completion and returns a stream over the SSE body.
func (c *OpenAIClient) ChatStream(ctx context.Context, msgs []types.Message, cfg EndpointConfig) (FragmentStream, error) {
	cfg = cfg.Normalized()
	req, err := c.newRequest(ctx, cfg, chatRequest{
		Model:       cfg.Model,
		Messages:    toChatMessages(msgs),
		Temperature: cfg.Temperature,
		Stream:      true,
	})
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.do(ctx, req, "stream")
	if err != nil {
		return nil, err
	}
	c.log.WithFields(logrus.Fields{"provider": cfg.Provider, "model": cfg.Model}).Debug("openai: stream opened")
	return &sseStream{ctx: ctx, body: resp.Body, dec: newSSEDecoder(resp.Body)}, nil
}

// ChatExtract posts a non-streaming completion constrained to JSON output.
func (c *OpenAIClient) ChatExtract(ctx context.Context, msgs []types.Message, cfg EndpointConfig, opts ExtractOptions) (string, error) {
	cfg = cfg.Normalized()
	format := &responseFormat{Type: "json_object"}
	if cfg.StructuredOutput && len(opts.Schema) > 0 {
		name := opts.SchemaName
		if name == "" {
			name = "extraction"
		}
		format = &responseFormat{
			Type:       "json_schema",
			JSONSchema: &jsonSchemaFormat{Name: name, Schema: opts.Schema, Strict: false},
		}
	}

	req, err := c.newRequest(ctx, cfg, chatRequest{
		Model:          cfg.Model,
		Messages:       toChatMessages(msgs),
		Temperature:    cfg.Temperature,
		ResponseFormat: format,
	})
	if err != nil {
		return "", err
	}

	resp, err := c.do(ctx, req, "extract")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return "", ErrCancelled
		}
		return "", &NetworkError{Op: "extract", Err: fmt.Errorf("read response: %w", err)}
	}

	var cr chatResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return "", &NetworkError{Op: "extract", Body: truncate(string(body)), Err: fmt.Errorf("unmarshal response: %w", err)}
	}
	if cr.Error != nil {
		return "", &NetworkError{Op: "extract", Err: fmt.Errorf("api error: %s", cr.Error.Message)}
	}
	if len(cr.Choices) == 0 || strings.TrimSpace(cr.Choices[0].Message.Content) == "" {
		return "", &NetworkError{Op: "extract", Err: errors.New("endpoint returned empty content")}
	}
	return CleanJSON(cr.Choices[0].Message.Content), nil
}

func (c *OpenAIClient) newRequest(ctx context.Context, cfg EndpointConfig, body chatRequest) (*http.Request, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("openai: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.BaseURL+"/chat/completions", bytes.NewReader(raw))
	if err != nil {
		return nil, &ConfigError{Provider: cfg.Provider, Reason: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	return req, nil
}

// do sends req and turns transport failures and non-2xx statuses into typed errors.
func (c *OpenAIClient) do(ctx context.Context, req *http.Request, op string) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ErrCancelled
		}
		return nil, &NetworkError{Op: op, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &NetworkError{Op: op, StatusCode: resp.StatusCode, Body: errorMessage(snippet)}
	}
	return resp, nil
}

type sseStream struct {
	ctx  context.Context
	body io.ReadCloser
	dec  *sseDecoder
	done bool
}

func (s *sseStream) Recv() (string, error) {
	for {
		if s.done {
			return "", io.EOF
		}
		if s.ctx.Err() != nil {
			return "", ErrCancelled
		}
		ev, err := s.dec.Next()
		if err != nil {
			if s.ctx.Err() != nil {
				return "", ErrCancelled
			}
			if errors.Is(err, io.EOF) {
				return "", &NetworkError{Op: "stream", Err: ErrStreamTruncated}
			}
			return "", &NetworkError{Op: "stream", Err: err}
		}
		if strings.TrimSpace(ev.Data) == doneSentinel {
			s.done = true
			return "", io.EOF
		}
		frag, ok, err := decodeChunk(ev.Data)
		if err != nil {
			return "", &NetworkError{Op: "stream", Err: err}
		}
		if ok {
			return frag, nil
		}
	}
}

func (s *sseStream) Close() error {
	s.done = true
	return s.body.Close()
}

// decodeChunk extracts the content delta from one event payload.
// Payloads that are not JSON objects are returned verbatim.
func decodeChunk(data string) (string, bool, error) {
	if strings.TrimSpace(data) == "" {
		return "", false, nil
	}
	var chunk streamChunk
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		return data, true, nil
	}
	if chunk.Error != nil {
		return "", false, fmt.Errorf("api error: %s", chunk.Error.Message)
	}
	if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
		return "", false, nil
	}
	return chunk.Choices[0].Delta.Content, true, nil
}

func toChatMessages(msgs []types.Message) []chatMessage {
	out := make([]chatMessage, len(msgs))
	for i, m := range msgs {
		out[i] = chatMessage{Role: string(m.Role), Content: m.Content}
	}
	return out
}

// errorMessage prefers the provider's {"error":{"message":...}} text over the raw body.
func errorMessage(body []byte) string {
	var wrapped struct {
		Error *apiError `json:"error"`
	}
	if json.Unmarshal(body, &wrapped) == nil && wrapped.Error != nil && wrapped.Error.Message != "" {
		return wrapped.Error.Message
	}
	return truncate(strings.TrimSpace(string(body)))
}

// truncate cuts s to at most maxErrorBody bytes without splitting a rune.
func truncate(s string) string {
	if len(s) <= maxErrorBody {
		return s
	}
	cut := maxErrorBody
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
