package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"chatmap/internal/types"
)

// GeminiClient implements Provider using Google's Gemini models.
// A genai client is created per call because credentials arrive with each request.
type GeminiClient struct{}

func NewGeminiClient() *GeminiClient {
	return &GeminiClient{}
}

func (g *GeminiClient) newModel(ctx context.Context, cfg EndpointConfig) (*genai.Client, *genai.GenerativeModel, error) {
	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(cfg.BaseURL))
	}
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("gemini: create client: %w", err)
	}
	model := client.GenerativeModel(cfg.Model)
	model.SetTemperature(float32(cfg.Temperature))
	return client, model, nil
}

// ChatStream sends the conversation as a chat session and streams the reply.
func (g *GeminiClient) ChatStream(ctx context.Context, msgs []types.Message, cfg EndpointConfig) (FragmentStream, error) {
	cfg = cfg.Normalized()
	system, history, last, err := splitConversation(msgs)
	if err != nil {
		return nil, err
	}
	client, model, err := g.newModel(ctx, cfg)
	if err != nil {
		return nil, &NetworkError{Op: "stream", Err: err}
	}
	model.SystemInstruction = system

	cs := model.StartChat()
	cs.History = history
	return &geminiStream{
		ctx:    ctx,
		client: client,
		it:     cs.SendMessageStream(ctx, genai.Text(last)),
	}, nil
}

// ChatExtract asks for an application/json response and returns the document text.
func (g *GeminiClient) ChatExtract(ctx context.Context, msgs []types.Message, cfg EndpointConfig, _ ExtractOptions) (string, error) {
	cfg = cfg.Normalized()
	system, history, last, err := splitConversation(msgs)
	if err != nil {
		return "", err
	}
	client, model, err := g.newModel(ctx, cfg)
	if err != nil {
		return "", &NetworkError{Op: "extract", Err: err}
	}
	defer client.Close()

	// Force JSON response for structured parsing.
	model.ResponseMIMEType = "application/json"
	model.SystemInstruction = system

	cs := model.StartChat()
	cs.History = history
	resp, err := cs.SendMessage(ctx, genai.Text(last))
	if err != nil {
		if ctx.Err() != nil {
			return "", ErrCancelled
		}
		return "", &NetworkError{Op: "extract", Err: fmt.Errorf("gemini generation error: %w", err)}
	}

	text := responseText(resp)
	if strings.TrimSpace(text) == "" {
		return "", &NetworkError{Op: "extract", Err: errors.New("gemini: API returned empty candidates")}
	}
	return CleanJSON(text), nil
}

type geminiStream struct {
	ctx    context.Context
	client *genai.Client
	it     *genai.GenerateContentResponseIterator
	done   bool
}

func (s *geminiStream) Recv() (string, error) {
	for {
		if s.done {
			return "", io.EOF
		}
		if s.ctx.Err() != nil {
			return "", ErrCancelled
		}
		resp, err := s.it.Next()
		if errors.Is(err, iterator.Done) {
			s.done = true
			return "", io.EOF
		}
		if err != nil {
			if s.ctx.Err() != nil {
				return "", ErrCancelled
			}
			return "", &NetworkError{Op: "stream", Err: err}
		}
		if text := responseText(resp); text != "" {
			return text, nil
		}
	}
}

func (s *geminiStream) Close() error {
	s.done = true
	return s.client.Close()
}

// splitConversation maps messages onto Gemini's system instruction, chat history
// and the final user turn that is sent.
func splitConversation(msgs []types.Message) (*genai.Content, []*genai.Content, string, error) {
	var (
		system  []genai.Part
		history []*genai.Content
	)
	for _, m := range msgs {
		switch m.Role {
		case types.RoleSystem:
			system = append(system, genai.Text(m.Content))
		case types.RoleAssistant:
			history = append(history, &genai.Content{Role: "model", Parts: []genai.Part{genai.Text(m.Content)}})
		default:
			history = append(history, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(m.Content)}})
		}
	}
	if len(history) == 0 || history[len(history)-1].Role != "user" {
		return nil, nil, "", errors.New("gemini: conversation must end with a user message")
	}

	last := history[len(history)-1]
	history = history[:len(history)-1]
	var sys *genai.Content
	if len(system) > 0 {
		sys = &genai.Content{Parts: system}
	}
	return sys, history, string(last.Parts[0].(genai.Text)), nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return b.String()
}
