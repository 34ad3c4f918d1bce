// README: Streaming answer generator; wraps the model's token stream as a cancellable, non-restartable fragment sequence.
package chat

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"chatmap/internal/ai"
	"chatmap/internal/types"
)

type Generator struct {
	provider ai.Provider
	prompt   string
	log      logrus.FieldLogger
}

func NewGenerator(provider ai.Provider, log logrus.FieldLogger) *Generator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Generator{provider: provider, prompt: SystemPrompt, log: log}
}

// Generate validates cfg and opens the answer stream for history.
// A *ai.ConfigError is returned before any network call is made.
func (g *Generator) Generate(ctx context.Context, history []types.Message, cfg ai.EndpointConfig) (*Stream, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, ErrEmptyHistory
	}
	if ctx.Err() != nil {
		return nil, ai.ErrCancelled
	}

	msgs := make([]types.Message, 0, len(history)+1)
	msgs = append(msgs, types.Message{Role: types.RoleSystem, Content: g.prompt})
	msgs = append(msgs, history...)

	src, err := g.provider.ChatStream(ctx, msgs, cfg)
	if err != nil {
		return nil, classify(ctx, err)
	}
	return &Stream{ctx: ctx, src: src}, nil
}

// Stream is a finite sequence of answer fragments. Once Next has returned a
// non-nil error every later call returns the same error.
type Stream struct {
	ctx    context.Context
	src    ai.FragmentStream
	text   strings.Builder
	err    error
	closed bool
}

// Next returns the next fragment, io.EOF when the answer is complete,
// ai.ErrCancelled after cancellation and an *ai.NetworkError on transport failure.
func (s *Stream) Next() (string, error) {
	if s.err != nil {
		return "", s.err
	}
	if s.ctx.Err() != nil {
		return "", s.finish(ai.ErrCancelled)
	}
	frag, err := s.src.Recv()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return "", s.finish(io.EOF)
		}
		return "", s.finish(classify(s.ctx, err))
	}
	s.text.WriteString(frag)
	return frag, nil
}

// Text is the concatenation of every fragment returned so far.
func (s *Stream) Text() string {
	return s.text.String()
}

// Close releases the connection. A stream closed before completion reports ai.ErrCancelled.
func (s *Stream) Close() error {
	if s.err == nil {
		s.err = ai.ErrCancelled
	}
	if s.closed {
		return nil
	}
	s.closed = true
	return s.src.Close()
}

func (s *Stream) finish(err error) error {
	s.err = err
	if !s.closed {
		s.closed = true
		_ = s.src.Close()
	}
	return err
}

// classify makes cancellation win over whatever the transport reported.
func classify(ctx context.Context, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return ai.ErrCancelled
	}
	if errors.Is(err, ai.ErrCancelled) || ai.IsConfig(err) || ai.IsNetwork(err) {
		return err
	}
	return &ai.NetworkError{Op: "stream", Err: err}
}
