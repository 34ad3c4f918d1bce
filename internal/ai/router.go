package ai

import (
	"context"

	"chatmap/internal/types"
)

// Router dispatches each call to the client that speaks the configured provider's wire format.
type Router struct {
	openai Provider
	gemini Provider
}

func NewRouter(openai, gemini Provider) *Router {
	return &Router{openai: openai, gemini: gemini}
}

func (r *Router) pick(cfg EndpointConfig) (Provider, error) {
	if _, ok := LookupPreset(cfg.Provider); !ok {
		return nil, &ConfigError{Provider: cfg.Provider, Reason: "unknown provider"}
	}
	if cfg.wire() == wireGemini {
		if r.gemini == nil {
			return nil, &ConfigError{Provider: cfg.Provider, Reason: "provider not enabled"}
		}
		return r.gemini, nil
	}
	if r.openai == nil {
		return nil, &ConfigError{Provider: cfg.Provider, Reason: "provider not enabled"}
	}
	return r.openai, nil
}

func (r *Router) ChatStream(ctx context.Context, msgs []types.Message, cfg EndpointConfig) (FragmentStream, error) {
	p, err := r.pick(cfg)
	if err != nil {
		return nil, err
	}
	return p.ChatStream(ctx, msgs, cfg)
}

func (r *Router) ChatExtract(ctx context.Context, msgs []types.Message, cfg EndpointConfig, opts ExtractOptions) (string, error) {
	p, err := r.pick(cfg)
	if err != nil {
		return "", err
	}
	return p.ChatExtract(ctx, msgs, cfg, opts)
}
