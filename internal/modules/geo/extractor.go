// README: Geo extractor; second model call that classifies the finished answer and returns validated locations.
package geo

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"chatmap/internal/ai"
	"chatmap/internal/types"
)

// DefaultTimeout bounds one extraction request.
const DefaultTimeout = 60 * time.Second

type Options struct {
	// Strict rejects the whole result when any coordinate is invalid.
	Strict  bool
	Timeout time.Duration
}

type Extractor struct {
	provider ai.Provider
	opts     Options
	log      logrus.FieldLogger
}

func NewExtractor(provider ai.Provider, opts Options, log logrus.FieldLogger) *Extractor {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Extractor{provider: provider, opts: opts, log: log}
}

// Extract classifies finalText and returns its locations.
// Errors are *ai.ConfigError, *ai.NetworkError, *ValidationError or ai.ErrCancelled.
func (e *Extractor) Extract(ctx context.Context, finalText string, history []types.Message, cfg ai.EndpointConfig) (Result, error) {
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}
	if ctx.Err() != nil {
		return Result{}, ai.ErrCancelled
	}

	callCtx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	raw, err := e.provider.ChatExtract(callCtx, buildMessages(finalText, history), cfg, ai.ExtractOptions{
		Schema:     Schema(),
		SchemaName: "geo_extraction",
	})

	// The response may arrive after cancellation; it must not be acted on.
	if ctx.Err() != nil {
		return Result{}, ai.ErrCancelled
	}
	if err != nil {
		if errors.Is(err, ai.ErrCancelled) || errors.Is(err, context.DeadlineExceeded) {
			return Result{}, &ai.NetworkError{Op: "extract", Err: context.DeadlineExceeded}
		}
		if ai.IsNetwork(err) || ai.IsConfig(err) {
			return Result{}, err
		}
		return Result{}, &ai.NetworkError{Op: "extract", Err: err}
	}

	res, err := decode(ai.CleanJSON(raw), finalText, e.opts.Strict)
	if err != nil {
		return Result{}, err
	}
	if len(res.Dropped) > 0 {
		e.log.WithFields(logrus.Fields{
			"dropped": len(res.Dropped),
			"kept":    len(res.Locations),
		}).Warn((&ValidationError{Reason: "coordinates out of range", Dropped: res.Dropped}).Error())
	}
	return res, nil
}
