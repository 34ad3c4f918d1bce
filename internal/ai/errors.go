package ai

import (
	"errors"
	"fmt"
	"strings"
)

// ErrCancelled is returned once the caller's context is done. It is never wrapped in a NetworkError.
var ErrCancelled = errors.New("cancelled")

// ErrStreamTruncated means the connection ended before the terminal sentinel.
var ErrStreamTruncated = errors.New("stream ended before [DONE]")

// ConfigError reports an incomplete or invalid endpoint configuration.
type ConfigError struct {
	Provider ProviderID
	Missing  []string
	Reason   string
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	b.WriteString("config")
	if e.Provider != "" {
		fmt.Fprintf(&b, ": provider %s", e.Provider)
	}
	if len(e.Missing) > 0 {
		fmt.Fprintf(&b, ": missing %s", strings.Join(e.Missing, ", "))
	}
	if e.Reason != "" {
		fmt.Fprintf(&b, ": %s", e.Reason)
	}
	return b.String()
}

// NetworkError is a transport failure talking to the model endpoint.
type NetworkError struct {
	Op         string // "stream" or "extract"
	StatusCode int
	Body       string
	Err        error
}

func (e *NetworkError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Body != "":
		return fmt.Sprintf("%s: endpoint returned %d: %s", e.Op, e.StatusCode, e.Body)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: endpoint returned %d", e.Op, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return e.Op + ": network error"
	}
}

func (e *NetworkError) Unwrap() error { return e.Err }

// IsConfig reports whether err carries a *ConfigError.
func IsConfig(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// IsNetwork reports whether err carries a *NetworkError.
func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}
