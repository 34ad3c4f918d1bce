// README: Request endpoint settings and profile resolution.
package handlers

import (
	"strings"

	"chatmap/internal/ai"
)

// settingsReq is the optional per-request endpoint override.
type settingsReq struct {
	Profile          string        `json:"profile"`
	Provider         ai.ProviderID `json:"provider"`
	BaseURL          string        `json:"base_url"`
	Model            string        `json:"model"`
	APIKey           string        `json:"api_key"`
	Temperature      *float64      `json:"temperature"`
	StructuredOutput bool          `json:"structured_output"`
}

// Endpoints resolves the model endpoint for a request.
type Endpoints struct {
	// Default serves requests without settings; a zero Provider means none.
	Default  ai.EndpointConfig
	Profiles map[string]ai.EndpointConfig
}

// Resolve picks, in order: explicit settings, a named profile, the legacy
// X-API-Key header as an OpenAI key, the server default. Nothing found is a
// *ai.ConfigError.
func (e Endpoints) Resolve(s *settingsReq, apiKeyHeader string) (ai.EndpointConfig, error) {
	if s != nil && s.Profile != "" {
		p, ok := e.Profiles[strings.ToLower(strings.TrimSpace(s.Profile))]
		if !ok {
			return ai.EndpointConfig{}, &ai.ConfigError{Reason: "unknown profile " + s.Profile}
		}
		return p, nil
	}
	if s != nil && s.Provider != "" {
		cfg := ai.EndpointConfig{
			Provider:         s.Provider,
			BaseURL:          s.BaseURL,
			Model:            s.Model,
			APIKey:           s.APIKey,
			Temperature:      ai.DefaultTemperature,
			StructuredOutput: s.StructuredOutput,
		}
		if s.Temperature != nil {
			cfg.Temperature = *s.Temperature
		}
		return cfg.WithDefaults().Normalized(), nil
	}
	if key := strings.TrimSpace(apiKeyHeader); key != "" {
		return ai.EndpointConfig{
			Provider:    ai.ProviderOpenAI,
			APIKey:      key,
			Temperature: ai.DefaultTemperature,
		}.WithDefaults(), nil
	}
	if e.Default.Provider != "" {
		return e.Default, nil
	}
	return ai.EndpointConfig{}, &ai.ConfigError{Missing: []string{"settings"}, Reason: "no model endpoint configured"}
}
