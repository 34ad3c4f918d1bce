// README: Model endpoint configuration; one fixed schema per provider id, validated before any network call.
package ai

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

type ProviderID string

const (
	ProviderOpenAI      ProviderID = "openai"
	ProviderSiliconFlow ProviderID = "siliconflow"
	ProviderCustom      ProviderID = "custom"
	ProviderGemini      ProviderID = "gemini"
)

// DefaultTemperature matches the settings dialog default.
const DefaultTemperature = 0.7

type wireKind int

const (
	wireOpenAI wireKind = iota
	wireGemini
)

// Preset describes one provider variant.
type Preset struct {
	ID              ProviderID `json:"id"`
	Name            string     `json:"name"`
	DefaultBaseURL  string     `json:"default_base_url,omitempty"`
	DefaultModel    string     `json:"default_model,omitempty"`
	RequiresBaseURL bool       `json:"requires_base_url"`
	wire            wireKind
}

var presets = map[ProviderID]Preset{
	ProviderOpenAI: {
		ID:              ProviderOpenAI,
		Name:            "OpenAI",
		DefaultBaseURL:  "https://api.openai.com/v1",
		DefaultModel:    "gpt-4o",
		RequiresBaseURL: true,
		wire:            wireOpenAI,
	},
	ProviderSiliconFlow: {
		ID:              ProviderSiliconFlow,
		Name:            "SiliconFlow",
		DefaultBaseURL:  "https://api.siliconflow.cn/v1",
		DefaultModel:    "Qwen/Qwen2.5-7B-Instruct",
		RequiresBaseURL: true,
		wire:            wireOpenAI,
	},
	ProviderCustom: {
		ID:              ProviderCustom,
		Name:            "Custom (OpenAI compatible)",
		RequiresBaseURL: true,
		wire:            wireOpenAI,
	},
	ProviderGemini: {
		ID:           ProviderGemini,
		Name:         "Google Gemini",
		DefaultModel: "gemini-2.0-flash",
		wire:         wireGemini,
	},
}

// LookupPreset returns the preset registered for id.
func LookupPreset(id ProviderID) (Preset, bool) {
	p, ok := presets[ProviderID(strings.ToLower(strings.TrimSpace(string(id))))]
	return p, ok
}

// Presets lists all provider variants sorted by id.
func Presets() []Preset {
	out := make([]Preset, 0, len(presets))
	for _, p := range presets {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// EndpointConfig is everything a single model call needs. It is supplied per call and never stored by the pipeline.
type EndpointConfig struct {
	Provider    ProviderID `json:"provider" yaml:"provider"`
	BaseURL     string     `json:"base_url" yaml:"base_url"`
	Model       string     `json:"model" yaml:"model"`
	APIKey      string     `json:"api_key" yaml:"api_key"`
	Temperature float64    `json:"temperature" yaml:"temperature"`
	// StructuredOutput asks OpenAI-wire providers for json_schema instead of json_object.
	StructuredOutput bool `json:"structured_output,omitempty" yaml:"structured_output"`
}

// WithDefaults fills base URL and model from the provider preset when they are empty.
func (c EndpointConfig) WithDefaults() EndpointConfig {
	c.Provider = ProviderID(strings.ToLower(strings.TrimSpace(string(c.Provider))))
	p, ok := presets[c.Provider]
	if !ok {
		return c
	}
	if strings.TrimSpace(c.BaseURL) == "" {
		c.BaseURL = p.DefaultBaseURL
	}
	if strings.TrimSpace(c.Model) == "" {
		c.Model = p.DefaultModel
	}
	return c
}

// Validate reports a *ConfigError when the variant's required fields are missing or out of range.
func (c EndpointConfig) Validate() error {
	p, ok := LookupPreset(c.Provider)
	if !ok {
		if strings.TrimSpace(string(c.Provider)) == "" {
			return &ConfigError{Missing: []string{"provider"}}
		}
		return &ConfigError{Provider: c.Provider, Reason: "unknown provider"}
	}

	var missing []string
	if p.RequiresBaseURL && strings.TrimSpace(c.BaseURL) == "" {
		missing = append(missing, "base_url")
	}
	if strings.TrimSpace(c.Model) == "" {
		missing = append(missing, "model")
	}
	if strings.TrimSpace(c.APIKey) == "" {
		missing = append(missing, "api_key")
	}
	if len(missing) > 0 {
		return &ConfigError{Provider: p.ID, Missing: missing}
	}
	if math.IsNaN(c.Temperature) || c.Temperature < 0 || c.Temperature > 1 {
		return &ConfigError{Provider: p.ID, Reason: fmt.Sprintf("temperature %v outside [0,1]", c.Temperature)}
	}
	return nil
}

// Normalized returns a copy with provider-specific paths stripped from the base URL.
func (c EndpointConfig) Normalized() EndpointConfig {
	c.Provider = ProviderID(strings.ToLower(strings.TrimSpace(string(c.Provider))))
	base := strings.TrimSpace(c.BaseURL)
	base = strings.TrimRight(base, "/")
	base = strings.TrimSuffix(base, "/chat/completions")
	c.BaseURL = strings.TrimRight(base, "/")
	c.Model = strings.TrimSpace(c.Model)
	return c
}

// Redacted is safe to log.
func (c EndpointConfig) Redacted() EndpointConfig {
	if n := len(c.APIKey); n > 4 {
		c.APIKey = "****" + c.APIKey[n-4:]
	} else if n > 0 {
		c.APIKey = "****"
	}
	return c
}

func (c EndpointConfig) wire() wireKind {
	p, _ := LookupPreset(c.Provider)
	return p.wire
}
