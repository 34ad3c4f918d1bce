package ai

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndpointConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     EndpointConfig
		missing []string
		wantErr bool
	}{
		{
			name: "complete openai",
			cfg:  EndpointConfig{Provider: ProviderOpenAI, BaseURL: "https://api.openai.com/v1", Model: "gpt-4o", APIKey: "sk-1", Temperature: 0.7},
		},
		{
			name:    "missing key and model",
			cfg:     EndpointConfig{Provider: ProviderSiliconFlow, BaseURL: "https://api.siliconflow.cn/v1"},
			missing: []string{"model", "api_key"},
			wantErr: true,
		},
		{
			name:    "custom requires base url",
			cfg:     EndpointConfig{Provider: ProviderCustom, Model: "m", APIKey: "k"},
			missing: []string{"base_url"},
			wantErr: true,
		},
		{
			name: "gemini has no base url requirement",
			cfg:  EndpointConfig{Provider: ProviderGemini, Model: "gemini-2.0-flash", APIKey: "k"},
		},
		{
			name:    "temperature above range",
			cfg:     EndpointConfig{Provider: ProviderOpenAI, BaseURL: "u", Model: "m", APIKey: "k", Temperature: 1.5},
			wantErr: true,
		},
		{
			name:    "unknown provider",
			cfg:     EndpointConfig{Provider: "anthropic", BaseURL: "u", Model: "m", APIKey: "k"},
			wantErr: true,
		},
		{
			name:    "empty provider",
			cfg:     EndpointConfig{},
			missing: []string{"provider"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			var ce *ConfigError
			require.True(t, errors.As(err, &ce), "expected ConfigError, got %v", err)
			if tt.missing != nil {
				assert.Equal(t, tt.missing, ce.Missing)
			}
		})
	}
}

func TestEndpointConfig_Normalized(t *testing.T) {
	tests := map[string]string{
		"https://api.openai.com/v1/chat/completions":  "https://api.openai.com/v1",
		"https://api.openai.com/v1/chat/completions/": "https://api.openai.com/v1",
		"https://api.siliconflow.cn/v1/":              "https://api.siliconflow.cn/v1",
		" https://example.com/v1 ":                    "https://example.com/v1",
	}
	for in, want := range tests {
		got := EndpointConfig{Provider: "OpenAI", BaseURL: in}.Normalized()
		assert.Equal(t, want, got.BaseURL, in)
		assert.Equal(t, ProviderOpenAI, got.Provider)
	}
}

func TestEndpointConfig_WithDefaults(t *testing.T) {
	cfg := EndpointConfig{Provider: ProviderSiliconFlow, APIKey: "k"}.WithDefaults()
	assert.Equal(t, "https://api.siliconflow.cn/v1", cfg.BaseURL)
	assert.Equal(t, "Qwen/Qwen2.5-7B-Instruct", cfg.Model)

	custom := EndpointConfig{Provider: ProviderCustom, APIKey: "k"}.WithDefaults()
	assert.Empty(t, custom.BaseURL)
	assert.Error(t, custom.Validate())
}

func TestEndpointConfig_Redacted(t *testing.T) {
	assert.Equal(t, "****cdef", EndpointConfig{APIKey: "sk-abcdef"}.Redacted().APIKey)
	assert.Equal(t, "****", EndpointConfig{APIKey: "abc"}.Redacted().APIKey)
}

func TestPresets_Sorted(t *testing.T) {
	ps := Presets()
	require.Len(t, ps, 4)
	assert.Equal(t, ProviderCustom, ps[0].ID)
	assert.Equal(t, ProviderSiliconFlow, ps[3].ID)
}
