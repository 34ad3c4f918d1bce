package ai

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatmap/internal/types"
)

// TestLiveProvider talks to a real endpoint. It runs only when CHATMAP_LIVE_PROVIDER
// and CHATMAP_LIVE_API_KEY are set, in the environment or a .env file above the package.
func TestLiveProvider(t *testing.T) {
	loadDotEnv(t)
	provider := strings.TrimSpace(os.Getenv("CHATMAP_LIVE_PROVIDER"))
	key := strings.TrimSpace(os.Getenv("CHATMAP_LIVE_API_KEY"))
	if provider == "" || key == "" {
		t.Skip("CHATMAP_LIVE_PROVIDER / CHATMAP_LIVE_API_KEY not set")
	}

	cfg := EndpointConfig{
		Provider:    ProviderID(provider),
		BaseURL:     os.Getenv("CHATMAP_LIVE_BASE_URL"),
		Model:       os.Getenv("CHATMAP_LIVE_MODEL"),
		APIKey:      key,
		Temperature: 0.2,
	}.WithDefaults().Normalized()
	require.NoError(t, cfg.Validate())

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()
	r := NewRouter(NewOpenAIClient(nil, nil), NewGeminiClient())
	msgs := []types.Message{
		{Role: types.RoleSystem, Content: "Answer in one short sentence."},
		{Role: types.RoleUser, Content: "Name one famous landmark in Paris."},
	}

	stream, err := r.ChatStream(ctx, msgs, cfg)
	require.NoError(t, err)
	defer stream.Close()
	var answer strings.Builder
	for {
		frag, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		answer.WriteString(frag)
	}
	t.Logf("answer: %s", answer.String())
	assert.NotEmpty(t, answer.String())

	raw, err := r.ChatExtract(ctx, []types.Message{
		{Role: types.RoleSystem, Content: `Reply with a JSON object {"city": string}.`},
		{Role: types.RoleUser, Content: answer.String()},
	}, cfg, ExtractOptions{})
	require.NoError(t, err)
	assert.Contains(t, raw, "city")
}

// loadDotEnv copies KEY=VALUE lines from the nearest .env into the test environment.
func loadDotEnv(t *testing.T) {
	t.Helper()

	dir, err := os.Getwd()
	if err != nil {
		return
	}
	path := ""
	for i := 0; i < 8; i++ {
		candidate := filepath.Join(dir, ".env")
		if _, err := os.Stat(candidate); err == nil {
			path = candidate
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	if path == "" {
		return
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return
	}
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" || os.Getenv(k) != "" {
			continue
		}
		t.Setenv(k, strings.Trim(strings.TrimSpace(v), `"'`))
	}
}
