// README: Config loader with env defaults for HTTP, logging, history, Redis, sessions and the default model profile.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"chatmap/internal/ai"
)

var ErrUnknownProfile = errors.New("unknown provider profile")

type Config struct {
	HTTP struct {
		Addr string
	}
	Log struct {
		Level  string
		Format string
	}
	History struct {
		// DSN selects the turn history backend; empty disables recording.
		DSN string
	}
	Redis struct {
		// Addr enables map snapshots when set.
		Addr string
	}
	Sessions struct {
		IdleTTL time.Duration
	}
	Extract struct {
		Strict  bool
		Timeout time.Duration
	}
	Firebase struct {
		ProjectID       string
		CredentialsFile string
		CheckRevoked    bool
	}
	// Model is the server default endpoint, used when a request carries no settings.
	Model ai.EndpointConfig
	// Profiles are named endpoints loaded from CHATMAP_PROFILES_FILE.
	Profiles map[string]ai.EndpointConfig
}

// profilesFile is the YAML layout of CHATMAP_PROFILES_FILE.
type profilesFile struct {
	Default  string                       `yaml:"default"`
	Profiles map[string]ai.EndpointConfig `yaml:"profiles"`
}

func Load() (Config, error) {
	var cfg Config
	cfg.HTTP.Addr = envOrDefault("CHATMAP_HTTP_ADDR", ":8080")
	cfg.Log.Level = envOrDefault("CHATMAP_LOG_LEVEL", "info")
	cfg.Log.Format = envOrDefault("CHATMAP_LOG_FORMAT", "text")
	cfg.History.DSN = envOrDefault("CHATMAP_HISTORY_DSN", "")
	cfg.Redis.Addr = envOrDefault("CHATMAP_REDIS_ADDR", "")
	cfg.Sessions.IdleTTL = envOrDefaultDuration("CHATMAP_SESSION_IDLE_TTL", 30*time.Minute)
	cfg.Extract.Strict = envOrDefaultBool("CHATMAP_STRICT_COORDINATES", false)
	cfg.Extract.Timeout = envOrDefaultDuration("CHATMAP_EXTRACT_TIMEOUT", 60*time.Second)
	cfg.Firebase.ProjectID = envOrDefault("CHATMAP_FIREBASE_PROJECT_ID", "")
	cfg.Firebase.CredentialsFile = envOrDefault("CHATMAP_FIREBASE_CREDENTIALS", "")
	cfg.Firebase.CheckRevoked = envOrDefaultBool("CHATMAP_FIREBASE_CHECK_REVOKED", false)

	cfg.Model = ai.EndpointConfig{
		Provider:         ai.ProviderID(envOrDefault("CHATMAP_PROVIDER", "")),
		BaseURL:          envOrDefault("CHATMAP_BASE_URL", ""),
		Model:            envOrDefault("CHATMAP_MODEL", ""),
		APIKey:           envOrDefault("CHATMAP_API_KEY", ""),
		Temperature:      envOrDefaultFloat("CHATMAP_TEMPERATURE", ai.DefaultTemperature),
		StructuredOutput: envOrDefaultBool("CHATMAP_STRUCTURED_OUTPUT", false),
	}

	if path := envOrDefault("CHATMAP_PROFILES_FILE", ""); path != "" {
		if err := cfg.loadProfiles(path, envOrDefault("CHATMAP_PROFILE", "")); err != nil {
			return Config{}, err
		}
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Profile returns a named endpoint from the profiles file.
func (c Config) Profile(name string) (ai.EndpointConfig, bool) {
	p, ok := c.Profiles[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

// ProfileNames lists loaded profile names, sorted.
func (c Config) ProfileNames() []string {
	names := make([]string, 0, len(c.Profiles))
	for n := range c.Profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// HasDefaultModel reports whether requests without settings can be served.
func (c Config) HasDefaultModel() bool {
	return c.Model.Provider != ""
}

// loadProfiles reads path. The selected profile (or the file's default) becomes
// the server default unless CHATMAP_PROVIDER already set one.
func (c *Config) loadProfiles(path, selected string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read profiles: %w", err)
	}
	var f profilesFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("config: parse profiles %s: %w", path, err)
	}

	c.Profiles = make(map[string]ai.EndpointConfig, len(f.Profiles))
	for name, p := range f.Profiles {
		c.Profiles[strings.ToLower(strings.TrimSpace(name))] = p
	}

	if selected == "" {
		selected = f.Default
	}
	if selected == "" || c.Model.Provider != "" {
		return nil
	}
	p, ok := c.Profile(selected)
	if !ok {
		return fmt.Errorf("config: %w %q", ErrUnknownProfile, selected)
	}
	c.Model = p
	return nil
}

func (c *Config) applyDefaults() {
	for name, p := range c.Profiles {
		c.Profiles[name] = p.WithDefaults().Normalized()
	}
	if c.Model.Provider != "" {
		c.Model = c.Model.WithDefaults().Normalized()
	}
	c.Log.Level = strings.ToLower(c.Log.Level)
	c.Log.Format = strings.ToLower(c.Log.Format)
}

func (c Config) validate() error {
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config: CHATMAP_LOG_LEVEL: %w", err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("config: CHATMAP_LOG_FORMAT must be text or json, got %q", c.Log.Format)
	}
	if c.Sessions.IdleTTL <= 0 {
		return errors.New("config: CHATMAP_SESSION_IDLE_TTL must be positive")
	}
	if c.Extract.Timeout <= 0 {
		return errors.New("config: CHATMAP_EXTRACT_TIMEOUT must be positive")
	}
	if c.Firebase.CredentialsFile != "" && c.Firebase.ProjectID == "" {
		return errors.New("config: CHATMAP_FIREBASE_CREDENTIALS requires CHATMAP_FIREBASE_PROJECT_ID")
	}
	if c.HasDefaultModel() {
		if err := c.Model.Validate(); err != nil {
			return fmt.Errorf("config: default model: %w", err)
		}
	}
	for name, p := range c.Profiles {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("config: profile %q: %w", name, err)
		}
	}
	return nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
