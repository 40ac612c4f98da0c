package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// GatewayConfig represents configuration for the upstream LLM gateway.
type GatewayConfig struct {
	BaseURL string `yaml:"base_url,omitempty"` // Gateway API base URL
	APIKey  string `yaml:"api_key,omitempty"`  // Server-side gateway API key
	Referer string `yaml:"referer,omitempty"`  // Attribution referer header
	Title   string `yaml:"title,omitempty"`    // Attribution title header
}

// ConverterConfig represents configuration for the document converter service.
type ConverterConfig struct {
	URL     string `yaml:"url,omitempty"`     // Converter endpoint (empty = conversion disabled)
	Timeout int    `yaml:"timeout,omitempty"` // Per-conversion budget in seconds
}

// RateLimitConfig represents per-caller request throttling.
type RateLimitConfig struct {
	RPS           float64 `yaml:"rps,omitempty"`            // Sustained requests per second per caller
	Burst         int     `yaml:"burst,omitempty"`          // Burst allowance per caller
	IdleTTL       int     `yaml:"idle_ttl,omitempty"`       // Seconds of inactivity before a caller's limiter is evicted
	SweepSchedule string  `yaml:"sweep_schedule,omitempty"` // Eviction cadence: cron expression or duration (e.g. "@every 5m")
}

// PersonaConfig represents a named system-prompt persona.
type PersonaConfig struct {
	ID        string `yaml:"id" json:"id"`
	Name      string `yaml:"name" json:"name"`
	Prompt    string `yaml:"prompt" json:"prompt"`
	MaxTokens int64  `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"` // Response token ceiling override (0 = server default)
}

// PromptsConfig holds the base system prompt texts.
type PromptsConfig struct {
	Default string `yaml:"default,omitempty"` // Base system prompt when nothing else applies
	Guided  string `yaml:"guided,omitempty"`  // System prompt for guided conversations
}

// ServerConfig represents server-side configuration for the relayd daemon.
type ServerConfig struct {
	// Server settings
	Server struct {
		Addr string `yaml:"addr,omitempty"` // HTTP listen address (default: :8080)
	} `yaml:"server,omitempty"`

	// Upstream gateway
	Gateway GatewayConfig `yaml:"gateway,omitempty"`

	// Streaming
	StreamTimeout      int      `yaml:"stream_timeout,omitempty"`       // Stream duration ceiling in seconds
	MaxTokens          int64    `yaml:"max_tokens,omitempty"`           // Default response token ceiling
	CacheModelPrefixes []string `yaml:"cache_model_prefixes,omitempty"` // Model families that honor cache directives

	// Feature configurations
	Converter ConverterConfig           `yaml:"converter,omitempty"`
	RateLimit RateLimitConfig           `yaml:"rate_limit,omitempty"`
	Personas  map[string]*PersonaConfig `yaml:"personas,omitempty"`
	Prompts   PromptsConfig             `yaml:"prompts,omitempty"`
}

// StreamTimeoutDuration returns the stream ceiling as a duration.
func (c *ServerConfig) StreamTimeoutDuration() time.Duration {
	return time.Duration(c.StreamTimeout) * time.Second
}

// CacheCapableModel reports whether the model family honors cache directives.
func (c *ServerConfig) CacheCapableModel(model string) bool {
	for _, prefix := range c.CacheModelPrefixes {
		if strings.HasPrefix(model, prefix) {
			return true
		}
	}
	return false
}

// Persona looks up a persona by id. Returns nil when the id is unknown.
func (c *ServerConfig) Persona(id string) *PersonaConfig {
	if id == "" {
		return nil
	}
	return c.Personas[id]
}

// GetServerConfigPath returns the default server config file path.
// Can be overridden via RELAY_CONFIG_PATH environment variable.
func GetServerConfigPath() string {
	if envPath := os.Getenv("RELAY_CONFIG_PATH"); envPath != "" {
		return expandPath(envPath)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./.relayd/config.yaml"
	}
	return filepath.Join(homeDir, ".relayd", "config.yaml")
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

// SaveServerConfig saves the server configuration to the specified path.
func SaveServerConfig(cfg *ServerConfig, path string) error {
	expandedPath := expandPath(path)

	// Ensure directory exists
	dir := filepath.Dir(expandedPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Marshal to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write file
	if err := os.WriteFile(expandedPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadServerConfig loads server-side configuration.
// Defaults are applied first, then the config file (if present) is merged on top.
func LoadServerConfig(path string) (*ServerConfig, error) {
	// Step 1: Set defaults
	defaults := ServerConfig{
		Gateway: GatewayConfig{
			BaseURL: "https://openrouter.ai/api/v1",
			Referer: "https://github.com/aschepis/backscratcher",
			Title:   "relayd",
		},
		StreamTimeout:      600,
		MaxTokens:          4096,
		CacheModelPrefixes: []string{"anthropic/", "google/"},
		Converter: ConverterConfig{
			Timeout: 30,
		},
		RateLimit: RateLimitConfig{
			RPS:           1,
			Burst:         4,
			IdleTTL:       3600,
			SweepSchedule: "@every 5m",
		},
		Personas: make(map[string]*PersonaConfig),
		Prompts: PromptsConfig{
			Default: defaultSystemPrompt,
			Guided:  guidedSystemPrompt,
		},
	}
	defaults.Server.Addr = ":8080"

	// Step 2: Merge config file onto defaults (if it exists)
	expandedPath := expandPath(path)
	if _, err := os.Stat(expandedPath); err == nil {
		configYAML, err := os.ReadFile(expandedPath) //#nosec 304 -- intentional file read for config
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %q: %w", expandedPath, err)
		}

		var fileConfig ServerConfig
		if err := yaml.Unmarshal(configYAML, &fileConfig); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}

		if err := mergo.Merge(&defaults, fileConfig, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge config: %w", err)
		}
	}

	// Initialize maps if they're nil
	if defaults.Personas == nil {
		defaults.Personas = make(map[string]*PersonaConfig)
	}

	// Apply smart defaults to personas
	for id, persona := range defaults.Personas {
		if persona.ID == "" {
			persona.ID = id
		}
		if persona.Name == "" {
			persona.Name = persona.ID
		}
	}

	return &defaults, nil
}
