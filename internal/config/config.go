package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	BatchSize   int    `yaml:"batch_size"`
}

// GeminiEmbedderConfig configures Gemini embeddings.
type GeminiEmbedderConfig struct {
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`
	BatchSize int    `yaml:"batch_size"`
}

// HashingEmbedderConfig configures the offline feature-hashing embedder.
type HashingEmbedderConfig struct {
	Dimension int `yaml:"dimension"`
}

// EmbedderConfig selects and configures the text embedder implementation.
// The same embedder must be used for ingestion and queries.
type EmbedderConfig struct {
	Type    string                 `yaml:"type"`
	Gemini  *GeminiEmbedderConfig  `yaml:"gemini,omitempty"`
	OpenAI  *OpenAIEmbedderConfig  `yaml:"openai,omitempty"`
	Hashing *HashingEmbedderConfig `yaml:"hashing,omitempty"`
}

// GeneratorConfig selects and configures the report generator.
type GeneratorConfig struct {
	Type        string  `yaml:"type"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
	TimeoutSecs int     `yaml:"timeout_secs"`
}

// StoreConfig locates the case store snapshot. Location is a file path or
// an s3://bucket/key URL.
type StoreConfig struct {
	Location string    `yaml:"location"`
	S3       *S3Config `yaml:"s3,omitempty"`
}

// S3Config names the environment variables holding S3 credentials. Unset
// variables fall back to the default AWS credential chain.
type S3Config struct {
	Region       string `yaml:"region"`
	AccessKeyEnv string `yaml:"access_key_env"`
	SecretKeyEnv string `yaml:"secret_key_env"`
}

// IngestConfig configures snapshot builds.
type IngestConfig struct {
	EntriesDir string `yaml:"entries_dir"`
	BatchSize  int    `yaml:"batch_size"`
}

// RetrievalConfig sets how many cases are used and how similar they must be.
type RetrievalConfig struct {
	TopK      int     `yaml:"top_k"`
	Threshold float64 `yaml:"threshold"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr                string `yaml:"addr"`
	ShutdownTimeoutSecs int    `yaml:"shutdown_timeout_secs"`
	AdminTokenEnv       string `yaml:"admin_token_env"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// TracingConfig configures OpenTelemetry export. Tracing is off without an endpoint.
type TracingConfig struct {
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	ServiceName  string  `yaml:"service_name"`
	SampleRate   float64 `yaml:"sample_rate"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Embedder  EmbedderConfig  `yaml:"embedder"`
	Generator GeneratorConfig `yaml:"generator"`
	Store     StoreConfig     `yaml:"store"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

// LoadEnv loads .env.local and .env from the working directory when present.
// Variables already set in the environment win.
func LoadEnv() error {
	for _, f := range []string{".env.local", ".env"} {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyConfigDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/rentcase/config.yaml.
// If neither exists, it writes defaults to ~/.config/rentcase/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate rejects settings no component can run with.
func (c *AppConfig) Validate() error {
	switch c.Embedder.Type {
	case "gemini", "openai", "hashing":
	default:
		return fmt.Errorf("unknown embedder type %q", c.Embedder.Type)
	}
	if c.Generator.Type != "gemini" {
		return fmt.Errorf("unknown generator type %q", c.Generator.Type)
	}
	if c.Retrieval.Threshold < -1 || c.Retrieval.Threshold > 1 {
		return fmt.Errorf("retrieval threshold %v outside [-1, 1]", c.Retrieval.Threshold)
	}
	if c.Store.Location == "" {
		return errors.New("store location is empty")
	}
	return nil
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "rentcase", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Embedder:  EmbedderConfig{Type: "gemini"},
		Generator: GeneratorConfig{Type: "gemini"},
		Store:     StoreConfig{Location: "data/vector_store.json"},
		Ingest:    IngestConfig{EntriesDir: "pedia_entries"},
		Retrieval: RetrievalConfig{TopK: 5, Threshold: 0.3},
		Server:    ServerConfig{Addr: ":8080"},
		Log:       LogConfig{Level: "info"},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	switch cfg.Embedder.Type {
	case "gemini":
		if cfg.Embedder.Gemini == nil {
			cfg.Embedder.Gemini = &GeminiEmbedderConfig{}
		}
		if cfg.Embedder.Gemini.APIKeyEnv == "" {
			cfg.Embedder.Gemini.APIKeyEnv = "GOOGLE_GENERATIVE_AI_API_KEY"
		}
		if cfg.Embedder.Gemini.Model == "" {
			cfg.Embedder.Gemini.Model = "text-embedding-004"
		}
		if cfg.Embedder.Gemini.BatchSize == 0 {
			cfg.Embedder.Gemini.BatchSize = 100
		}
	case "openai":
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
		if cfg.Embedder.OpenAI.BatchSize == 0 {
			cfg.Embedder.OpenAI.BatchSize = 32
		}
	case "hashing":
		if cfg.Embedder.Hashing == nil {
			cfg.Embedder.Hashing = &HashingEmbedderConfig{}
		}
		if cfg.Embedder.Hashing.Dimension == 0 {
			cfg.Embedder.Hashing.Dimension = 512
		}
	}

	if cfg.Generator.APIKeyEnv == "" {
		cfg.Generator.APIKeyEnv = "GOOGLE_GENERATIVE_AI_API_KEY"
	}
	if cfg.Generator.Model == "" {
		cfg.Generator.Model = "gemini-2.5-flash-lite"
	}
	if cfg.Generator.TimeoutSecs == 0 {
		cfg.Generator.TimeoutSecs = 60
	}
	if cfg.Ingest.BatchSize == 0 {
		cfg.Ingest.BatchSize = 100
	}
	if cfg.Retrieval.TopK <= 0 {
		cfg.Retrieval.TopK = 5
	}
	if cfg.Server.ShutdownTimeoutSecs == 0 {
		cfg.Server.ShutdownTimeoutSecs = 10
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = "rentcase"
	}
	if cfg.Tracing.SampleRate == 0 {
		cfg.Tracing.SampleRate = 1
	}
}
