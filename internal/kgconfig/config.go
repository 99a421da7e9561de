// Package kgconfig defines the ingestion core's configuration shape and its
// YAML+environment loader. The spec's Non-goals exclude wiring config
// loading into an HTTP surface, not the existence of a config package
// idiomatic to the teacher — this mirrors the struct/tag shape of
// internal/config/config.go and the env-overlay discipline of
// internal/config/loader.go.
package kgconfig

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	yaml "gopkg.in/yaml.v3"
)

// IngestionConfig bounds chunking and scheduler concurrency, grounded on
// internal/config/config.go's IngestionConfig (MaxWorkers, UseAdvanced),
// extended with the chunk-window knobs spec §4.3 requires.
type IngestionConfig struct {
	MaxWorkers      int `yaml:"max_workers"`
	MaxInflight     int `yaml:"max_inflight"`
	ChunkMaxTokens  int `yaml:"chunk_max_tokens"`
	ChunkOverlap    int `yaml:"chunk_overlap"`
	MaxChunkRetries int `yaml:"max_chunk_retries"`
	MaxJobRetries   int `yaml:"max_job_retries"`
	// StrictFailurePolicy selects the whole-document FAILED-on-any-failure
	// rollup instead of the default PartiallyFailed one, per spec §9's
	// open question.
	StrictFailurePolicy bool `yaml:"strict_failure_policy"`
}

// LLMConfig selects and configures the extraction provider. APIKeyEnv names
// the environment variable the key is read from — the key itself is never
// read from YAML, per spec §6 ("the LLM API key ... supplied via
// environment").
type LLMConfig struct {
	Provider        string `yaml:"provider"` // "openai" | "anthropic" | "gemini"
	Model           string `yaml:"model"`
	APIKeyEnv       string `yaml:"api_key_env"`
	BaseURL         string `yaml:"base_url,omitempty"`
	ReasoningEffort string `yaml:"reasoning_effort,omitempty"`
	ServiceTier     string `yaml:"service_tier,omitempty"`
	Strict          bool   `yaml:"strict"`
}

// RedisConfig configures the optional llm_response_cache accelerator.
type RedisConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	TTL     string `yaml:"ttl"` // parsed with time.ParseDuration
}

// KafkaConfig configures the optional document-lifecycle event publisher.
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// TelemetryConfig controls the optional OpenTelemetry metrics adapter,
// mirrored in shape from internal/config/config.go's TelemetryConfig.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

// Config is the ingestion core's full configuration.
type Config struct {
	WorkingDir string `yaml:"working_dir"`
	Workspace  string `yaml:"workspace,omitempty"`
	HTTPHost   string `yaml:"http_host"`
	HTTPPort   int    `yaml:"http_port"`
	LogPath    string `yaml:"log_path,omitempty"`
	LogLevel   string `yaml:"log_level"`

	Ingestion IngestionConfig `yaml:"ingestion"`
	LLM       LLMConfig       `yaml:"llm"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// Default returns the configuration defaults named across spec §4.7/§4.4.
func Default() Config {
	return Config{
		WorkingDir: "./data",
		HTTPHost:   "127.0.0.1",
		HTTPPort:   8080,
		LogLevel:   "info",
		Ingestion: IngestionConfig{
			MaxWorkers:      10,
			MaxInflight:     32,
			ChunkMaxTokens:  1200,
			ChunkOverlap:    100,
			MaxChunkRetries: 10,
			MaxJobRetries:   5,
		},
		LLM: LLMConfig{
			Provider:  "openai",
			Model:     "gpt-4o-mini",
			APIKeyEnv: "OPENAI_API_KEY",
			Strict:    true,
		},
		Redis: RedisConfig{TTL: "1h"},
	}
}

// Load reads path (YAML) over Default(), then overlays environment
// variables (optionally from a .env file, via godotenv.Overload — repo
// configuration deterministically controls dev runs unless the caller
// explicitly exports otherwise), grounded on internal/config/loader.go's
// Load(). path == "" skips the YAML read and only applies defaults + env.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("kgconfig: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("kgconfig: parse %s: %w", path, err)
		}
	}

	_ = godotenv.Overload()
	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("KGINGEST_WORKING_DIR")); v != "" {
		cfg.WorkingDir = v
	}
	if v := strings.TrimSpace(os.Getenv("KGINGEST_WORKSPACE")); v != "" {
		cfg.Workspace = v
	}
	if v := strings.TrimSpace(os.Getenv("KGINGEST_HTTP_HOST")); v != "" {
		cfg.HTTPHost = v
	}
	if v := strings.TrimSpace(os.Getenv("KGINGEST_HTTP_PORT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HTTPPort = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("KGINGEST_LOG_PATH")); v != "" {
		cfg.LogPath = v
	}
	if v := strings.TrimSpace(os.Getenv("KGINGEST_LOG_LEVEL")); v != "" {
		cfg.LogLevel = v
	}
	if v := strings.TrimSpace(os.Getenv("KGINGEST_LLM_PROVIDER")); v != "" {
		cfg.LLM.Provider = v
	}
	if v := strings.TrimSpace(os.Getenv("KGINGEST_LLM_MODEL")); v != "" {
		cfg.LLM.Model = v
	}
	if v := strings.TrimSpace(os.Getenv("KGINGEST_LLM_BASE_URL")); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("KGINGEST_REDIS_ADDR")); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := strings.TrimSpace(os.Getenv("KGINGEST_KAFKA_BROKERS")); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
		cfg.Kafka.Enabled = true
	}
}

// APIKey resolves the LLM API key from the environment variable named by
// LLM.APIKeyEnv, defaulting to "OPENAI_API_KEY" when unset.
func (c Config) APIKey() string {
	name := strings.TrimSpace(c.LLM.APIKeyEnv)
	if name == "" {
		name = "OPENAI_API_KEY"
	}
	return os.Getenv(name)
}

// Validate fails fast on the config errors spec §7 calls fatal-at-startup:
// missing working directory or missing API key.
func (c Config) Validate() error {
	if strings.TrimSpace(c.WorkingDir) == "" {
		return fmt.Errorf("kgconfig: working_dir is required")
	}
	if strings.TrimSpace(c.APIKey()) == "" {
		return fmt.Errorf("kgconfig: no API key found in environment variable %q", c.LLM.APIKeyEnv)
	}
	return nil
}
