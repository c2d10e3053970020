// Package config loads the preceptor configuration: defaults, then an optional
// YAML file, then environment variables. Command-line flags are applied last by
// the CLI.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable except the provider ones below.
const EnvPrefix = "PRECEPTOR_"

// Gateway backends.
const (
	GatewayOpenAI       = "openai"
	GatewayVertex       = "vertex"
	GatewayVertexGemini = "vertex-gemini"
	GatewayScripted     = "scripted"
	GatewayEcho         = "echo"
)

// Storage backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendGCS    = "gcs"
)

// Config is the full runtime configuration.
type Config struct {
	Log       LogConfig       `yaml:"log" envPrefix:"LOG_"`
	Gateway   GatewayConfig   `yaml:"gateway" envPrefix:"GATEWAY_"`
	Engine    EngineConfig    `yaml:"engine" envPrefix:"ENGINE_"`
	Store     StoreConfig     `yaml:"store" envPrefix:"STORE_"`
	Redis     RedisConfig     `yaml:"redis" envPrefix:"REDIS_"`
	Artifacts ArtifactsConfig `yaml:"artifacts" envPrefix:"ARTIFACTS_"`
	HTTP      HTTPConfig      `yaml:"http" envPrefix:"HTTP_"`
}

type LogConfig struct {
	Level string `yaml:"level" env:"LEVEL"`
	JSON  bool   `yaml:"json" env:"JSON"`
}

// GatewayConfig selects and configures the model backend.
type GatewayConfig struct {
	Backend string `yaml:"backend" env:"BACKEND"`
	Model   string `yaml:"model" env:"MODEL"`
	// BaseURL points the OpenAI client at a compatible API (Gemini, Ollama).
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	APIKey  string `yaml:"api_key" env:"API_KEY"`

	Project     string `yaml:"project" env:"PROJECT"`
	Location    string `yaml:"location" env:"LOCATION"`
	EndpointID  string `yaml:"endpoint_id" env:"ENDPOINT_ID"`
	APIEndpoint string `yaml:"api_endpoint" env:"API_ENDPOINT"`

	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// Script holds the canned replies of the scripted backend.
	Script []string `yaml:"script" env:"SCRIPT" envSeparator:"|"`
}

type EngineConfig struct {
	MaxTokens    int    `yaml:"max_tokens" env:"MAX_TOKENS"`
	SystemPrompt string `yaml:"system_prompt" env:"SYSTEM_PROMPT"`
	// RecoverUnknownPhase clamps unknown phases to the output phase instead of failing.
	RecoverUnknownPhase bool `yaml:"recover_unknown_phase" env:"RECOVER_UNKNOWN_PHASE"`
}

type StoreConfig struct {
	Backend string `yaml:"backend" env:"BACKEND"`
	Dir     string `yaml:"dir" env:"DIR"`

	// EncryptionKey is a base64 AES-256 key. When set, sessions are stored sealed.
	EncryptionKey string `yaml:"encryption_key" env:"ENCRYPTION_KEY"`
	// FallbackKeys still decrypt sessions written before a key rotation.
	FallbackKeys []string `yaml:"fallback_keys" env:"FALLBACK_KEYS" envSeparator:","`
	// PIIFields are regular expressions over checklist keys whose values are masked before storage.
	PIIFields []string `yaml:"pii_fields" env:"PII_FIELDS" envSeparator:","`
}

// Keys decodes the encryption keys. It returns nil keys when encryption is off.
func (s StoreConfig) Keys() (active []byte, fallback [][]byte, err error) {
	if s.EncryptionKey == "" {
		return nil, nil, nil
	}
	if active, err = decodeKey(s.EncryptionKey); err != nil {
		return nil, nil, fmt.Errorf("store: encryption_key: %w", err)
	}
	for i, k := range s.FallbackKeys {
		key, err := decodeKey(k)
		if err != nil {
			return nil, nil, fmt.Errorf("store: fallback_keys[%d]: %w", i, err)
		}
		fallback = append(fallback, key)
	}
	return active, fallback, nil
}

func decodeKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, err
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("want 32 bytes, got %d", len(key))
	}
	return key, nil
}

type RedisConfig struct {
	Addr     string        `yaml:"addr" env:"ADDR"`
	Password string        `yaml:"password" env:"PASSWORD"`
	DB       int           `yaml:"db" env:"DB"`
	Prefix   string        `yaml:"prefix" env:"PREFIX"`
	TTL      time.Duration `yaml:"ttl" env:"TTL"`
}

type ArtifactsConfig struct {
	Backend string `yaml:"backend" env:"BACKEND"`
	Dir     string `yaml:"dir" env:"DIR"`
	Bucket  string `yaml:"bucket" env:"BUCKET"`
	Prefix  string `yaml:"prefix" env:"PREFIX"`
}

type HTTPConfig struct {
	Addr        string `yaml:"addr" env:"ADDR"`
	Metrics     bool   `yaml:"metrics" env:"METRICS"`
	HandoutsDir string `yaml:"handouts_dir" env:"HANDOUTS_DIR"`
	Validation  bool   `yaml:"validation" env:"VALIDATION"`
	Sessions    bool   `yaml:"sessions" env:"SESSIONS"`
}

// providerEnv holds the unprefixed variables used by the cloud SDKs and by
// existing deployments. They only fill fields left blank.
type providerEnv struct {
	Project    string `env:"GOOGLE_CLOUD_PROJECT"`
	Location   string `env:"GOOGLE_CLOUD_LOCATION"`
	EndpointID string `env:"MEDGEMMA_ENDPOINT_ID"`
	OpenAIKey  string `env:"OPENAI_API_KEY"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Log: LogConfig{Level: "info"},
		Gateway: GatewayConfig{
			Backend: GatewayOpenAI,
			Timeout: 2 * time.Minute,
		},
		Engine:    EngineConfig{MaxTokens: 4096},
		Store:     StoreConfig{Backend: BackendMemory, Dir: ".preceptor/sessions"},
		Redis:     RedisConfig{Addr: "localhost:6379", Prefix: "preceptor:"},
		Artifacts: ArtifactsConfig{Backend: BackendFile, Dir: ".preceptor/artifacts", Prefix: "artifacts"},
		HTTP: HTTPConfig{
			Addr:        ":8080",
			Metrics:     true,
			HandoutsDir: "handouts",
			Validation:  true,
			Sessions:    true,
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (optional)
// and the environment, then validates it.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.mergeEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) mergeEnv() error {
	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	var p providerEnv
	if err := env.Parse(&p); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	fill(&c.Gateway.Project, p.Project)
	fill(&c.Gateway.Location, p.Location)
	fill(&c.Gateway.EndpointID, p.EndpointID)
	if c.Gateway.Backend == GatewayOpenAI {
		fill(&c.Gateway.APIKey, p.OpenAIKey)
	}
	return nil
}

func fill(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

// Validate checks backend names and the settings each backend requires.
func (c Config) Validate() error {
	var errs []error

	switch c.Gateway.Backend {
	case GatewayOpenAI, GatewayScripted, GatewayEcho:
	case GatewayVertex:
		if c.Gateway.Project == "" || c.Gateway.EndpointID == "" {
			errs = append(errs, errors.New("gateway vertex: project and endpoint_id are required"))
		}
	case GatewayVertexGemini:
		if c.Gateway.Project == "" {
			errs = append(errs, errors.New("gateway vertex-gemini: project is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown gateway backend %q", c.Gateway.Backend))
	}

	switch c.Store.Backend {
	case BackendMemory, BackendFile, BackendRedis:
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", c.Store.Backend))
	}

	switch c.Artifacts.Backend {
	case BackendMemory, BackendFile, BackendRedis:
	case BackendGCS:
		if c.Artifacts.Bucket == "" {
			errs = append(errs, errors.New("artifacts gcs: bucket is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown artifacts backend %q", c.Artifacts.Backend))
	}

	if _, _, err := c.Store.Keys(); err != nil {
		errs = append(errs, err)
	}
	if (c.Store.Backend == BackendRedis || c.Artifacts.Backend == BackendRedis) && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis: addr is required"))
	}
	if c.Engine.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("engine: max_tokens must be positive, got %d", c.Engine.MaxTokens))
	}
	if strings.TrimSpace(c.Log.Level) == "" {
		errs = append(errs, errors.New("log: level is required"))
	}
	return errors.Join(errs...)
}
