// Package config loads the tool configuration from defaults, an optional
// .env file and RAGQA_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"go-rag-qa/logging"
)

// EnvPrefix marks environment variables read as configuration.
// RAGQA_EMBEDDER_API_KEY maps to embedder.api_key.
const EnvPrefix = "RAGQA_"

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderSimple = "simple"
)

type ProviderConfig struct {
	Provider string        `koanf:"provider" validate:"required,oneof=gemini openai simple"`
	Model    string        `koanf:"model"`
	APIKey   string        `koanf:"api_key"`
	BaseURL  string        `koanf:"base_url" validate:"omitempty,url"`
	Timeout  time.Duration `koanf:"timeout" validate:"gte=0"`
}

type BuildConfig struct {
	Concurrency  int           `koanf:"concurrency" validate:"gte=1"`
	Retries      uint64        `koanf:"retries"`
	RetryBackoff time.Duration `koanf:"retry_backoff" validate:"gte=0"`
}

type CacheConfig struct {
	Size int           `koanf:"size" validate:"gte=0"`
	TTL  time.Duration `koanf:"ttl" validate:"gte=0"`
}

type ServerConfig struct {
	Addr string `koanf:"addr" validate:"required"`
}

type Config struct {
	Documents    []string       `koanf:"documents"`
	StorePath    string         `koanf:"store_path" validate:"required"`
	ChunkWidth   int            `koanf:"chunk_width" validate:"gt=0"`
	TopK         int            `koanf:"top_k" validate:"gt=0"`
	Similarity   string         `koanf:"similarity" validate:"oneof=dot cosine"`
	ForceRebuild bool           `koanf:"force_rebuild"`
	ContextLabel string         `koanf:"context_label"`
	DefaultQuery string         `koanf:"default_query" validate:"required"`
	Embedder     ProviderConfig `koanf:"embedder"`
	Generator    ProviderConfig `koanf:"generator"`
	Build        BuildConfig    `koanf:"build"`
	Cache        CacheConfig    `koanf:"cache"`
	Log          logging.Config `koanf:"log"`
	Server       ServerConfig   `koanf:"server"`
}

func Default() *Config {
	return &Config{
		StorePath:    "vector_store.json",
		ChunkWidth:   2000,
		TopK:         3,
		Similarity:   "dot",
		DefaultQuery: "What is the main topic of discussion?",
		Embedder: ProviderConfig{
			Provider: ProviderGemini,
			Model:    "gemini-embedding-001",
			Timeout:  30 * time.Second,
		},
		Generator: ProviderConfig{
			Provider: ProviderGemini,
			Model:    "gemini-2.5-flash",
			Timeout:  60 * time.Second,
		},
		Build: BuildConfig{
			Concurrency:  1,
			Retries:      0,
			RetryBackoff: 500 * time.Millisecond,
		},
		Cache: CacheConfig{
			Size: 256,
			TTL:  10 * time.Minute,
		},
		Log:    logging.Config{Level: "info"},
		Server: ServerConfig{Addr: ":8080"},
	}
}

// Load reads envFile when it exists (variables already set win), then layers
// RAGQA_* variables over the defaults and validates the result.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: load %s: %w", envFile, err)
		}
	}
	k := koanf.New(".")
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}
	if err := k.Load(env.Provider(".", env.Opt{
		Prefix: EnvPrefix,
		TransformFunc: func(key, value string) (string, any) {
			return transformEnvKey(key), value
		},
	}), nil); err != nil {
		return nil, fmt.Errorf("config: load environment: %w", err)
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			Result:           &cfg,
			TagName:          "koanf",
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
		},
	}); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	applyCredentialFallbacks(&cfg.Embedder)
	applyCredentialFallbacks(&cfg.Generator)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	v := validator.New()
	v.RegisterStructValidation(validateGenerator, Config{})
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// validateGenerator rejects providers that only offer embeddings.
func validateGenerator(sl validator.StructLevel) {
	cfg, ok := sl.Current().Interface().(Config)
	if !ok {
		return
	}
	if cfg.Generator.Provider == ProviderSimple {
		sl.ReportError(cfg.Generator.Provider, "Generator.Provider", "Provider", "generator_provider", "")
	}
}

var sections = map[string]struct{}{
	"embedder":  {},
	"generator": {},
	"build":     {},
	"cache":     {},
	"log":       {},
	"server":    {},
}

// transformEnvKey maps RAGQA_EMBEDDER_API_KEY to embedder.api_key and
// RAGQA_STORE_PATH to store_path.
func transformEnvKey(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	head, rest, ok := strings.Cut(key, "_")
	if !ok {
		return key
	}
	if _, isSection := sections[head]; isSection && rest != "" {
		return head + "." + rest
	}
	return key
}

// applyCredentialFallbacks reads the provider's conventional key variable
// when no key was configured.
func applyCredentialFallbacks(p *ProviderConfig) {
	if p.APIKey != "" {
		return
	}
	var names []string
	switch p.Provider {
	case ProviderGemini:
		names = []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"}
	case ProviderOpenAI:
		names = []string{"OPENAI_API_KEY"}
	}
	for _, name := range names {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			p.APIKey = v
			return
		}
	}
}
