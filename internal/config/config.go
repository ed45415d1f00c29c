package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App    AppConfig
	LLM    LLMConfig
	Store  StoreConfig
	Upload UploadConfig
	Otel   OtelConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	CorsAllowedOrigins []string
}

type LLMConfig struct {
	Provider          string // "gemini" or "openai"
	Model             string
	BaseURL           string
	APIKey            string
	ParamPrefix       string // when set, the key is read from SSM instead
	GenerationTimeout time.Duration
	HistoryWindow     int
}

type StoreConfig struct {
	Backend    string // "memory" or "dynamodb"
	StateTable string
	TTL        time.Duration
}

type UploadConfig struct {
	Dir      string
	MaxBytes int64
}

type OtelConfig struct {
	Enabled  bool
	Endpoint string
}

const (
	ProviderGemini  = "gemini"
	ProviderOpenAI  = "openai"
	BackendMemory   = "memory"
	BackendDynamoDB = "dynamodb"
)

// Load reads a .env file when present, then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds the config from the process environment only.
func FromEnv() (*Config, error) {
	provider := strings.ToLower(getEnv("LLM_PROVIDER", ProviderGemini))

	cfg := &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "8000"),
			Environment:        getEnv("APP_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "app.log"),
			CorsAllowedOrigins: corsOrigins(),
		},
		LLM: LLMConfig{
			Provider:          provider,
			Model:             getEnv("LLM_MODEL", defaultModel(provider)),
			BaseURL:           getEnv("LLM_BASE_URL", ""),
			APIKey:            apiKey(provider),
			ParamPrefix:       getEnv("PARAM_PREFIX", ""),
			GenerationTimeout: getEnvAsDuration("GENERATION_TIMEOUT", 60*time.Second),
			HistoryWindow:     getEnvAsInt("HISTORY_WINDOW", 3),
		},
		Store: StoreConfig{
			Backend:    strings.ToLower(getEnv("STORE_BACKEND", BackendMemory)),
			StateTable: getEnv("STATE_TABLE", ""),
			TTL:        getEnvAsDuration("STATE_TTL", 30*24*time.Hour),
		},
		Upload: UploadConfig{
			Dir:      getEnv("UPLOAD_DIR", "./uploads"),
			MaxBytes: int64(getEnvAsInt("MAX_UPLOAD_BYTES", 10<<20)),
		},
		Otel: OtelConfig{
			Enabled:  getEnv("OTEL_ENABLED", "") == "true",
			Endpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
		},
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func (c *Config) validate() error {
	switch c.LLM.Provider {
	case ProviderGemini, ProviderOpenAI:
	default:
		return fmt.Errorf("config: unsupported LLM_PROVIDER %q", c.LLM.Provider)
	}
	if c.LLM.APIKey == "" && c.LLM.ParamPrefix == "" {
		return fmt.Errorf("config: %s or PARAM_PREFIX is required", apiKeyEnv(c.LLM.Provider))
	}
	switch c.Store.Backend {
	case BackendMemory:
	case BackendDynamoDB:
		if c.Store.StateTable == "" {
			return errors.New("config: STATE_TABLE is required for the dynamodb store backend")
		}
	default:
		return fmt.Errorf("config: unsupported STORE_BACKEND %q", c.Store.Backend)
	}
	return nil
}

func defaultModel(provider string) string {
	if provider == ProviderOpenAI {
		return "gpt-4o-mini"
	}
	return "gemini-2.5-flash"
}

func apiKeyEnv(provider string) string {
	if provider == ProviderOpenAI {
		return "OPENAI_API_KEY"
	}
	return "GEMINI_API_KEY"
}

func apiKey(provider string) string {
	return strings.TrimSpace(getEnv(apiKeyEnv(provider), ""))
}

// corsOrigins merges CORS_ALLOWED_ORIGINS with FRONTEND_URL.
func corsOrigins() []string {
	raw := getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:3001")
	var out []string
	seen := map[string]bool{}
	for _, o := range append(strings.Split(raw, ","), getEnv("FRONTEND_URL", "")) {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "" || seen[o] {
			continue
		}
		seen[o] = true
		out = append(out, o)
	}
	return out
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil && value > 0 {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, err := time.ParseDuration(getEnv(key, "")); err == nil && value > 0 {
		return value
	}
	return fallback
}
