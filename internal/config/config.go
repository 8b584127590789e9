package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server  ServerConfig
	DB      DBConfig
	Redis   RedisConfig
	LLM     LLMConfig
	Session SessionConfig
	History HistoryConfig
	Auth    AuthConfig
	LogMode string
}

type ServerConfig struct {
	Port           string
	AllowedOrigins []string
	ScenariosFile  string
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// LLMConfig selects the generation backend. Exactly one of the flags wins,
// checked in the order CLI, mock, completions, then the Anthropic API.
type LLMConfig struct {
	UseCLI          bool
	Mock            bool
	CLIPath         string
	AnthropicModel  string
	AnthropicAPIKey string
	CompletionsURL  string
	CompletionsKey  string
	CompletionsName string
	ShortTimeout    time.Duration
	LongTimeout     time.Duration
}

type SessionConfig struct {
	MaxConsultations  int
	CoverageThreshold float64
}

type HistoryConfig struct {
	Backend    string // memory, postgres, or redis
	MaxEntries int
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
			ScenariosFile:  getEnv("SCENARIOS_FILE", "scenarios.json"),
		},
		DB: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "clinsim_user"),
			Password: getEnv("DB_PASSWORD", "clinsim_password"),
			DBName:   getEnv("DB_NAME", "clinsim"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		LLM: LLMConfig{
			UseCLI:          getEnvAsBool("USE_CLI_GENERATOR", false),
			Mock:            getEnvAsBool("MOCK_GENERATOR", false),
			CLIPath:         getEnv("CLAUDE_CLI_PATH", "claude"),
			AnthropicModel:  getEnv("ANTHROPIC_MODEL", "claude-sonnet-4-5-20250929"),
			AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
			CompletionsURL:  getEnv("COMPLETIONS_BASE_URL", ""),
			CompletionsKey:  getEnv("COMPLETIONS_API_KEY", ""),
			CompletionsName: getEnv("COMPLETIONS_MODEL", "local-model"),
			ShortTimeout:    getEnvAsDuration("LLM_SHORT_TIMEOUT", 45*time.Second),
			LongTimeout:     getEnvAsDuration("LLM_LONG_TIMEOUT", 240*time.Second),
		},
		Session: SessionConfig{
			MaxConsultations:  getEnvAsInt("MAX_CONSULTATIONS", 3),
			CoverageThreshold: getEnvAsFloat("ANAMNESIS_COVERAGE_THRESHOLD", 0.5),
		},
		History: HistoryConfig{
			Backend:    strings.ToLower(getEnv("HISTORY_BACKEND", "memory")),
			MaxEntries: getEnvAsInt("HISTORY_MAX_ENTRIES", 20),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", "change-me-in-production"),
			TokenTTL:  getEnvAsDuration("JWT_TTL", 7*24*time.Hour),
		},
		LogMode: getEnv("LOG_MODE", "dev"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
