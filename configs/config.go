package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration
type Config struct {
	Port        string
	Environment string
	LogLevel    string
	APIKey      string

	AdminUsername string
	AdminPassword string
	// bcryptハッシュ。設定されている場合はAdminPasswordより優先します
	AdminPasswordHash string

	// デフォルトのAIプロバイダー設定（リクエストで上書き可能）
	DefaultProvider string

	GroqAPIKey  string
	GroqModel   string
	GroqBaseURL string

	HuggingFaceToken    string
	HuggingFaceModel    string
	HuggingFaceBaseURLs []string

	UpstreamTimeout     time.Duration
	MockLatency         time.Duration
	AssistantPromptPath string
	DataSeed            uint64 // 0のときは起動時刻から生成
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Port:                getEnv("PORT", "8080"),
		Environment:         getEnv("ENVIRONMENT", "development"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		APIKey:              getEnv("API_KEY", ""),
		AdminUsername:       getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword:       getEnv("ADMIN_PASSWORD", ""),
		AdminPasswordHash:   getEnv("ADMIN_PASSWORD_HASH", ""),
		DefaultProvider:     getEnv("AI_PROVIDER", "groq"),
		GroqAPIKey:          getEnv("GROQ_API_KEY", ""),
		GroqModel:           getEnv("GROQ_MODEL", "llama-3.3-70b-versatile"),
		GroqBaseURL:         getEnv("GROQ_BASE_URL", "https://api.groq.com/openai/v1/"),
		HuggingFaceToken:    getEnv("HF_TOKEN", ""),
		HuggingFaceModel:    getEnv("HF_MODEL", "mistralai/Mistral-7B-Instruct-v0.2"),
		HuggingFaceBaseURLs: getEnvList("HF_BASE_URLS", []string{"https://router.huggingface.co", "https://api-inference.huggingface.co"}),
		UpstreamTimeout:     getEnvDuration("UPSTREAM_TIMEOUT", 30*time.Second),
		MockLatency:         getEnvDuration("MOCK_LATENCY", time.Second),
		AssistantPromptPath: getEnv("ASSISTANT_PROMPT_PATH", ""),
		DataSeed:            getEnvUint("DATA_SEED", 0),
	}
}

// IsDevelopment は開発環境かどうかを返します。
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "test"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvList はカンマ区切りの環境変数を読み込みます。
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvUint(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.ParseUint(value, 10, 64); err == nil {
			return n
		}
	}
	return defaultValue
}
