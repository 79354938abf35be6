package config

import (
	"errors"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ErrMissingAPIKey is returned when no LLM credential can be found in the
// config file or the environment.
var ErrMissingAPIKey = errors.New("OPENAI_API_KEY is not set; add it to the environment, a .env file, or the config file")

// Config holds all configuration for the application.
type Config struct {
	OpenAI   OpenAI   `mapstructure:"openai"`
	Server   Server   `mapstructure:"server"`
	Database Database `mapstructure:"database"`
	Logger   Logger   `mapstructure:"logger"`
	Search   Search   `mapstructure:"search"`
	Agent    Agent    `mapstructure:"agent"`
}

// OpenAI holds the configuration for the LLM provider.
type OpenAI struct {
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	Temperature float32 `mapstructure:"temperature"`
}

// Server holds the configuration for the HTTP API server.
type Server struct {
	Port      int    `mapstructure:"port"`
	StaticDir string `mapstructure:"static_dir"`
	// UploadTTLSeconds bounds how long an uploaded table stays readable.
	UploadTTLSeconds int `mapstructure:"upload_ttl_seconds"`
}

// Database holds the configuration for the position ledger store.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Search holds the configuration for the web search client.
type Search struct {
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// Agent holds the configuration for the conversational agent loop.
type Agent struct {
	MaxIterations int `mapstructure:"max_iterations"`
}

// LoadConfig reads configuration from file or environment variables.
// A .env file, when present, is folded into the environment first so that
// secrets never need to live in the config file.
func LoadConfig(path string) (config Config, err error) {
	// Ignore a missing .env; the system environment still applies.
	_ = godotenv.Load()

	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yml")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	// The conventional variable name, without the openai. prefix.
	_ = viper.BindEnv("openai.api_key", "OPENAI_API_KEY")

	viper.SetDefault("openai.model", "gpt-4")
	viper.SetDefault("openai.temperature", 0.0)
	viper.SetDefault("server.port", 8000)
	viper.SetDefault("server.static_dir", "frontend/static")
	viper.SetDefault("server.upload_ttl_seconds", 3600)
	viper.SetDefault("database.dsn", "portfolio.db")
	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.format", "console")
	viper.SetDefault("search.timeout_seconds", 15)
	viper.SetDefault("search.rate_limit", 1) // requests per second
	viper.SetDefault("search.rate_limit_burst", 2)
	viper.SetDefault("agent.max_iterations", 6)

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	return
}

// ValidateForAgent checks that the credentials the agent needs are present.
// Called before any agent construction so a missing key fails fast.
func (c *Config) ValidateForAgent() error {
	if strings.TrimSpace(c.OpenAI.APIKey) == "" {
		return ErrMissingAPIKey
	}
	return nil
}
