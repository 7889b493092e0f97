package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Provider  ProviderConfig
	Upload    UploadConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
}

type ProviderConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	TimeoutSec int
	Retry      RetryConfig
	Breaker    BreakerConfig
}

// RetryConfig is the retry policy around provider calls. The original
// system had none; the policy is a configuration surface rather than a
// hardcoded curve, and Enabled=false restores the no-retry behavior.
type RetryConfig struct {
	Enabled        bool
	MaxAttempts    int
	InitialDelayMs int
	MaxDelayMs     int
	Multiplier     float64
}

type BreakerConfig struct {
	FailureThreshold int
	SuccessThreshold int
	TimeoutSec       int
}

type UploadConfig struct {
	MaxFileSizeMB      int
	ChunkTokens        int
	ChunkOverlapTokens int
	PollIntervalSec    int
	PollTimeoutSec     int
}

type RateLimitConfig struct {
	Enabled              bool
	MaxRequestsPerMinute int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/filesearch-rag")

	viper.SetEnvPrefix("RAG_API")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// No default exists for the key, so it must be bound explicitly for
	// the env var to survive Unmarshal.
	viper.BindEnv("provider.apiKey")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if config.Provider.APIKey == "" {
		return nil, fmt.Errorf("provider.apiKey is required (set RAG_API_PROVIDER_APIKEY)")
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8000)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 300)
	viper.SetDefault("server.bodyLimit", 104857600)

	viper.SetDefault("provider.baseURL", "https://generativelanguage.googleapis.com")
	viper.SetDefault("provider.model", "gemini-2.5-flash")
	viper.SetDefault("provider.timeoutSec", 120)

	viper.SetDefault("provider.retry.enabled", true)
	viper.SetDefault("provider.retry.maxAttempts", 3)
	viper.SetDefault("provider.retry.initialDelayMs", 500)
	viper.SetDefault("provider.retry.maxDelayMs", 5000)
	viper.SetDefault("provider.retry.multiplier", 2.0)

	viper.SetDefault("provider.breaker.failureThreshold", 5)
	viper.SetDefault("provider.breaker.successThreshold", 2)
	viper.SetDefault("provider.breaker.timeoutSec", 30)

	viper.SetDefault("upload.maxFileSizeMB", 50)
	viper.SetDefault("upload.chunkTokens", 512)
	viper.SetDefault("upload.chunkOverlapTokens", 64)
	viper.SetDefault("upload.pollIntervalSec", 5)
	viper.SetDefault("upload.pollTimeoutSec", 300)

	viper.SetDefault("ratelimit.enabled", true)
	viper.SetDefault("ratelimit.maxRequestsPerMinute", 60)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
