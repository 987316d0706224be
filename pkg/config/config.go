package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig
	SQLite  SQLiteConfig
	Redis   RedisConfig
	LLM     LLMConfig
	Auth    AuthConfig
	Session SessionConfig
	Logging LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type LLMConfig struct {
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int
	TimeoutSec  int
}

type AuthConfig struct {
	JWTSecret          string
	TokenExpireMinutes int
}

type SessionConfig struct {
	HeartbeatIntervalSec    int
	InterventionCooldownSec int
	AnalysisWorkers         int
	DefaultQuestionCount    int
	QuestionCacheTTLMinutes int
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
	viper.AddConfigPath("/etc/interview-helper")

	viper.SetEnvPrefix("INTERVIEW_HELPER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

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

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8000)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 30)
	viper.SetDefault("server.bodyLimit", 10485760)

	viper.SetDefault("sqlite.path", "./data/interviews.db")

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("llm.model", "gpt-4o-mini")
	viper.SetDefault("llm.temperature", 0.7)
	viper.SetDefault("llm.maxTokens", 2000)
	viper.SetDefault("llm.timeoutSec", 60)

	viper.SetDefault("auth.jwtSecret", "change-me-in-production")
	viper.SetDefault("auth.tokenExpireMinutes", 43200)

	viper.SetDefault("session.heartbeatIntervalSec", 30)
	viper.SetDefault("session.interventionCooldownSec", 15)
	viper.SetDefault("session.analysisWorkers", 2)
	viper.SetDefault("session.defaultQuestionCount", 15)
	viper.SetDefault("session.questionCacheTTLMinutes", 60)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
