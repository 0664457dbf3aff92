package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type SchedulerConfig struct {
	ParallelLimit int `mapstructure:"parallel_limit"`
	MaxRetries    int `mapstructure:"max_retries"`
}

type PipelineConfig struct {
	TargetLanguage     string        `mapstructure:"target_language"`
	Voice              string        `mapstructure:"voice"`
	StageLatency       time.Duration `mapstructure:"stage_latency"`
	FailureProbability float64       `mapstructure:"failure_probability"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads config.yaml when present and applies DUBQUEUE_* env
// overrides on top of the defaults.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	v.SetEnvPrefix("DUBQUEUE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("scheduler.parallel_limit", 2)
	v.SetDefault("scheduler.max_retries", 1)

	v.SetDefault("pipeline.target_language", "Arabic")
	v.SetDefault("pipeline.voice", "Kore")
	v.SetDefault("pipeline.stage_latency", 1500*time.Millisecond)
	v.SetDefault("pipeline.failure_probability", 0.0)

	v.SetDefault("log.level", "info")
}
