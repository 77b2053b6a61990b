package config

import (
	"time"

	"bloomboard/pkg/circuitbreaker"
	pkgconfig "bloomboard/pkg/config"
)

const (
	DefaultStorageKey  = "bb_habits"
	DefaultFeedbackTTL = 900 * time.Millisecond
)

type Config struct {
	Log      pkgconfig.LogConfig      `yaml:"log"`
	Server   pkgconfig.ServerConfig   `yaml:"server"`
	Storage  pkgconfig.StorageConfig  `yaml:"storage"`
	DB       pkgconfig.DBConfig       `yaml:"db"`
	Redis    pkgconfig.RedisConfig    `yaml:"redis"`
	MQ       pkgconfig.MQConfig       `yaml:"mq"`
	Otel     pkgconfig.OtelConfig     `yaml:"otel"`
	Feedback pkgconfig.FeedbackConfig `yaml:"feedback"`
	Import   pkgconfig.ImportConfig   `yaml:"import"`
	Breaker  circuitbreaker.Config    `yaml:"breaker"`
}

// Load 读取 configDir 下的 base.yaml / <env>.yaml / secrets.env，再用环境变量覆盖。
// 目录或文件不存在时返回默认配置。
func Load(configDir, env string) (*Config, error) {
	merged, err := pkgconfig.LoadConfig(env, configDir)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := pkgconfig.Decode(merged, cfg); err != nil {
		return nil, err
	}

	overrideFromEnv(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

// Default 本地开发默认值：文件存储，数据放在 ./data
func Default() *Config {
	return &Config{
		Log:    pkgconfig.LogConfig{Mode: "production"},
		Server: pkgconfig.ServerConfig{Port: ":8080"},
		Storage: pkgconfig.StorageConfig{
			Driver: "file",
			Key:    DefaultStorageKey,
			Dir:    "data",
			Path:   "data/bloomboard.db",
		},
		DB: pkgconfig.DBConfig{
			Host: "localhost",
			Port: 5432,
			User: "bloomboard",
			Name: "bloomboard",
		},
		Redis:    pkgconfig.RedisConfig{Addr: "localhost:6379"},
		Otel:     pkgconfig.OtelConfig{Endpoint: "localhost:4317"},
		Feedback: pkgconfig.FeedbackConfig{TTL: DefaultFeedbackTTL},
		Breaker:  circuitbreaker.DefaultConfig(),
	}
}

func overrideFromEnv(cfg *Config) {
	pkgconfig.OverrideServerFromEnv(&cfg.Server)
	pkgconfig.OverrideStorageFromEnv(&cfg.Storage)
	pkgconfig.OverrideDBFromEnv(&cfg.DB)
	pkgconfig.OverrideRedisFromEnv(&cfg.Redis)
	pkgconfig.OverrideMQFromEnv(&cfg.MQ)
	pkgconfig.OverrideOtelFromEnv(&cfg.Otel)
	pkgconfig.OverrideImportFromEnv(&cfg.Import)
	if mode := pkgconfig.GetEnv("LOG_MODE", ""); mode != "" {
		cfg.Log.Mode = mode
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Storage.Key == "" {
		cfg.Storage.Key = DefaultStorageKey
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "file"
	}
	if cfg.Feedback.TTL <= 0 {
		cfg.Feedback.TTL = DefaultFeedbackTTL
	}
	if cfg.Server.Port == "" {
		cfg.Server.Port = ":8080"
	}
}
