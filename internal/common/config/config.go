package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type GatewayConfig struct {
	Host      string
	Port      int
	Namespace string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	MaxConns int
}

type RabbitMQConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Exchange string
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

type BroadcastConfig struct {
	Interval time.Duration
}

type Config struct {
	Environment string
	Gateway     GatewayConfig
	Database    DatabaseConfig
	RabbitMQ    RabbitMQConfig
	Auth        AuthConfig
	Broadcast   BroadcastConfig
}

// Load reads config.yaml (if present) and FLEETTRACK_* environment
// variables. An absent signing secret is a configuration error: the token
// verifier cannot run without it, so the process must not start.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("FLEETTRACK")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.StringToTimeDurationHookFunc()
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("auth.jwtsecret is not configured")
	}

	return &cfg, nil
}

func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User, c.Database.Password,
		c.Database.Host, c.Database.Port, c.Database.Name,
	)
}

func (c *Config) RabbitMQURL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d/",
		c.RabbitMQ.User, c.RabbitMQ.Password,
		c.RabbitMQ.Host, c.RabbitMQ.Port,
	)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("gateway.host", "0.0.0.0")
	v.SetDefault("gateway.port", 8080)
	v.SetDefault("gateway.namespace", "/locations")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "fleettrack_user")
	v.SetDefault("database.password", "fleettrack_pass")
	v.SetDefault("database.name", "fleettrack_db")
	v.SetDefault("database.maxconns", 10)

	v.SetDefault("rabbitmq.host", "localhost")
	v.SetDefault("rabbitmq.port", 5672)
	v.SetDefault("rabbitmq.user", "guest")
	v.SetDefault("rabbitmq.password", "guest")
	v.SetDefault("rabbitmq.exchange", "telemetry_fanout")

	v.SetDefault("auth.tokenttl", "1h")

	v.SetDefault("broadcast.interval", "10s")
}
