package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App        AppConfig        `mapstructure:"app"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Invitation InvitationConfig `mapstructure:"invitation"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
	CORS       CORSConfig       `mapstructure:"cors"`
}

type AppConfig struct {
	Name       string `mapstructure:"name"`
	Port       int    `mapstructure:"port"`
	Mode       string `mapstructure:"mode"`
	LogLevel   string `mapstructure:"log_level"`
	NodeID     int64  `mapstructure:"node_id"`
	HealthPort int    `mapstructure:"health_port"`
}

type JWTConfig struct {
	SecretKey string `mapstructure:"secret_key"`
	Issuer    string `mapstructure:"issuer"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // postgres | sqlite
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Name            string        `mapstructure:"name"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	TxTimeout       time.Duration `mapstructure:"tx_timeout"`
	SQLitePath      string        `mapstructure:"sqlite_path"`
}

// DSN 构建 PostgreSQL 连接串
func (c DatabaseConfig) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Name,
		sslMode,
	)
}

type RedisConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	Password       string        `mapstructure:"password"`
	DB             int           `mapstructure:"db"`
	PoolSize       int           `mapstructure:"pool_size"`
	MemberCacheTTL time.Duration `mapstructure:"member_cache_ttl"`
}

// Addr Redis 地址
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type NATSConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	URL           string        `mapstructure:"url"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
}

type InvitationConfig struct {
	TTL           time.Duration `mapstructure:"ttl"`
	SweepEnabled  bool          `mapstructure:"sweep_enabled"`
	SweepInterval int           `mapstructure:"sweep_interval"` // 秒 (1-60)
	SweepBatch    int           `mapstructure:"sweep_batch"`
	SweepWorkers  int           `mapstructure:"sweep_workers"`
}

type TelemetryConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Insecure    bool    `mapstructure:"insecure"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

// setDefaults 默认配置
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "group-service")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.mode", "release")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.node_id", 1)
	v.SetDefault("app.health_port", 8081)

	v.SetDefault("jwt.issuer", "im-web")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "im_db")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.tx_timeout", 5*time.Second)
	v.SetDefault("database.sqlite_path", "data/group.db")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.member_cache_ttl", 10*time.Minute)

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.max_reconnects", 10)
	v.SetDefault("nats.reconnect_wait", 2*time.Second)

	v.SetDefault("invitation.ttl", 7*24*time.Hour)
	v.SetDefault("invitation.sweep_enabled", false)
	v.SetDefault("invitation.sweep_interval", 60)
	v.SetDefault("invitation.sweep_batch", 500)
	v.SetDefault("invitation.sweep_workers", 1)

	v.SetDefault("telemetry.service_name", "group-service")
	v.SetDefault("telemetry.sample_ratio", 1.0)

	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
}

// Load 从指定路径加载配置，环境变量覆盖文件配置（如 DATABASE_HOST）
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Invitation.TTL <= 0 {
		return fmt.Errorf("invitation ttl must be positive")
	}
	if c.Invitation.SweepInterval < 1 || c.Invitation.SweepInterval > 60 {
		return fmt.Errorf("invitation sweep_interval must be between 1 and 60 seconds")
	}
	return nil
}
