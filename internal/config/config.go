package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Server   ServerConfig
	Upstream UpstreamConfig
	Worker   WorkerConfig
	Redis    RedisConfig
	Database DatabaseConfig
	MinIO    MinIOConfig
	RabbitMQ RabbitMQConfig
}

type ServerConfig struct {
	Addr            string        `envconfig:"ADDR" default:"127.0.0.1:8080"`
	PublicPath      string        `envconfig:"PUBLIC_PATH" default:"/public"`
	PublicDir       string        `envconfig:"PUBLIC_DIR" default:"public"`
	ReadTimeout     time.Duration `envconfig:"API_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"API_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"API_SHUTDOWN_TIMEOUT" default:"10s"`
}

type UpstreamConfig struct {
	BaseURL            string        `envconfig:"UPSTREAM_BASE_URL" default:"https://i.ytimg.com"`
	PlayerURL          string        `envconfig:"UPSTREAM_PLAYER_URL" default:"https://youtubei.googleapis.com/youtubei/v1/player"`
	MetadataTimeout    time.Duration `envconfig:"UPSTREAM_METADATA_TIMEOUT" default:"10s"`
	MediaTimeout       time.Duration `envconfig:"UPSTREAM_MEDIA_TIMEOUT" default:"30s"`
	RateLimitPerMinute int           `envconfig:"RATE_LIMIT_PER_MINUTE" default:"120"`
	RateLimitBurst     int           `envconfig:"RATE_LIMIT_BURST" default:"20"`
}

type WorkerConfig struct {
	MaxRetries      int           `envconfig:"WORKER_MAX_RETRIES" default:"3"`
	ShutdownTimeout time.Duration `envconfig:"WORKER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// RedisConfig configures the rate limiter's backing store. Addr left empty
// disables rate limiting entirely (fail-open), so the zero-config case still
// serves traffic.
type RedisConfig struct {
	Addr     string `envconfig:"REDIS_ADDR" default:""`
	Password string `envconfig:"REDIS_PASSWORD" default:""`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

// Enabled reports whether a rate limiter backend was configured.
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

type DatabaseConfig struct {
	Host     string `envconfig:"POSTGRES_HOST" default:""`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER" default:"vidproxy"`
	Password string `envconfig:"POSTGRES_PASSWORD" default:"vidproxy"`
	DBName   string `envconfig:"POSTGRES_DB" default:"vidproxy"`
	SSLMode  string `envconfig:"POSTGRES_SSLMODE" default:"disable"`
}

// Enabled reports whether the analytics Postgres sink was configured.
func (c DatabaseConfig) Enabled() bool {
	return c.Host != ""
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

type MinIOConfig struct {
	Endpoint  string `envconfig:"MINIO_ENDPOINT" default:""`
	AccessKey string `envconfig:"MINIO_ACCESS_KEY" default:"minioadmin"`
	SecretKey string `envconfig:"MINIO_SECRET_KEY" default:"minioadmin"`
	Bucket    string `envconfig:"MINIO_BUCKET" default:"vidproxy-public"`
	UseSSL    bool   `envconfig:"MINIO_USE_SSL" default:"false"`
}

// Enabled reports whether object storage was configured for the static route.
func (c MinIOConfig) Enabled() bool {
	return c.Endpoint != ""
}

type RabbitMQConfig struct {
	Host     string `envconfig:"RABBITMQ_HOST" default:""`
	Port     int    `envconfig:"RABBITMQ_PORT" default:"5672"`
	User     string `envconfig:"RABBITMQ_USER" default:"vidproxy"`
	Password string `envconfig:"RABBITMQ_PASSWORD" default:"vidproxy"`
	VHost    string `envconfig:"RABBITMQ_VHOST" default:"/"`
}

// Enabled reports whether the analytics queue was configured.
func (c RabbitMQConfig) Enabled() bool {
	return c.Host != ""
}

func (c RabbitMQConfig) URL() string {
	return fmt.Sprintf(
		"amqp://%s:%s@%s:%d%s",
		c.User, c.Password, c.Host, c.Port, c.VHost,
	)
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// ApplyArgs overrides Server.Addr, Server.PublicPath and Server.PublicDir,
// in that order, from the first three entries of args (typically
// os.Args[1:]). Fewer than three args overrides only that many fields;
// extra args beyond the third are ignored. Positional arguments win over
// whatever ADDR/PUBLIC_PATH/PUBLIC_DIR resolved to from the environment.
func (c *Config) ApplyArgs(args []string) {
	fields := []*string{&c.Server.Addr, &c.Server.PublicPath, &c.Server.PublicDir}
	for i, arg := range args {
		if i >= len(fields) {
			break
		}
		*fields[i] = arg
	}
}
