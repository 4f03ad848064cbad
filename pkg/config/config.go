package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		CORSOrigins     []string      `yaml:"cors_origins"`
	} `yaml:"server"`
	Logging struct {
		Level     string `yaml:"level"`
		Format    string `yaml:"format"`
		Output    string `yaml:"output"`
		Collector struct {
			Topic          string        `yaml:"topic"`
			Interval       time.Duration `yaml:"interval"`
			CountThreshold int           `yaml:"count_threshold"`
		} `yaml:"collector"`
	} `yaml:"logging"`
	Database   Database `yaml:"database"`
	Pagination struct {
		DefaultLimit int `yaml:"default_limit"`
		MaxLimit     int `yaml:"max_limit"`
	} `yaml:"pagination"`
	Push struct {
		Path         string        `yaml:"path"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
		PingInterval time.Duration `yaml:"ping_interval"`
		SendBuffer   int           `yaml:"send_buffer"`
	} `yaml:"push"`
	Webhook struct {
		RateLimit struct {
			Enabled  bool    `yaml:"enabled"`
			Capacity int     `yaml:"capacity"`
			Refill   float64 `yaml:"refill_per_second"`
		} `yaml:"rate_limit"`
	} `yaml:"webhook"`
	Cache struct {
		Enabled bool          `yaml:"enabled"`
		TTL     time.Duration `yaml:"ttl"`
	} `yaml:"cache"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Channel  string `yaml:"channel"`
	} `yaml:"redis"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			Enabled    bool          `yaml:"enabled"`
			GroupID    string        `yaml:"group_id"`
			Workers    int           `yaml:"workers"`
			RetryMax   int           `yaml:"retry_max"`
			BackoffMin time.Duration `yaml:"backoff_min"`
			BackoffMax time.Duration `yaml:"backoff_max"`
			DLQTopic   string        `yaml:"dlq_topic"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled     bool          `yaml:"enabled"`
		Host        string        `yaml:"host"`
		Port        int           `yaml:"port"`
		Database    string        `yaml:"database"`
		User        string        `yaml:"user"`
		Password    string        `yaml:"password"`
		Table       string        `yaml:"table"`
		UseHTTP     bool          `yaml:"use_http"`
		AsyncInsert bool          `yaml:"async_insert"`
		DialTimeout time.Duration `yaml:"dial_timeout"`
		ReadTimeout time.Duration `yaml:"read_timeout"`
	} `yaml:"clickhouse"`
}

type Database struct {
	Driver          string        `yaml:"driver"` // postgres or sqlite
	DSN             string        `yaml:"dsn"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Name            string        `yaml:"name"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	QueryTimeout    time.Duration `yaml:"query_timeout"`
	AutoMigrate     bool          `yaml:"auto_migrate"`
}

// ConnString returns the DSN, building a postgres one from the discrete fields when unset.
func (d Database) ConnString() string {
	if d.DSN != "" {
		return d.DSN
	}
	if d.Driver == "sqlite" {
		return "file::memory:?cache=shared"
	}
	port := d.Port
	if port == 0 {
		port = 5432
	}
	ssl := d.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, port, d.User, d.Password, d.Name, ssl)
}

// envOverrides lists the environment variables honoured on top of the YAML file.
// Empty or zero values leave the file's setting alone.
type envOverrides struct {
	Port         int    `envconfig:"PORT"`
	DBDriver     string `envconfig:"DB_DRIVER"`
	DBDSN        string `envconfig:"DB_DSN"`
	DBHost       string `envconfig:"DB_HOST"`
	DBUser       string `envconfig:"DB_USER"`
	DBPassword   string `envconfig:"DB_PASSWORD"`
	DBName       string `envconfig:"DB_NAME"`
	RedisAddr    string `envconfig:"REDIS_ADDR"`
	KafkaBrokers string `envconfig:"KAFKA_BROKERS"`
	LogLevel     string `envconfig:"LOG_LEVEL"`
}

// Default returns the configuration used for anything the YAML file leaves out.
func Default() *Config {
	var c Config
	c.Environment = "development"
	c.Server.Port = 3000
	c.Server.ReadTimeout = 15 * time.Second
	c.Server.WriteTimeout = 15 * time.Second
	c.Server.ShutdownTimeout = 10 * time.Second
	c.Server.CORSOrigins = []string{"*"}
	c.Logging.Level = "info"
	c.Logging.Format = "json"
	c.Logging.Output = "stdout"
	c.Logging.Collector.Interval = 30 * time.Second
	c.Logging.Collector.CountThreshold = 100
	c.Database.Driver = "postgres"
	c.Database.MaxOpenConns = 10
	c.Database.MaxIdleConns = 5
	c.Database.ConnMaxLifetime = 30 * time.Minute
	c.Database.QueryTimeout = 5 * time.Second
	c.Database.AutoMigrate = true
	c.Pagination.DefaultLimit = 10
	c.Pagination.MaxLimit = 100
	c.Push.Path = "/ws"
	c.Push.WriteTimeout = 5 * time.Second
	c.Push.PingInterval = 30 * time.Second
	c.Push.SendBuffer = 8
	c.Webhook.RateLimit.Capacity = 20
	c.Webhook.RateLimit.Refill = 5
	c.Cache.TTL = 30 * time.Second
	c.Redis.Channel = "signalfeed:changes"
	c.Kafka.Topic = "signal-events"
	c.Kafka.RequiredAcks = -1
	c.Kafka.Producer.MaxAttempts = 3
	c.Kafka.Producer.Linger = 10 * time.Millisecond
	c.Kafka.Producer.BatchSize = 100
	c.Kafka.Producer.WriteTimeout = 5 * time.Second
	c.Kafka.Consumer.GroupID = "signalfeed-mirror"
	c.Kafka.Consumer.Workers = 2
	c.Kafka.Consumer.RetryMax = 3
	c.Kafka.Consumer.BackoffMin = 200 * time.Millisecond
	c.Kafka.Consumer.BackoffMax = 5 * time.Second
	c.ClickHouse.Port = 9000
	c.ClickHouse.Database = "signalfeed"
	c.ClickHouse.Table = "signal_events"
	c.ClickHouse.DialTimeout = 5 * time.Second
	c.ClickHouse.ReadTimeout = 30 * time.Second
	return &c
}

// Load reads and parses a YAML configuration file on top of Default().
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes on top of Default() and validates the result.
func Parse(b []byte) (*Config, error) {
	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML (when path exists) and overrides with environment variables.
// A missing file is not an error so containers can run from the environment alone.
func LoadWithEnv(path string) (*Config, error) {
	c := Default()
	if path != "" {
		loaded, err := Load(path)
		switch {
		case err == nil:
			c = loaded
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, err
		}
	}

	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv() error {
	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return fmt.Errorf("process env config: %w", err)
	}

	if env.Port > 0 {
		c.Server.Port = env.Port
	}
	if env.DBDriver != "" {
		c.Database.Driver = env.DBDriver
	}
	if env.DBDSN != "" {
		c.Database.DSN = env.DBDSN
	}
	if env.DBHost != "" {
		c.Database.Host = env.DBHost
	}
	if env.DBUser != "" {
		c.Database.User = env.DBUser
	}
	if env.DBPassword != "" {
		c.Database.Password = env.DBPassword
	}
	if env.DBName != "" {
		c.Database.Name = env.DBName
	}
	if env.RedisAddr != "" {
		c.Redis.Addr = env.RedisAddr
		c.Redis.Enabled = true
	}
	if env.KafkaBrokers != "" {
		c.Kafka.Brokers = strings.Split(env.KafkaBrokers, ",")
	}
	if env.LogLevel != "" {
		c.Logging.Level = env.LogLevel
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be 'postgres' or 'sqlite', got '%s'", c.Database.Driver)
	}
	if c.Pagination.MaxLimit <= 0 {
		return fmt.Errorf("pagination.max_limit must be positive")
	}
	if c.Pagination.DefaultLimit <= 0 || c.Pagination.DefaultLimit > c.Pagination.MaxLimit {
		return fmt.Errorf("pagination.default_limit must be in (0, %d]", c.Pagination.MaxLimit)
	}
	if !strings.HasPrefix(c.Push.Path, "/") {
		return fmt.Errorf("push.path must start with '/'")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.ClickHouse.Enabled && c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host is required when clickhouse is enabled")
	}
	return nil
}
