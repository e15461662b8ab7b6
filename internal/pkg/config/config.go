package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// -----------------------------------------------------------------------------
// Environment variable configuration guidelines:
// - required: Values that differ between environments (port, DB connection, etc.), security settings
// - default: Values common across all environments (timezone, timeout, etc.), standard settings
// -----------------------------------------------------------------------------

type Config struct {
	Server   ServerConfig
	DB       DBConfig
	Store    StoreConfig
	CORS     CORSConfig
	Log      LogConfig
	JWT      JWTConfig
	Policy   PolicyConfig
	Reminder ReminderConfig
	Redis    RedisConfig
	AMQP     AMQPConfig
	Assets   AssetsConfig
}

type ServerConfig struct {
	Port string `envconfig:"PORT" required:"true"`
}

type DBConfig struct {
	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     string `envconfig:"DB_PORT" default:"5432"`
	User     string `envconfig:"DB_USER"`
	Password string `envconfig:"DB_PASSWORD"`
	DBName   string `envconfig:"DB_NAME"`
	SSLMode  string `envconfig:"DB_SSL_MODE" default:"disable"`
	TimeZone string `envconfig:"DB_TIMEZONE" default:"Asia/Tokyo"`
	MaxConns int32  `envconfig:"DB_MAX_CONNS" default:"20"`
}

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type StoreConfig struct {
	Driver string `envconfig:"STORE_DRIVER" default:"postgres"`
}

type CORSConfig struct {
	AllowOrigins     []string      `envconfig:"CORS_ALLOW_ORIGINS" default:"http://localhost:3000,http://localhost:8080"`
	AllowMethods     []string      `envconfig:"CORS_ALLOW_METHODS" default:"GET,POST,PUT,PATCH,DELETE,OPTIONS"`
	AllowHeaders     []string      `envconfig:"CORS_ALLOW_HEADERS" default:"Origin,Content-Type,Accept,Authorization"`
	ExposeHeaders    []string      `envconfig:"CORS_EXPOSE_HEADERS" default:"Content-Length"`
	AllowCredentials bool          `envconfig:"CORS_ALLOW_CREDENTIALS" default:"true"`
	MaxAge           time.Duration `envconfig:"CORS_MAX_AGE" default:"12h"`
}

type LogConfig struct {
	Level          string `envconfig:"LOG_LEVEL" default:"info"`
	TimeZone       string `envconfig:"LOG_TIMEZONE" default:"Asia/Tokyo"`
	TimeFormat     string `envconfig:"LOG_TIME_FORMAT" default:"2006-01-02 15:04:05.000"`
	TimeZoneOffset int    `envconfig:"LOG_TIMEZONE_OFFSET" default:"32400"` // 9*60*60
}

type JWTConfig struct {
	Secret string `envconfig:"JWT_SECRET" required:"true"`
}

// Booking rules; converted into a policy.Policy at startup.
type PolicyConfig struct {
	OpeningHour      int           `envconfig:"POLICY_OPENING_HOUR" default:"9"`
	MinLeadTime      time.Duration `envconfig:"POLICY_MIN_LEAD_TIME" default:"24h"`
	MaxAdvanceMonths int           `envconfig:"POLICY_MAX_ADVANCE_MONTHS" default:"3"`
	MaxAdvanceDays   int           `envconfig:"POLICY_MAX_ADVANCE_DAYS" default:"0"`
	TimeZone         string        `envconfig:"POLICY_TIMEZONE" default:"Asia/Tokyo"`
}

type ReminderConfig struct {
	Enabled     bool          `envconfig:"REMINDER_ENABLED" default:"true"`
	Interval    time.Duration `envconfig:"REMINDER_INTERVAL" default:"1h"`
	HorizonDays int           `envconfig:"REMINDER_HORIZON_DAYS" default:"2"`
	Concurrency int           `envconfig:"REMINDER_CONCURRENCY" default:"8"`
	LeaseTTL    time.Duration `envconfig:"REMINDER_LEASE_TTL" default:"5m"`
}

// Empty Addr selects the in-process sweep lease.
type RedisConfig struct {
	Addr     string `envconfig:"REDIS_ADDR"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

// Empty URL selects the structured-log notification sink.
type AMQPConfig struct {
	URL      string `envconfig:"AMQP_URL"`
	Exchange string `envconfig:"AMQP_EXCHANGE" default:"reservations"`
}

type AssetsConfig struct {
	Dir string `envconfig:"ASSETS_DIR" default:"./data/assets"`
}

func (c *DBConfig) BuildDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s&timezone=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode, c.TimeZone,
	)
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("failed to process env config: %w", err)
	}
	if cfg.Store.Driver != StoreDriverPostgres && cfg.Store.Driver != StoreDriverMemory {
		return Config{}, fmt.Errorf("unknown STORE_DRIVER %q", cfg.Store.Driver)
	}
	if cfg.Store.Driver == StoreDriverPostgres && (cfg.DB.User == "" || cfg.DB.DBName == "") {
		return Config{}, fmt.Errorf("DB_USER and DB_NAME are required for the postgres store")
	}
	if err := cfg.Reminder.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// time.NewTicker panics on a non-positive interval, so bad values fail at startup.
func (c ReminderConfig) validate() error {
	switch {
	case c.Interval <= 0:
		return fmt.Errorf("REMINDER_INTERVAL must be positive, got %s", c.Interval)
	case c.LeaseTTL <= 0:
		return fmt.Errorf("REMINDER_LEASE_TTL must be positive, got %s", c.LeaseTTL)
	case c.HorizonDays < 0:
		return fmt.Errorf("REMINDER_HORIZON_DAYS must not be negative, got %d", c.HorizonDays)
	case c.Concurrency <= 0:
		return fmt.Errorf("REMINDER_CONCURRENCY must be positive, got %d", c.Concurrency)
	}
	return nil
}

func NewTestConfig() Config {
	return Config{
		Server: ServerConfig{
			Port: "8889", // Test port
		},
		DB: DBConfig{
			Host:     "localhost",
			Port:     "15433", // Test DB port
			User:     "test",
			Password: "test",
			DBName:   "test_db",
			SSLMode:  "disable",
			TimeZone: "Asia/Tokyo",
			MaxConns: 10,
		},
		Store: StoreConfig{Driver: StoreDriverPostgres},
		Log: LogConfig{
			Level:          "error", // Error level only for tests
			TimeZone:       "Asia/Tokyo",
			TimeFormat:     "2006-01-02 15:04:05.000",
			TimeZoneOffset: 32400,
		},
		JWT: JWTConfig{
			Secret: "test-secret",
		},
		Policy: PolicyConfig{
			OpeningHour:      9,
			MinLeadTime:      24 * time.Hour,
			MaxAdvanceMonths: 3,
			TimeZone:         "Asia/Tokyo",
		},
		Reminder: ReminderConfig{
			Enabled:     false,
			Interval:    time.Hour,
			HorizonDays: 2,
			Concurrency: 4,
			LeaseTTL:    time.Minute,
		},
		AMQP: AMQPConfig{
			Exchange: "reservations",
		},
	}
}
