package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"

	StoreDriverPostgres = "postgres"
	StoreDriverRedis    = "redis"
	StoreDriverMemory   = "memory"

	DeliveryMobizon = "mobizon"
	DeliveryConsole = "console"
	DeliveryFile    = "file"
)

type AppConfig struct {
	Env               string        `yaml:"env" env:"ENV"`
	DependencyTimeout time.Duration `yaml:"dependency_timeout" env:"DEPENDENCY_TIMEOUT"`
	SweepInterval     time.Duration `yaml:"sweep_interval" env:"SWEEP_INTERVAL"`
}

type ServerConfig struct {
	Port int `yaml:"port" env:"PORT"`
	// TrustedProxies — от кого принимаем X-Forwarded-For (для IP-лимита).
	TrustedProxies []string `yaml:"trusted_proxies" env:"TRUSTED_PROXIES" envSeparator:","`
}

type DatabaseConfig struct {
	DSN string `yaml:"url" env:"URL"`
}

type StoreConfig struct {
	// Driver selects where challenges, rate windows and sessions live.
	Driver string `yaml:"driver" env:"DRIVER"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr" env:"ADDR"`
	Password  string `yaml:"password" env:"PASSWORD"`
	DB        int    `yaml:"db" env:"DB"`
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
}

type OTPConfig struct {
	ExpiryMinutes         int    `yaml:"expiry_minutes" env:"EXPIRY_MINUTES"`
	MaxAttempts           int    `yaml:"max_attempts" env:"MAX_ATTEMPTS"`
	PerMinuteLimit        int    `yaml:"per_minute_limit" env:"PER_MINUTE_LIMIT"`
	PerDayLimit           int    `yaml:"per_day_limit" env:"PER_DAY_LIMIT"`
	IPPerMinuteLimit      int    `yaml:"ip_per_minute_limit" env:"IP_PER_MINUTE_LIMIT"`
	IPPerDayLimit         int    `yaml:"ip_per_day_limit" env:"IP_PER_DAY_LIMIT"`
	ResendCooldownSeconds int    `yaml:"resend_cooldown_seconds" env:"RESEND_COOLDOWN_SECONDS"`
	BcryptCost            int    `yaml:"bcrypt_cost" env:"BCRYPT_COST"`
	Delivery              string `yaml:"delivery" env:"DELIVERY"`
	DeliveryFile          string `yaml:"delivery_file" env:"DELIVERY_FILE"`
}

type JWTConfig struct {
	AccessSecret  string        `yaml:"access_secret" env:"ACCESS_SECRET"`
	RefreshSecret string        `yaml:"refresh_secret" env:"REFRESH_SECRET"`
	AccessTTL     time.Duration `yaml:"access_ttl" env:"ACCESS_TTL"`
	RefreshTTL    time.Duration `yaml:"refresh_ttl" env:"REFRESH_TTL"`
	// Leeway extends every exp check; keep 0 unless clients need it, skew is handled by MaxFutureIAT.
	Leeway        time.Duration `yaml:"leeway" env:"LEEWAY"`
	MaxFutureIAT  time.Duration `yaml:"max_future_iat" env:"MAX_FUTURE_IAT"`
	Issuer        string        `yaml:"issuer" env:"ISSUER"`
}

type SessionConfig struct {
	// ReuseDetection is "revoke_family" or "reject_only".
	ReuseDetection string        `yaml:"reuse_detection" env:"REUSE_DETECTION"`
	ReuseGrace     time.Duration `yaml:"reuse_grace" env:"REUSE_GRACE"`
}

type MobizonConfig struct {
	APIKey   string        `yaml:"api_key" env:"API_KEY"`
	SenderID string        `yaml:"sender_id" env:"SENDER_ID"`
	DryRun   bool          `yaml:"dry_run" env:"DRY_RUN"`
	BaseURL  string        `yaml:"base_url" env:"BASE_URL"`
	Timeout  time.Duration `yaml:"timeout" env:"TIMEOUT"`
	Template string        `yaml:"template" env:"TEMPLATE"`
}

type EmailAlertConfig struct {
	SMTPHost     string `yaml:"smtp_host" env:"SMTP_HOST"`
	SMTPPort     int    `yaml:"smtp_port" env:"SMTP_PORT"`
	SMTPUser     string `yaml:"smtp_user" env:"SMTP_USER"`
	SMTPPassword string `yaml:"smtp_password" env:"SMTP_PASSWORD"`
	FromEmail    string `yaml:"from_email" env:"FROM_EMAIL"`
	ToEmail      string `yaml:"to_email" env:"TO_EMAIL"`
}

type TelegramAlertConfig struct {
	BotToken string `yaml:"bot_token" env:"BOT_TOKEN"`
	ChatID   int64  `yaml:"chat_id" env:"CHAT_ID"`
}

type AlertsConfig struct {
	Buffer   int                 `yaml:"buffer" env:"BUFFER"`
	Email    EmailAlertConfig    `yaml:"email" envPrefix:"EMAIL_"`
	Telegram TelegramAlertConfig `yaml:"telegram" envPrefix:"TELEGRAM_"`
}

type Config struct {
	App      AppConfig      `yaml:"app" envPrefix:"APP_"`
	Server   ServerConfig   `yaml:"server" envPrefix:"SERVER_"`
	Database DatabaseConfig `yaml:"database" envPrefix:"DATABASE_"`
	Store    StoreConfig    `yaml:"store" envPrefix:"STORE_"`
	Redis    RedisConfig    `yaml:"redis" envPrefix:"REDIS_"`
	OTP      OTPConfig      `yaml:"otp" envPrefix:"OTP_"`
	JWT      JWTConfig      `yaml:"jwt" envPrefix:"JWT_"`
	Session  SessionConfig  `yaml:"session" envPrefix:"SESSION_"`
	Mobizon  MobizonConfig  `yaml:"mobizon" envPrefix:"MOBIZON_"`
	Alerts   AlertsConfig   `yaml:"alerts" envPrefix:"ALERTS_"`
}

// EnvPrefix is prepended to every environment override, e.g. SAMADHAAN_JWT_ACCESS_SECRET.
const EnvPrefix = "SAMADHAAN_"

// LoadConfig reads CONFIG_PATH (default config/config.yaml) and panics on any error.
func LoadConfig() *Config {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config/config.yaml"
	}
	cfg, err := Load(path)
	if err != nil {
		panic("Failed to load config: " + err.Error())
	}
	return cfg
}

// Load decodes the YAML file at path, applies environment overrides and
// defaults, and validates the result. A missing file is not an error: the
// environment alone may carry the whole configuration.
func Load(path string) (*Config, error) {
	var cfg Config

	f, err := os.Open(path)
	switch {
	case err == nil:
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) ApplyDefaults() {
	if c.App.Env == "" {
		c.App.Env = EnvDevelopment
	}
	if c.App.DependencyTimeout <= 0 {
		c.App.DependencyTimeout = 5 * time.Second
	}
	if c.App.SweepInterval <= 0 {
		c.App.SweepInterval = 10 * time.Minute
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Store.Driver == "" {
		c.Store.Driver = StoreDriverPostgres
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = "samadhaan:"
	}

	if c.OTP.ExpiryMinutes <= 0 {
		c.OTP.ExpiryMinutes = 5
	}
	if c.OTP.MaxAttempts <= 0 {
		c.OTP.MaxAttempts = 5
	}
	if c.OTP.PerMinuteLimit == 0 {
		c.OTP.PerMinuteLimit = 1
	}
	if c.OTP.PerDayLimit == 0 {
		c.OTP.PerDayLimit = 10
	}
	if c.OTP.ResendCooldownSeconds <= 0 {
		c.OTP.ResendCooldownSeconds = 60
	}
	if c.OTP.BcryptCost == 0 {
		c.OTP.BcryptCost = 10
	}
	if c.OTP.Delivery == "" {
		c.OTP.Delivery = DeliveryMobizon
	}
	if c.OTP.DeliveryFile == "" {
		c.OTP.DeliveryFile = "./otp-outbox.log"
	}

	if c.JWT.AccessTTL <= 0 {
		c.JWT.AccessTTL = 15 * time.Minute
	}
	if c.JWT.RefreshTTL <= 0 {
		c.JWT.RefreshTTL = 30 * 24 * time.Hour
	}
	if c.JWT.MaxFutureIAT == 0 {
		c.JWT.MaxFutureIAT = 5 * time.Second
	}

	if c.Session.ReuseDetection == "" {
		c.Session.ReuseDetection = "revoke_family"
	}
	if c.Session.ReuseGrace == 0 {
		c.Session.ReuseGrace = 10 * time.Second
	}

	if c.Mobizon.BaseURL == "" {
		c.Mobizon.BaseURL = "https://api.mobizon.kz"
	}
	if c.Mobizon.Timeout <= 0 {
		c.Mobizon.Timeout = 5 * time.Second
	}
	if c.Mobizon.Template == "" {
		c.Mobizon.Template = "Your login code: %s"
	}

	if c.Alerts.Buffer <= 0 {
		c.Alerts.Buffer = 64
	}
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.App.Env, EnvProduction)
}

// DeliveryBypass reports whether OTP codes would be written somewhere other
// than the SMS gateway.
func (c *Config) DeliveryBypass() bool {
	if c.OTP.Delivery != DeliveryMobizon {
		return true
	}
	return c.Mobizon.DryRun || c.Mobizon.APIKey == "" || c.Mobizon.APIKey == "dry-run"
}

func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Driver {
	case StoreDriverPostgres, StoreDriverRedis, StoreDriverMemory:
	default:
		errs = append(errs, fmt.Errorf("store.driver: unknown driver %q", c.Store.Driver))
	}
	if c.Store.Driver != StoreDriverMemory && c.Database.DSN == "" {
		errs = append(errs, errors.New("database.url is required unless store.driver is memory"))
	}

	switch c.OTP.Delivery {
	case DeliveryMobizon, DeliveryConsole, DeliveryFile:
	default:
		errs = append(errs, fmt.Errorf("otp.delivery: unknown channel %q", c.OTP.Delivery))
	}
	if c.OTP.MaxAttempts < 1 {
		errs = append(errs, errors.New("otp.max_attempts must be positive"))
	}

	if len(c.JWT.AccessSecret) < 32 {
		errs = append(errs, errors.New("jwt.access_secret must be at least 32 bytes"))
	}
	if len(c.JWT.RefreshSecret) < 32 {
		errs = append(errs, errors.New("jwt.refresh_secret must be at least 32 bytes"))
	}
	if c.JWT.AccessSecret != "" && c.JWT.AccessSecret == c.JWT.RefreshSecret {
		errs = append(errs, errors.New("jwt.access_secret and jwt.refresh_secret must differ"))
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > time.Minute {
		errs = append(errs, errors.New("jwt.leeway must be between 0 and 1m"))
	}

	switch c.Session.ReuseDetection {
	case "revoke_family", "reject_only":
	default:
		errs = append(errs, fmt.Errorf("session.reuse_detection: unknown mode %q", c.Session.ReuseDetection))
	}

	if c.IsProduction() {
		if c.DeliveryBypass() {
			errs = append(errs, errors.New("OTP delivery bypass (console/file/dry-run) is not allowed in production"))
		}
		if c.Store.Driver == StoreDriverMemory {
			errs = append(errs, errors.New("store.driver memory is not allowed in production"))
		}
	}

	return errors.Join(errs...)
}
