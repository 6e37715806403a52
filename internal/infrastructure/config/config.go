package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Upstream      UpstreamConfig      `mapstructure:"upstream"`
	Wizard        WizardConfig        `mapstructure:"wizard"`
	Submit        SubmitConfig        `mapstructure:"submit"`
	Poller        PollerConfig        `mapstructure:"poller"`
	Verification  VerificationConfig  `mapstructure:"verification"`
	Deposit       DepositConfig       `mapstructure:"deposit"`
	Cache         CacheConfig         `mapstructure:"cache"`
	QR            QRConfig            `mapstructure:"qr"`
	Telegram      TelegramConfig      `mapstructure:"telegram"`
	Identity      IdentityConfig      `mapstructure:"identity"`
	Worker        WorkerConfig        `mapstructure:"worker"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	InstanceID    string              `mapstructure:"instance_id"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORS            CORSConfig    `mapstructure:"cors"`
	// RateLimit applies to the submit and verify endpoints, per caller.
	RateLimit       int           `mapstructure:"rate_limit"`
	RateLimitWindow time.Duration `mapstructure:"rate_limit_window"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

// StorageConfig selects the draft store backend.
type StorageConfig struct {
	Driver   string        `mapstructure:"driver"`
	DraftTTL time.Duration `mapstructure:"draft_ttl"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MinConnections  int           `mapstructure:"min_connections"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	// StatementTimeout also bounds row lock waits.
	StatementTimeout  time.Duration `mapstructure:"statement_timeout"`
	ConnectRetries    int           `mapstructure:"connect_retries"`
	ConnectRetryDelay time.Duration `mapstructure:"connect_retry_delay"`
}

type RedisConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	DB                int           `mapstructure:"db"`
	Password          string        `mapstructure:"password"`
	ConnectRetries    int           `mapstructure:"connect_retries"`
	ConnectRetryDelay time.Duration `mapstructure:"connect_retry_delay"`
	EventStream       string        `mapstructure:"event_stream"`
	EventStreamMaxLen int64         `mapstructure:"event_stream_max_len"`
}

// UpstreamConfig describes the admin/payment API.
type UpstreamConfig struct {
	BaseURL                 string          `mapstructure:"base_url"`
	APIKey                  string          `mapstructure:"api_key"`
	Timeouts                UpstreamTimeout `mapstructure:"timeouts"`
	CircuitBreakerThreshold uint32          `mapstructure:"circuit_breaker_threshold"`
	CircuitBreakerTimeout   time.Duration   `mapstructure:"circuit_breaker_timeout"`
}

type UpstreamTimeout struct {
	Settings      time.Duration `mapstructure:"settings"`
	CheckPlayer   time.Duration `mapstructure:"check_player"`
	WithdrawCheck time.Duration `mapstructure:"withdraw_check"`
	Execute       time.Duration `mapstructure:"withdraw_execute"`
	Payment       time.Duration `mapstructure:"payment"`
	Requests      time.Duration `mapstructure:"requests"`
	Aggregates    time.Duration `mapstructure:"aggregates"`
}

// WizardConfig holds the enums and fallbacks the step validator checks against.
// Min/max amounts are used only when payment settings do not provide them.
type WizardConfig struct {
	Bookmakers                []string `mapstructure:"bookmakers"`
	AllowedBookmakers         []string `mapstructure:"allowed_bookmakers"`
	Banks                     []string `mapstructure:"banks"`
	PlayerCheckBookmakers     []string `mapstructure:"player_check_bookmakers"`
	ExecuteAtSourceBookmakers []string `mapstructure:"execute_at_source_bookmakers"`
	MinAmount                 float64  `mapstructure:"min_amount"`
	MaxAmount                 float64  `mapstructure:"max_amount"`
}

type SubmitConfig struct {
	MaxAttempts uint          `mapstructure:"max_attempts"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
	Timeout     time.Duration `mapstructure:"timeout"`
	LockTTL     time.Duration `mapstructure:"lock_ttl"`
}

type PollerConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	MaxDuration time.Duration `mapstructure:"max_duration"`
}

type VerificationConfig struct {
	Debounce time.Duration `mapstructure:"debounce"`
}

type DepositConfig struct {
	RandomCents bool `mapstructure:"random_cents"`
}

type CacheConfig struct {
	SettingsTTL   time.Duration `mapstructure:"settings_ttl"`
	AggregatesTTL time.Duration `mapstructure:"aggregates_ttl"`
	UseRedis      bool          `mapstructure:"use_redis"`
}

// QRConfig holds the merchant fields of the deposit payment payload and the
// per-bank deeplink templates. A template's {payload} placeholder receives
// the encoded payload.
type QRConfig struct {
	MerchantAccount string            `mapstructure:"merchant_account"`
	MerchantName    string            `mapstructure:"merchant_name"`
	MerchantCity    string            `mapstructure:"merchant_city"`
	Currency        string            `mapstructure:"currency"`
	Deeplinks       map[string]string `mapstructure:"deeplinks"`
}

type TelegramConfig struct {
	BotToken         string        `mapstructure:"bot_token"`
	ValidateInitData bool          `mapstructure:"validate_init_data"`
	InitDataMaxAge   time.Duration `mapstructure:"init_data_max_age"`
}

// IdentityConfig controls the persisted fallback identity. The device id
// is kept in a signed cookie so callers cannot pick another owner's id.
type IdentityConfig struct {
	CookieName    string        `mapstructure:"cookie_name"`
	SessionSecret string        `mapstructure:"session_secret"`
	SessionTTL    time.Duration `mapstructure:"session_ttl"`
	// TrustDeviceHeader accepts a bare X-Device-Id header from the webview.
	TrustDeviceHeader bool `mapstructure:"trust_device_header"`
}

// WorkerConfig drives cmd/worker: the event stream consumer and the
// Postgres expiry sweep.
type WorkerConfig struct {
	ConsumerGroup string        `mapstructure:"consumer_group"`
	BatchSize     int64         `mapstructure:"batch_size"`
	BlockDuration time.Duration `mapstructure:"block_duration"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	MetricsPort   int           `mapstructure:"metrics_port"`
}

type ObservabilityConfig struct {
	LogLevel       string `mapstructure:"log_level"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
	EnableMetrics  bool   `mapstructure:"enable_metrics"`
	EnableTracing  bool   `mapstructure:"enable_tracing"`
}

func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("CASHDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/cashdesk")

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.read_timeout must be positive"))
	}
	if c.Server.WriteTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.write_timeout must not be negative"))
	}

	switch c.Storage.Driver {
	case StorageRedis:
		if c.Redis.Port <= 0 {
			errs = append(errs, fmt.Errorf("redis.port must be positive"))
		}
	case StoragePostgres:
		if c.Database.Host == "" {
			errs = append(errs, fmt.Errorf("database.host is required"))
		}
		if c.Database.Port <= 0 {
			errs = append(errs, fmt.Errorf("database.port must be positive"))
		}
	case StorageMemory:
	default:
		errs = append(errs, fmt.Errorf("storage.driver must be one of redis, postgres, memory, got %q", c.Storage.Driver))
	}
	if c.Cache.UseRedis && c.Redis.Port <= 0 {
		errs = append(errs, fmt.Errorf("redis.port must be positive when cache.use_redis is set"))
	}

	if c.Upstream.BaseURL == "" {
		errs = append(errs, fmt.Errorf("upstream.base_url is required"))
	}

	if len(c.Wizard.Bookmakers) == 0 {
		errs = append(errs, fmt.Errorf("wizard.bookmakers must not be empty"))
	}
	for _, b := range c.Wizard.AllowedBookmakers {
		if !slices.Contains(c.Wizard.Bookmakers, b) {
			errs = append(errs, fmt.Errorf("wizard.allowed_bookmakers: unknown bookmaker %q", b))
		}
	}
	if len(c.Wizard.Banks) == 0 {
		errs = append(errs, fmt.Errorf("wizard.banks must not be empty"))
	}
	if c.Wizard.MinAmount < 0 || (c.Wizard.MaxAmount > 0 && c.Wizard.MaxAmount < c.Wizard.MinAmount) {
		errs = append(errs, fmt.Errorf("wizard.min_amount/max_amount out of order"))
	}

	if c.Submit.MaxAttempts == 0 {
		errs = append(errs, fmt.Errorf("submit.max_attempts must be positive"))
	}
	if c.Submit.LockTTL <= 0 {
		errs = append(errs, fmt.Errorf("submit.lock_ttl must be positive"))
	}
	if c.Poller.Interval <= 0 {
		errs = append(errs, fmt.Errorf("poller.interval must be positive"))
	}

	if c.Telegram.ValidateInitData && c.Telegram.BotToken == "" {
		errs = append(errs, fmt.Errorf("telegram.bot_token is required when telegram.validate_init_data is set"))
	}

	if c.Identity.CookieName == "" {
		errs = append(errs, fmt.Errorf("identity.cookie_name is required"))
	}
	if c.Identity.SessionSecret == "" {
		errs = append(errs, fmt.Errorf("identity.session_secret is required"))
	}

	env := os.Getenv("ENV")
	if env == "production" || env == "prod" {
		if len(c.Identity.SessionSecret) < 32 {
			errs = append(errs, fmt.Errorf("identity.session_secret must be at least 32 bytes in production"))
		}
		if !c.Telegram.ValidateInitData {
			errs = append(errs, fmt.Errorf("telegram.validate_init_data must be enabled in production"))
		}
		if c.Identity.TrustDeviceHeader {
			errs = append(errs, fmt.Errorf("identity.trust_device_header is not allowed in production"))
		}
		if slices.Contains(c.Server.CORS.AllowedOrigins, "*") {
			errs = append(errs, fmt.Errorf("server.cors.allowed_origins must list explicit origins in production"))
		}
		if c.Storage.Driver == StorageMemory {
			errs = append(errs, fmt.Errorf("storage.driver memory is not allowed in production"))
		}
		if c.Storage.Driver == StoragePostgres && c.Database.Password == "" {
			errs = append(errs, fmt.Errorf("database.password required in production"))
		}
	}

	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	// SSE status streams hold the response open.
	v.SetDefault("server.write_timeout", "0s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.cors.allowed_origins", []string{"*"})
	v.SetDefault("server.cors.allow_credentials", false)
	v.SetDefault("server.rate_limit", 20)
	v.SetDefault("server.rate_limit_window", "1m")

	v.SetDefault("storage.driver", StorageRedis)
	v.SetDefault("storage.draft_ttl", "720h")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "cashdesk")
	v.SetDefault("database.database", "cashdesk")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_connections", 5)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.statement_timeout", "5s")
	v.SetDefault("database.connect_retries", 5)
	v.SetDefault("database.connect_retry_delay", "1s")

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.connect_retries", 5)
	v.SetDefault("redis.connect_retry_delay", "1s")
	v.SetDefault("redis.event_stream", "cashdesk:events")
	v.SetDefault("redis.event_stream_max_len", 100000)

	// Upstream defaults
	v.SetDefault("upstream.base_url", "http://localhost:3000")
	v.SetDefault("upstream.timeouts.settings", "10s")
	v.SetDefault("upstream.timeouts.check_player", "15s")
	v.SetDefault("upstream.timeouts.withdraw_check", "30s")
	v.SetDefault("upstream.timeouts.withdraw_execute", "30s")
	v.SetDefault("upstream.timeouts.payment", "30s")
	v.SetDefault("upstream.timeouts.requests", "10s")
	v.SetDefault("upstream.timeouts.aggregates", "10s")
	v.SetDefault("upstream.circuit_breaker_threshold", 10)
	v.SetDefault("upstream.circuit_breaker_timeout", "30s")

	// Wizard defaults
	v.SetDefault("wizard.bookmakers", []string{"1xbet", "1win", "melbet", "mostbet", "winwin", "888starz"})
	v.SetDefault("wizard.banks", []string{"demirbank", "omoney", "balance", "bakai", "megapay", "mbank", "optima", "kompanion"})
	v.SetDefault("wizard.player_check_bookmakers", []string{"1xbet", "melbet", "winwin", "888starz"})
	v.SetDefault("wizard.execute_at_source_bookmakers", []string{"mostbet", "1win"})
	v.SetDefault("wizard.min_amount", 35)
	v.SetDefault("wizard.max_amount", 100000)

	// Submission defaults
	v.SetDefault("submit.max_attempts", 3)
	v.SetDefault("submit.retry_delay", "1s")
	v.SetDefault("submit.timeout", "90s")
	v.SetDefault("submit.lock_ttl", "2m")

	v.SetDefault("poller.interval", "3s")
	v.SetDefault("poller.max_duration", "30m")

	v.SetDefault("verification.debounce", "700ms")

	v.SetDefault("deposit.random_cents", true)

	v.SetDefault("cache.settings_ttl", "60s")
	v.SetDefault("cache.aggregates_ttl", "30s")
	v.SetDefault("cache.use_redis", false)

	v.SetDefault("qr.currency", "417")
	v.SetDefault("qr.merchant_city", "Bishkek")

	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.validate_init_data", true)
	v.SetDefault("telegram.init_data_max_age", "24h")

	v.SetDefault("identity.cookie_name", "cashdesk_uid")
	v.SetDefault("identity.session_secret", "")
	v.SetDefault("identity.session_ttl", "8760h")
	v.SetDefault("identity.trust_device_header", false)

	v.SetDefault("worker.consumer_group", "cashdesk-worker")
	v.SetDefault("worker.batch_size", 50)
	v.SetDefault("worker.block_duration", "5s")
	v.SetDefault("worker.sweep_interval", "10m")
	v.SetDefault("worker.metrics_port", 9091)

	// Observability defaults
	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.jaeger_endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("observability.enable_metrics", true)
	v.SetDefault("observability.enable_tracing", false)

	v.SetDefault("instance_id", "cashdesk-1")
}

// DatabaseDSN is the libpq keyword/value form. Values are quoted so an
// empty or spaced password does not swallow the next keyword.
func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		dsnQuote(c.Host), c.Port, dsnQuote(c.User), dsnQuote(c.Password), dsnQuote(c.Database), dsnQuote(c.SSLMode),
	)
}

// DatabaseURL is the URL form golang-migrate and pgxpool accept.
func (c *DatabaseConfig) DatabaseURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.Database,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	return u.String()
}

func dsnQuote(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
