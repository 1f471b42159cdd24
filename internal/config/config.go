// Package config loads the application configuration from environment
// variables. Unset or empty variables take their defaults; a variable that
// is set but cannot be parsed is an error, and Load reports every problem
// at once.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "worldvibe")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// StorageConfig selects and configures the backing stores.
type StorageConfig struct {
	DBPath        string // SQLite path for durable check-ins
	CacheBackend  string // sql|redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	TimeseriesDSN string // postgres DSN; empty stores points in the SQLite DB
}

// CheckInConfig holds the submission policy.
type CheckInConfig struct {
	Window        time.Duration // one accepted check-in per identity per window
	NoteMaxRunes  int
	StreakTZ      string // reference timezone for calendar day keys
	HistorySize   int    // bounded history list length
	StreakTTL     time.Duration
	FallbackSize  int           // in-process rate limit fallback capacity
	StreakWait    time.Duration // how long the response waits for the streak branch
	DeviceSecret  string        // HS256 secret for device tokens; empty disables tokens
	DeviceTokenTT time.Duration
}

// TimeoutConfig bounds every external call.
type TimeoutConfig struct {
	Durable time.Duration
	Cache   time.Duration
	FanOut  time.Duration
}

// BreakerConfig tunes every circuit breaker created by the app.
type BreakerConfig struct {
	FailureThreshold int
	SuccessThreshold int
	OpenTimeout      time.Duration
	HalfOpenMaxCalls int
	RetryAttempts    int
}

// MQTTConfig configures the event bus publisher.
type MQTTConfig struct {
	Enabled     bool
	Broker      string
	ClientID    string
	TopicPrefix string
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes
	AdminToken     string // bearer token for /admin routes; empty disables them

	Storage  StorageConfig
	CheckIn  CheckInConfig
	Timeouts TimeoutConfig
	Breaker  BreakerConfig
	MQTT     MQTTConfig

	// Edge rate limiting (abuse control, independent of the daily limit)
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Observability
	OTEL OTELConfig
}

// Load reads, normalizes and validates the configuration.
func Load() (Config, error) {
	var e env
	cfg := Config{
		Port:              e.str("PORT", "8080"),
		ReadTimeout:       e.dur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: e.dur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      e.dur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       e.dur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    e.integer("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(e.str("GIN_MODE", "release")),

		LogLevel:       strings.ToLower(e.str("LOG_LEVEL", "info")),
		LogPretty:      e.boolean("LOG_PRETTY", false),
		SwaggerEnabled: e.boolean("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(e.str("API_BASE_PATH", "/api/v1")),
		AdminToken:     e.str("ADMIN_TOKEN", ""),

		Storage: StorageConfig{
			DBPath:        e.raw("DB_PATH", "worldvibe.db"),
			CacheBackend:  strings.ToLower(e.str("CACHE_BACKEND", "sql")),
			RedisAddr:     e.str("REDIS_ADDR", "localhost:6379"),
			RedisPassword: e.str("REDIS_PASSWORD", ""),
			RedisDB:       e.integer("REDIS_DB", 0),
			TimeseriesDSN: e.str("TIMESERIES_DSN", ""),
		},

		CheckIn: CheckInConfig{
			Window:        e.dur("CHECKIN_WINDOW", 24*time.Hour),
			NoteMaxRunes:  e.integer("NOTE_MAX_RUNES", 280),
			StreakTZ:      e.str("STREAK_TZ", "UTC"),
			HistorySize:   e.integer("HISTORY_SIZE", 100),
			StreakTTL:     e.dur("STREAK_TTL", 90*24*time.Hour),
			FallbackSize:  e.integer("RATE_FALLBACK_SIZE", 10000),
			StreakWait:    e.dur("STREAK_WAIT", 300*time.Millisecond),
			DeviceSecret:  e.str("DEVICE_TOKEN_SECRET", ""),
			DeviceTokenTT: e.dur("DEVICE_TOKEN_TTL", 365*24*time.Hour),
		},

		Timeouts: TimeoutConfig{
			Durable: e.dur("DURABLE_TIMEOUT", 3*time.Second),
			Cache:   e.dur("CACHE_TIMEOUT", 500*time.Millisecond),
			FanOut:  e.dur("FANOUT_TIMEOUT", 2*time.Second),
		},

		Breaker: BreakerConfig{
			FailureThreshold: e.integer("BREAKER_FAILURE_THRESHOLD", 5),
			SuccessThreshold: e.integer("BREAKER_SUCCESS_THRESHOLD", 2),
			OpenTimeout:      e.dur("BREAKER_OPEN_TIMEOUT", 10*time.Second),
			HalfOpenMaxCalls: e.integer("BREAKER_HALF_OPEN_CALLS", 1),
			RetryAttempts:    e.integer("RETRY_ATTEMPTS", 3),
		},

		MQTT: MQTTConfig{
			Enabled:     e.boolean("MQTT_ENABLED", false),
			Broker:      e.str("MQTT_BROKER", "tcp://localhost:1883"),
			ClientID:    e.str("MQTT_CLIENT_ID", "worldvibe-api"),
			TopicPrefix: strings.TrimRight(e.str("MQTT_TOPIC_PREFIX", "worldvibe/checkins"), "/"),
		},

		RateRPS:   e.decimal("RATE_RPS", 5.0),
		RateBurst: e.integer("RATE_BURST", 10),

		CORS: CORSConfig{
			AllowedOrigins: splitCSV(e.str("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: e.boolean("ENABLE_HSTS", false),
			HSTSMaxAge: e.dur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		IdempotencyTTL: e.dur("IDEMPOTENCY_TTL", 24*time.Hour),

		OTEL: OTELConfig{
			Enabled:     e.boolean("OTEL_ENABLED", false),
			Endpoint:    e.str("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    e.boolean("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: e.str("OTEL_SERVICE_NAME", "worldvibe"),
			SampleRatio: e.decimal("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if cfg.Storage.CacheBackend == "sqlite" {
		cfg.Storage.CacheBackend = "sql"
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		e.fail("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	e.check(cfg.ReadTimeout > 0 && cfg.ReadHeaderTimeout > 0 && cfg.WriteTimeout > 0 && cfg.IdleTimeout > 0,
		"timeouts must be positive durations")
	e.check(cfg.MaxHeaderBytes > 0, "MAX_HEADER_BYTES must be > 0")
	e.check(strings.TrimSpace(cfg.Storage.DBPath) != "", "DB_PATH must not be empty")
	switch cfg.Storage.CacheBackend {
	case "sql", "redis":
	default:
		e.fail("CACHE_BACKEND must be one of: sql, redis")
	}
	e.check(cfg.Storage.CacheBackend != "redis" || cfg.Storage.RedisAddr != "",
		"REDIS_ADDR must not be empty when CACHE_BACKEND=redis")
	e.check(cfg.CheckIn.Window > 0, "CHECKIN_WINDOW must be > 0")
	e.check(cfg.CheckIn.NoteMaxRunes >= 1, "NOTE_MAX_RUNES must be >= 1")
	if _, err := time.LoadLocation(cfg.CheckIn.StreakTZ); err != nil {
		e.fail("STREAK_TZ must be a valid IANA timezone")
	}
	e.check(cfg.CheckIn.HistorySize >= 1, "HISTORY_SIZE must be >= 1")
	e.check(cfg.CheckIn.StreakTTL > 0, "STREAK_TTL must be > 0")
	e.check(cfg.CheckIn.FallbackSize >= 1, "RATE_FALLBACK_SIZE must be >= 1")
	e.check(cfg.CheckIn.StreakWait >= 0, "STREAK_WAIT must be >= 0")
	e.check(cfg.CheckIn.DeviceTokenTT > 0, "DEVICE_TOKEN_TTL must be > 0")
	e.check(cfg.Timeouts.Durable > 0 && cfg.Timeouts.Cache > 0 && cfg.Timeouts.FanOut > 0,
		"DURABLE_TIMEOUT, CACHE_TIMEOUT and FANOUT_TIMEOUT must be > 0")
	e.check(cfg.Breaker.FailureThreshold >= 1 && cfg.Breaker.SuccessThreshold >= 1 && cfg.Breaker.HalfOpenMaxCalls >= 1,
		"breaker thresholds must be >= 1")
	e.check(cfg.Breaker.OpenTimeout > 0, "BREAKER_OPEN_TIMEOUT must be > 0")
	e.check(cfg.Breaker.RetryAttempts >= 1, "RETRY_ATTEMPTS must be >= 1")
	e.check(!cfg.MQTT.Enabled || cfg.MQTT.Broker != "", "MQTT_BROKER must not be empty when MQTT_ENABLED")
	e.check(cfg.RateRPS >= 0, "RATE_RPS must be >= 0")
	e.check(cfg.RateBurst >= 1, "RATE_BURST must be >= 1")
	e.check(cfg.Security.HSTSMaxAge >= 0, "HSTS_MAX_AGE must be >= 0")
	e.check(cfg.IdempotencyTTL > 0, "IDEMPOTENCY_TTL must be > 0")
	e.check(cfg.OTEL.SampleRatio >= 0 && cfg.OTEL.SampleRatio <= 1, "OTEL_TRACES_SAMPLER_ARG must be in [0,1]")

	return cfg, errors.Join(e.errs...)
}

// env reads typed variables and collects parse and validation errors.
type env struct {
	errs []error
}

func (e *env) fail(msg string) { e.errs = append(e.errs, errors.New(msg)) }

func (e *env) check(cond bool, msg string) {
	if !cond {
		e.fail(msg)
	}
}

// lookup returns the trimmed value of k, or "" when unset or blank.
func (e *env) lookup(k string) string {
	return strings.TrimSpace(os.Getenv(k))
}

func (e *env) str(k, def string) string {
	if v := e.lookup(k); v != "" {
		return v
	}
	return def
}

// raw is str for variables where a blank value is itself invalid and must
// reach validation instead of falling back.
func (e *env) raw(k, def string) string {
	if v, set := os.LookupEnv(k); set {
		return strings.TrimSpace(v)
	}
	return def
}

func (e *env) integer(k string, def int) int {
	v := e.lookup(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %q is not an integer", k, v))
		return def
	}
	return i
}

func (e *env) decimal(k string, def float64) float64 {
	v := e.lookup(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %q is not a number", k, v))
		return def
	}
	return f
}

func (e *env) dur(k string, def time.Duration) time.Duration {
	v := e.lookup(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %q is not a duration", k, v))
		return def
	}
	return d
}

func (e *env) boolean(k string, def bool) bool {
	v := e.lookup(k)
	if v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	}
	e.errs = append(e.errs, fmt.Errorf("%s: %q is not a boolean", k, v))
	return def
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures a leading '/' and strips trailing ones, except
// for the root.
func normalizeBasePath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	return "/" + p
}
