package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration required by the API process and the CLI.
// Values come from env (or a file named by CONFIG_FILE).
// No business logic should depend on raw environment variables.
type Config struct {
	App     AppConfig
	DB      DBConfig
	Redis   RedisConfig
	Auth    AuthConfig
	LiveKit LiveKitConfig
	Dialer  DialerConfig

	SentryDSN string
}

type AppConfig struct {
	Env  string
	Port int
}

// DBConfig is optional: with an empty Host, callbacks and audit events are
// kept in memory.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

// RedisConfig is optional: with an empty Host, join events, session leases
// and the handoff queue are process-local.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

type LiveKitConfig struct {
	URL       string
	APIKey    string
	APISecret string

	// AgentName is the voice agent dispatched into each call room.
	AgentName string
}

type DialerConfig struct {
	// OutboundTrunkID is used when a dispatch request does not name a trunk.
	OutboundTrunkID string

	JoinTimeout     time.Duration
	JoinPollSlice   time.Duration
	MonitorInterval time.Duration
	VoicemailGrace  time.Duration

	// LeaseTTL bounds how long a (room, identity) pair stays reserved if the
	// process dies mid-call. Live sessions renew their lease from the monitor
	// loop.
	LeaseTTL time.Duration

	// SessionRetention is how long a finished session stays readable through
	// the API before only its audit events remain.
	SessionRetention time.Duration
}

// Load reads configuration from the environment and, when CONFIG_FILE is
// set, from that file. Environment values win.
func Load() (Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	if file := strings.TrimSpace(os.Getenv("CONFIG_FILE")); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}
	return load(v)
}

func load(v *viper.Viper) (Config, error) {
	c := Config{}
	var parseErrs []error
	intVal := func(key string, required bool) int {
		n, err := parseInt(v, key, required)
		if err != nil {
			parseErrs = append(parseErrs, err)
		}
		return n
	}
	durVal := func(key string) time.Duration {
		d, err := parseDuration(v, key)
		if err != nil {
			parseErrs = append(parseErrs, err)
		}
		return d
	}

	c.App.Env = str(v, "APP_ENV")
	c.App.Port = intVal("APP_PORT", true)

	c.DB.Host = str(v, "DB_HOST")
	c.DB.Port = intVal("DB_PORT", false)
	c.DB.User = str(v, "DB_USER")
	c.DB.Password = v.GetString("DB_PASSWORD")
	c.DB.Name = str(v, "DB_NAME")
	c.DB.SSLMode = str(v, "DB_SSLMODE")

	c.Redis.Host = str(v, "REDIS_HOST")
	c.Redis.Port = intVal("REDIS_PORT", false)
	c.Redis.Password = v.GetString("REDIS_PASSWORD")

	c.Auth.JWTSecret = v.GetString("JWT_SECRET")
	c.Auth.JWTIssuer = str(v, "JWT_ISSUER")
	c.Auth.JWTAudience = str(v, "JWT_AUDIENCE")
	c.Auth.AccessTokenTTL = durVal("JWT_ACCESS_TTL")
	c.Auth.RefreshTokenTTL = durVal("JWT_REFRESH_TTL")

	c.LiveKit.URL = str(v, "LIVEKIT_URL")
	c.LiveKit.APIKey = str(v, "LIVEKIT_API_KEY")
	c.LiveKit.APISecret = v.GetString("LIVEKIT_API_SECRET")
	c.LiveKit.AgentName = str(v, "LIVEKIT_AGENT_NAME")

	c.Dialer.OutboundTrunkID = str(v, "OUTBOUND_TRUNK_ID")
	c.Dialer.JoinTimeout = durVal("JOIN_TIMEOUT")
	c.Dialer.JoinPollSlice = durVal("JOIN_POLL_SLICE")
	c.Dialer.MonitorInterval = durVal("MONITOR_INTERVAL")
	c.Dialer.VoicemailGrace = durVal("VOICEMAIL_GRACE")
	c.Dialer.LeaseTTL = durVal("SESSION_LEASE_TTL")
	c.Dialer.SessionRetention = durVal("SESSION_RETENTION")

	c.SentryDSN = str(v, "SENTRY_DSN")

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks required values and fills defaults in place.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.HasDB() {
		if c.DB.Port == 0 {
			c.DB.Port = 5432
		}
		if c.DB.Port < 0 || c.DB.Port > 65535 {
			errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
		}
		if c.DB.User == "" {
			errs = append(errs, errors.New("DB_USER is required when DB_HOST is set"))
		}
		if c.DB.Name == "" {
			errs = append(errs, errors.New("DB_NAME is required when DB_HOST is set"))
		}
		if c.DB.SSLMode == "" {
			if c.IsProduction() {
				errs = append(errs, errors.New("DB_SSLMODE is required in production"))
			} else {
				// Local-friendly default; production must be explicit.
				c.DB.SSLMode = "disable"
			}
		}
		if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
			errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
		}
	}

	if c.HasRedis() {
		if c.Redis.Port == 0 {
			c.Redis.Port = 6379
		}
		if c.Redis.Port < 0 || c.Redis.Port > 65535 {
			errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
		}
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	if c.LiveKit.URL == "" {
		errs = append(errs, errors.New("LIVEKIT_URL is required"))
	}
	if c.LiveKit.APIKey == "" || c.LiveKit.APISecret == "" {
		errs = append(errs, errors.New("LIVEKIT_API_KEY and LIVEKIT_API_SECRET are required"))
	}
	if c.LiveKit.AgentName == "" {
		c.LiveKit.AgentName = "outbound-caller"
	}

	if c.Dialer.JoinTimeout <= 0 {
		c.Dialer.JoinTimeout = 30 * time.Second
	}
	if c.Dialer.JoinPollSlice <= 0 {
		c.Dialer.JoinPollSlice = time.Second
	}
	if c.Dialer.MonitorInterval <= 0 {
		c.Dialer.MonitorInterval = 500 * time.Millisecond
	}
	if c.Dialer.VoicemailGrace <= 0 {
		c.Dialer.VoicemailGrace = time.Second
	}
	if c.Dialer.LeaseTTL <= 0 {
		c.Dialer.LeaseTTL = 2 * time.Hour
	}
	if c.Dialer.SessionRetention <= 0 {
		c.Dialer.SessionRetention = 15 * time.Minute
	}
	if c.Dialer.LeaseTTL <= c.Dialer.JoinTimeout {
		errs = append(errs, errors.New("SESSION_LEASE_TTL must be greater than JOIN_TIMEOUT"))
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HasDB() bool { return c.DB.Host != "" }

func (c Config) HasRedis() bool { return c.Redis.Host != "" }

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func str(v *viper.Viper, key string) string {
	return strings.TrimSpace(v.GetString(key))
}

func parseInt(v *viper.Viper, key string, required bool) (int, error) {
	s := str(v, key)
	if s == "" {
		if required {
			return 0, fmt.Errorf("%s is required", key)
		}
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, s)
	}
	return n, nil
}

// parseDuration returns 0 for unset keys so Validate can apply defaults.
func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	s := str(v, key)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration, got %q", key, s)
	}
	return d, nil
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
