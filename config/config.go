package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"crm-hub/internal/retry"

	"github.com/joho/godotenv"
)

// minSecretLength is the shortest accepted HMAC secret.
const minSecretLength = 32

// Config holds the application configuration.
type Config struct {
	Port string // Service port

	KratosURL   string // Kratos public API
	DatabaseURL string // Postgres DSN holding profiles
	RedisURL    string // Optional; in-process storage and events when empty

	SessionCacheTTL time.Duration // Identity/profile cache lifetime
	SessionTokenTTL time.Duration // How long a Kratos session token is kept per client
	SettleTimeout   time.Duration // How long GET /session waits for a loading controller

	Resolve             retry.Policy  // Profile resolution retry policy
	ForcedRedirectDelay time.Duration // Pause before redirecting after a forced sign-out
	LoginPath           string

	MaxControllers    int           // Live session controllers kept per process
	ControllerIdleTTL time.Duration // Idle controllers are closed after this

	BackendTokenSecret   string        // Secret for signing backend JWT tokens
	BackendTokenIssuer   string        // JWT issuer claim
	BackendTokenAudience string        // JWT audience claim
	BackendTokenTTL      time.Duration // JWT token TTL

	AuthSharedSecret string // Shared secret for /internal endpoints
	SecureCookies    bool   // Mark the client cookie Secure and send HSTS

	SignInRatePerMinute float64
	SignInBurst         int
}

// Load reads configuration from the environment. A .env file in the working
// directory, or the file named by ENV_FILE, fills variables that are unset.
func Load() (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	p := &parser{}
	cfg := &Config{
		Port:        getEnv("PORT", "8890"),
		KratosURL:   getEnv("KRATOS_URL", "http://kratos:4433"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),

		SessionCacheTTL: p.duration("SESSION_CACHE_TTL", 10*time.Minute),
		SessionTokenTTL: p.duration("SESSION_TOKEN_TTL", 24*time.Hour),
		SettleTimeout:   p.duration("SESSION_SETTLE_TIMEOUT", 2*time.Second),

		Resolve: retry.Policy{
			MaxAttempts:    p.integer("PROFILE_MAX_ATTEMPTS", 5),
			AttemptTimeout: p.duration("PROFILE_ATTEMPT_TIMEOUT", 5*time.Second),
			Delay:          p.duration("PROFILE_RETRY_DELAY", 2*time.Second),
			Ceiling:        p.duration("PROFILE_RESOLVE_CEILING", 10*time.Second),
		},
		ForcedRedirectDelay: p.duration("FORCED_REDIRECT_DELAY", 1500*time.Millisecond),
		LoginPath:           getEnv("LOGIN_PATH", "/login"),

		MaxControllers:    p.integer("MAX_CONTROLLERS", 10000),
		ControllerIdleTTL: p.duration("CONTROLLER_IDLE_TTL", 30*time.Minute),

		BackendTokenSecret:   getEnv("BACKEND_TOKEN_SECRET", ""),
		BackendTokenIssuer:   getEnv("BACKEND_TOKEN_ISSUER", "crm-hub"),
		BackendTokenAudience: getEnv("BACKEND_TOKEN_AUDIENCE", "crm-backend"),
		BackendTokenTTL:      p.duration("BACKEND_TOKEN_TTL", 5*time.Minute),

		AuthSharedSecret: getEnv("AUTH_SHARED_SECRET", ""),
		SecureCookies:    p.boolean("SECURE_COOKIES", true),

		SignInRatePerMinute: p.float("SIGN_IN_RATE_PER_MINUTE", 10),
		SignInBurst:         p.integer("SIGN_IN_BURST", 5),
	}
	if p.err != nil {
		return nil, p.err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	var errs []error

	if c.Port == "" {
		errs = append(errs, errors.New("PORT cannot be empty"))
	}
	if c.KratosURL == "" {
		errs = append(errs, errors.New("KRATOS_URL cannot be empty"))
	}
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.SessionCacheTTL <= 0 {
		errs = append(errs, errors.New("SESSION_CACHE_TTL must be positive"))
	}
	if c.SessionTokenTTL <= 0 {
		errs = append(errs, errors.New("SESSION_TOKEN_TTL must be positive"))
	}
	if err := c.Resolve.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("profile retry policy: %w", err))
	}
	if c.ForcedRedirectDelay < 0 {
		errs = append(errs, errors.New("FORCED_REDIRECT_DELAY must not be negative"))
	}
	if c.MaxControllers < 1 {
		errs = append(errs, errors.New("MAX_CONTROLLERS must be at least 1"))
	}
	if c.ControllerIdleTTL <= 0 {
		errs = append(errs, errors.New("CONTROLLER_IDLE_TTL must be positive"))
	}
	if len(c.BackendTokenSecret) < minSecretLength {
		errs = append(errs, fmt.Errorf("BACKEND_TOKEN_SECRET must be at least %d bytes", minSecretLength))
	}
	if c.BackendTokenTTL <= 0 {
		errs = append(errs, errors.New("BACKEND_TOKEN_TTL must be positive"))
	}
	if c.SignInRatePerMinute <= 0 || c.SignInBurst < 1 {
		errs = append(errs, errors.New("sign-in rate limit must be positive"))
	}

	return errors.Join(errs...)
}

func loadDotEnv() error {
	path := getEnv("ENV_FILE", ".env")
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	// Load never overrides variables already set in the environment.
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// getEnv retrieves an environment variable or returns a fallback value.
// KEY_FILE, when set, names a file holding the value.
func getEnv(key, fallback string) string {
	if fileValue := os.Getenv(key + "_FILE"); fileValue != "" {
		content, err := os.ReadFile(fileValue)
		if err == nil {
			return strings.TrimSpace(string(content))
		}
	}

	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// parser keeps the first parse error.
type parser struct {
	err error
}

func (p *parser) fail(key, raw string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		p.fail(key, raw, err)
		return fallback
	}
	return d
}

func (p *parser) integer(key string, fallback int) int {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		p.fail(key, raw, err)
		return fallback
	}
	return n
}

func (p *parser) float(key string, fallback float64) float64 {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.fail(key, raw, err)
		return fallback
	}
	return f
}

func (p *parser) boolean(key string, fallback bool) bool {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		p.fail(key, raw, err)
		return fallback
	}
	return b
}
