package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Security SecurityConfig
	Cache    CacheConfig
	Notify   NotifyConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	TrustedProxies []string // CIDR ranges allowed to set forwarding headers
}

// SecurityConfig carries the threat-detection policy. The thresholds are
// policy constants, not intrinsic to the algorithms, so every one of them is
// tunable from the environment.
type SecurityConfig struct {
	// Ops surface auth
	AdminTokenSecret string
	AdminTokenExpiry time.Duration

	// Lockout
	MaxLoginAttempts int
	LockoutWindow    time.Duration
	LockoutDuration  time.Duration

	// Progressive delay
	DelayBase   time.Duration
	DelayFactor float64
	DelayMax    time.Duration
	DelayWindow time.Duration

	// Suspicious activity detection
	DetectionWindow      time.Duration
	FanOutIPThreshold    int
	FanOutCountThreshold int
	AutomationInterval   time.Duration

	// Cross-account origin escalation
	OriginWindow           time.Duration
	OriginFailureThreshold int
	OriginAccountThreshold int
	OriginBlockDuration    time.Duration

	// CAPTCHA challenges
	ChallengeTTL         time.Duration
	ChallengeMaxAttempts int

	// Retention sweeping
	SweepInterval        time.Duration
	ArchiveAfter         time.Duration
	DeleteAfter          time.Duration
	ClusterAlertMinCount int

	// Request rate limiting on public endpoints
	GateRequestsPerMinute int
}

// CacheConfig configures the opt-in failure-count cache. The cache is a
// best-effort optimization, never a source of truth.
type CacheConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	CountTTL time.Duration
}

// NotifyConfig configures alert notification delivery via SES. Disabled when
// no from-address is set.
type NotifyConfig struct {
	Enabled     bool
	AWSRegion   string
	FromAddress string
	ToAddress   string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	adminSecret := getEnv("ADMIN_TOKEN_SECRET", "")
	if adminSecret == "" {
		return nil, fmt.Errorf("ADMIN_TOKEN_SECRET is required")
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "bastion"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			TrustedProxies: getEnvAsSlice("TRUSTED_PROXIES"),
		},
		Security: SecurityConfig{
			AdminTokenSecret: adminSecret,
			AdminTokenExpiry: getEnvAsDuration("ADMIN_TOKEN_EXPIRY", 1*time.Hour),

			MaxLoginAttempts: getEnvAsInt("MAX_LOGIN_ATTEMPTS", 5),
			LockoutWindow:    getEnvAsDuration("LOCKOUT_WINDOW", 30*time.Minute),
			LockoutDuration:  getEnvAsDuration("LOCKOUT_DURATION", 30*time.Minute),

			DelayBase:   getEnvAsDuration("DELAY_BASE", 1*time.Second),
			DelayFactor: getEnvAsFloat("DELAY_FACTOR", 2.0),
			DelayMax:    getEnvAsDuration("DELAY_MAX", 30*time.Second),
			DelayWindow: getEnvAsDuration("DELAY_WINDOW", 15*time.Minute),

			DetectionWindow:      getEnvAsDuration("DETECTION_WINDOW", 5*time.Minute),
			FanOutIPThreshold:    getEnvAsInt("FANOUT_IP_THRESHOLD", 3),
			FanOutCountThreshold: getEnvAsInt("FANOUT_COUNT_THRESHOLD", 10),
			AutomationInterval:   getEnvAsDuration("AUTOMATION_INTERVAL", 1*time.Second),

			OriginWindow:           getEnvAsDuration("ORIGIN_WINDOW", 1*time.Hour),
			OriginFailureThreshold: getEnvAsInt("ORIGIN_FAILURE_THRESHOLD", 20),
			OriginAccountThreshold: getEnvAsInt("ORIGIN_ACCOUNT_THRESHOLD", 5),
			OriginBlockDuration:    getEnvAsDuration("ORIGIN_BLOCK_DURATION", 24*time.Hour),

			ChallengeTTL:         getEnvAsDuration("CHALLENGE_TTL", 10*time.Minute),
			ChallengeMaxAttempts: getEnvAsInt("CHALLENGE_MAX_ATTEMPTS", 5),

			SweepInterval:        getEnvAsDuration("SWEEP_INTERVAL", 15*time.Minute),
			ArchiveAfter:         getEnvAsDuration("ATTEMPT_ARCHIVE_AFTER", 30*24*time.Hour),
			DeleteAfter:          getEnvAsDuration("ATTEMPT_DELETE_AFTER", 90*24*time.Hour),
			ClusterAlertMinCount: getEnvAsInt("CLUSTER_ALERT_MIN_COUNT", 50),

			GateRequestsPerMinute: getEnvAsInt("GATE_REQUESTS_PER_MINUTE", 60),
		},
		Cache: CacheConfig{
			Enabled:  getEnvAsBool("CACHE_ENABLED", false),
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			CountTTL: getEnvAsDuration("CACHE_COUNT_TTL", 5*time.Second),
		},
		Notify: NotifyConfig{
			AWSRegion:   getEnv("AWS_REGION", "us-east-1"),
			FromAddress: getEnv("ALERT_FROM_ADDRESS", ""),
			ToAddress:   getEnv("ALERT_TO_ADDRESS", ""),
		},
	}
	cfg.Notify.Enabled = cfg.Notify.FromAddress != "" && cfg.Notify.ToAddress != ""

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	// Validate admin token secret strength
	if err := validateAdminSecret(adminSecret, env); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateAdminSecret enforces minimum security standards for the ops token secret
func validateAdminSecret(secret, env string) error {
	// Minimum length based on environment
	minLength := 16 // Development minimum
	if env == "production" {
		minLength = 32 // Production requires stronger secret (256 bits)
	}

	if len(secret) < minLength {
		return fmt.Errorf("ADMIN_TOKEN_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	// Check against common weak secrets
	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("ADMIN_TOKEN_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsSlice(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}
