package util

import (
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

//nolint:gochecknoglobals // here its ok
var once sync.Once

func init() {
	once.Do(func() {
		if err := godotenv.Load(".env"); err != nil {
			log.Printf("Warning: could not load .env file: %v", err)
		}
	})
}

const (
	defaultServerAddr      = "localhost:8080"
	defaultWriteTimeout    = 10 * time.Second
	defaultReadTimeout     = 10 * time.Second
	defaultIdleTimeout     = 30 * time.Second
	defaultGracefulTimeout = 5 * time.Second

	defaultAccessTTL   = 15 * time.Minute
	defaultRefreshTTL  = 30 * 24 * time.Hour
	defaultSessionTTL  = 30 * 24 * time.Hour
	defaultMaxSessions = 5

	defaultHourlyInterval = 1 * time.Hour
	defaultDailyInterval  = 24 * time.Hour
	defaultInactiveDays   = 30

	// Expired rows linger this long before the hourly sweep deletes them,
	// keeping recent history available for support lookups.
	CleanupGracePeriod = 24 * time.Hour

	// RefreshSecretLength is the entropy of a refresh secret in bytes.
	RefreshSecretLength = 32
)

type ServerConfig struct {
	ServerAddr      string
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	IdleTimeout     time.Duration
	GracefulTimeout time.Duration
}

func NewServerConfig() *ServerConfig {
	addr := os.Getenv("SERVER_ADDRESS")
	if addr == "" {
		addr = defaultServerAddr
	}

	return &ServerConfig{
		ServerAddr:      addr,
		WriteTimeout:    parseDurationOrDefault("WRITE_TIMEOUT", defaultWriteTimeout),
		ReadTimeout:     parseDurationOrDefault("READ_TIMEOUT", defaultReadTimeout),
		IdleTimeout:     parseDurationOrDefault("IDLE_TIMEOUT", defaultIdleTimeout),
		GracefulTimeout: parseDurationOrDefault("GRACEFUL_TIMEOUT", defaultGracefulTimeout),
	}
}

type TokenConfig struct {
	JwtSecretKey []byte
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
}

func NewTokenConfig() *TokenConfig {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("JWT_SECRET is not set")
	}
	return &TokenConfig{
		JwtSecretKey: []byte(secret),
		AccessTTL:    parseDurationOrDefault("ACCESS_TOKEN_TTL", defaultAccessTTL),
		RefreshTTL:   parseDurationOrDefault("REFRESH_TOKEN_EXPIRES_IN", defaultRefreshTTL),
	}
}

// SecretConfig holds the server-side key used for token hashing and device
// fingerprints. Kept separate from the JWT signing key so the two can rotate
// independently.
type SecretConfig struct {
	ServerSecret []byte
}

func NewSecretConfig() *SecretConfig {
	secret := os.Getenv("SERVER_SECRET")
	if secret == "" {
		log.Fatal("SERVER_SECRET is not set")
	}
	return &SecretConfig{ServerSecret: []byte(secret)}
}

type SessionConfig struct {
	SessionTTL  time.Duration
	MaxSessions int
}

func NewSessionConfig() *SessionConfig {
	return &SessionConfig{
		SessionTTL:  parseDurationOrDefault("SESSION_EXPIRES_IN", defaultSessionTTL),
		MaxSessions: parseIntOrDefault("MAX_SESSIONS_PER_USER", defaultMaxSessions),
	}
}

type CleanupConfig struct {
	HourlyInterval time.Duration
	DailyInterval  time.Duration
	InactiveDays   int
}

func NewCleanupConfig() *CleanupConfig {
	return &CleanupConfig{
		HourlyInterval: parseDurationOrDefault("CLEANUP_HOURLY_INTERVAL", defaultHourlyInterval),
		DailyInterval:  parseDurationOrDefault("CLEANUP_DAILY_INTERVAL", defaultDailyInterval),
		InactiveDays:   parseIntOrDefault("INACTIVE_CLEANUP_DAYS", defaultInactiveDays),
	}
}

func parseDurationOrDefault(varName string, def time.Duration) time.Duration {
	if v := os.Getenv(varName); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		log.Printf("Invalid duration in %s: %s, using default %s", varName, v, def)
	}
	return def
}

func parseIntOrDefault(varName string, def int) int {
	if v := os.Getenv(varName); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		log.Printf("Invalid integer in %s: %s, using default %d", varName, v, def)
	}
	return def
}
