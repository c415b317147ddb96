// Package config loads application configuration from environment variables.
// A .env file in the working directory is read first when present; variables
// already set in the environment take precedence over it.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

// Store backends.
const (
	StoreMySQL  = "mysql"
	StoreMemory = "memory"
)

// Config holds all runtime configuration values. Each field corresponds to
// an environment variable.
type Config struct {
	Env  string // APP_ENV, e.g. "dev", "prod"
	Port string // APP_PORT

	Store  string // APP_STORE: mysql | memory
	DBUser string
	DBPass string // may be empty
	DBHost string
	DBPort string
	DBName string

	AccessSecret   string // JWT_ACCESS_SECRET
	RefreshSecret  string // JWT_REFRESH_SECRET
	TempSecret     string // JWT_TEMP_SECRET
	Issuer         string // JWT_ISSUER, optional
	AccessTTLMin   int    // ACCESS_TOKEN_TTL_MIN
	RefreshTTLDays int    // REFRESH_TOKEN_TTL_DAYS
	TempTTLMin     int    // TEMP_TOKEN_TTL_MIN
	OTPExpiryMin   int    // OTP_EXPIRY_MIN
	OTPDigits      int    // OTP_DIGITS
	BcryptCost     int    // BCRYPT_COST

	CookieName string // COOKIE_NAME
	RabbitURL  string // RABBITMQ_URL, empty disables the broker
	OTPQueue   string // OTP_QUEUE
	LogLevel   string // LOG_LEVEL
	LogFormat  string // LOG_FORMAT: text | json
}

// AccessTTL returns the access token lifetime.
func (c Config) AccessTTL() time.Duration { return time.Duration(c.AccessTTLMin) * time.Minute }

// RefreshTTL returns the refresh token lifetime.
func (c Config) RefreshTTL() time.Duration {
	return time.Duration(c.RefreshTTLDays) * 24 * time.Hour
}

// TempTTL returns the step-1 token lifetime.
func (c Config) TempTTL() time.Duration { return time.Duration(c.TempTTLMin) * time.Minute }

// OTPExpiry returns how long an emailed code stays valid.
func (c Config) OTPExpiry() time.Duration { return time.Duration(c.OTPExpiryMin) * time.Minute }

// Load reads .env (if any) and the environment, then validates the result.
// All missing or malformed variables are reported together.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("read .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (Config, error) {
	var l loader
	cfg := Config{
		Env:            l.must("APP_ENV"),
		Port:           l.must("APP_PORT"),
		Store:          envStr("APP_STORE", StoreMySQL),
		AccessSecret:   l.must("JWT_ACCESS_SECRET"),
		RefreshSecret:  l.must("JWT_REFRESH_SECRET"),
		TempSecret:     l.must("JWT_TEMP_SECRET"),
		Issuer:         os.Getenv("JWT_ISSUER"),
		AccessTTLMin:   l.mustInt("ACCESS_TOKEN_TTL_MIN"),
		RefreshTTLDays: l.mustInt("REFRESH_TOKEN_TTL_DAYS"),
		TempTTLMin:     envInt("TEMP_TOKEN_TTL_MIN", 10),
		OTPExpiryMin:   envInt("OTP_EXPIRY_MIN", 5),
		OTPDigits:      envInt("OTP_DIGITS", 6),
		BcryptCost:     l.mustInt("BCRYPT_COST"),
		CookieName:     envStr("COOKIE_NAME", "auth-token"),
		RabbitURL:      os.Getenv("RABBITMQ_URL"),
		OTPQueue:       envStr("OTP_QUEUE", "auth.otp"),
		LogLevel:       envStr("LOG_LEVEL", "info"),
		LogFormat:      envStr("LOG_FORMAT", "text"),
	}
	if cfg.Store == StoreMySQL {
		cfg.DBUser = l.must("DB_USER")
		cfg.DBPass = os.Getenv("DB_PASS")
		cfg.DBHost = l.must("DB_HOST")
		cfg.DBPort = l.must("DB_PORT")
		cfg.DBName = l.must("DB_NAME")
	}
	if err := errors.Join(l.errs...); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// Validate checks invariants the token and OTP layers rely on.
func (c Config) Validate() error {
	var errs []error
	if c.Store != StoreMySQL && c.Store != StoreMemory {
		errs = append(errs, fmt.Errorf("APP_STORE must be %q or %q, got %q", StoreMySQL, StoreMemory, c.Store))
	}
	if c.AccessSecret == "" || c.RefreshSecret == "" || c.TempSecret == "" {
		errs = append(errs, errors.New("access, refresh and temp token secrets are required"))
	} else if c.AccessSecret == c.RefreshSecret || c.AccessSecret == c.TempSecret || c.RefreshSecret == c.TempSecret {
		errs = append(errs, errors.New("access, refresh and temp token secrets must differ"))
	}
	if c.AccessTTLMin <= 0 || c.RefreshTTLDays <= 0 || c.TempTTLMin <= 0 {
		errs = append(errs, errors.New("token lifetimes must be positive"))
	}
	if c.OTPExpiryMin <= 0 {
		errs = append(errs, errors.New("OTP_EXPIRY_MIN must be positive"))
	}
	if c.OTPDigits < 4 || c.OTPDigits > 10 {
		errs = append(errs, fmt.Errorf("OTP_DIGITS must be between 4 and 10, got %d", c.OTPDigits))
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		errs = append(errs, fmt.Errorf("BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost))
	}
	return errors.Join(errs...)
}

// loader collects missing or malformed required variables.
type loader struct{ errs []error }

func (l *loader) must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		l.errs = append(l.errs, fmt.Errorf("missing required env var: %s", key))
	}
	return v
}

func (l *loader) mustInt(key string) int {
	s := l.must(key)
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("invalid int for %s: %q", key, s))
	}
	return n
}
