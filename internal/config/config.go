package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// DB
	Env         string // "dev" | "prod"
	DBPath      string // e.g. "./data/irisvault.db"
	BusyTimeout time.Duration

	// Logging
	LogLevel  string
	LogPretty bool

	// Tokens
	TokenKey   []byte
	TOTPIssuer string
}

const minTokenKeyLen = 32

func FromEnv() Config {
	env := strings.ToLower(getenvDefault("IRISVAULT_ENV", "dev"))
	if env != "dev" && env != "prod" {
		// fail-soft: treat unknown as dev
		env = "dev"
	}

	dbPath := getenvDefault("IRISVAULT_DB_PATH", "./data/irisvault.db")
	busyMs := getenvInt("IRISVAULT_BUSY_TIMEOUT_MS", 5000)

	level := getenvDefault("IRISVAULT_LOG_LEVEL", "info")
	pretty := getenvBool("IRISVAULT_LOG_PRETTY", env == "dev")

	return Config{
		Env:         env,
		DBPath:      dbPath,
		BusyTimeout: time.Duration(busyMs) * time.Millisecond,

		LogLevel:  level,
		LogPretty: pretty,

		TokenKey:   []byte(os.Getenv("IRISVAULT_TOKEN_KEY")),
		TOTPIssuer: getenvDefault("IRISVAULT_TOTP_ISSUER", "irisvault"),
	}
}

// Validate reports settings the vault cannot start with. Only the token key
// is fatal; everything else falls back to a default in FromEnv.
func (c Config) Validate() error {
	if len(c.TokenKey) < minTokenKeyLen {
		return errors.New("IRISVAULT_TOKEN_KEY must be at least 32 bytes")
	}
	return nil
}

func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func getenvBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return strings.EqualFold(v, "true") || v == "1"
}
