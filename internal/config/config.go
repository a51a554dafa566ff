// Package config reads server configuration from the environment.
//
// An optional .env file is loaded first; variables already set in the
// process environment win over the file.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/sakif/cinemax-club/internal/identity"
)

// Config is the full server configuration.
type Config struct {
	Port   int
	DBPath string

	Identity identity.Config

	// CookieSecret signs visitor cookies. When COOKIE_SECRET is unset a
	// random secret is generated and GeneratedSecret is true; visitors then
	// lose their shell on every restart.
	CookieSecret    string
	GeneratedSecret bool
	SecureCookies   bool

	SessionIdleTTL time.Duration
	LogLevel       slog.Level
}

// Load reads the environment after applying the given .env files
// (".env" when none are given). Missing files are ignored.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config: loading %s: %w", f, err)
		}
	}

	var (
		cfg Config
		err error
	)

	if cfg.Port, err = intEnv("PORT", 8080); err != nil {
		return Config{}, err
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return Config{}, fmt.Errorf("config: PORT %d out of range", cfg.Port)
	}
	cfg.DBPath = stringEnv("DB_PATH", "data/cinemax.db")

	cfg.Identity.URL = strings.TrimRight(firstEnv("SUPABASE_URL", "VITE_SUPABASE_URL"), "/")
	cfg.Identity.AnonKey = firstEnv("SUPABASE_ANON_KEY", "VITE_SUPABASE_ANON_KEY")
	if cfg.Identity.Timeout, err = durationEnv("AUTH_TIMEOUT", 15*time.Second); err != nil {
		return Config{}, err
	}

	cfg.CookieSecret = os.Getenv("COOKIE_SECRET")
	if cfg.CookieSecret == "" {
		if cfg.CookieSecret, err = randomSecret(); err != nil {
			return Config{}, err
		}
		cfg.GeneratedSecret = true
	} else if len(cfg.CookieSecret) < 16 {
		return Config{}, errors.New("config: COOKIE_SECRET must be at least 16 characters")
	}
	if cfg.SecureCookies, err = boolEnv("SECURE_COOKIES", false); err != nil {
		return Config{}, err
	}

	if cfg.SessionIdleTTL, err = durationEnv("SESSION_IDLE_TTL", 30*time.Minute); err != nil {
		return Config{}, err
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(stringEnv("LOG_LEVEL", "info"))); err != nil {
		return Config{}, fmt.Errorf("config: LOG_LEVEL: %w", err)
	}

	return cfg, nil
}

func stringEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// firstEnv returns the first non-empty variable among keys.
func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s=%q is not an integer", key, v)
	}
	return n, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("config: %s=%q is not a positive duration", key, v)
	}
	return d, nil
}

func boolEnv(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("config: %s=%q is not a boolean", key, v)
	}
	return b, nil
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("config: generating cookie secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
