// Package config reads runtime configuration from environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// DefaultBucket is the object-store bucket that holds survey photos.
const DefaultBucket = "form_images"

// Server holds the backend's configuration.
type Server struct {
	Port      int
	PublicURL string // externally reachable base URL, used in public image URLs
	LogLevel  slog.Level

	DBPath      string // SQLite file, used when DatabaseURL is empty
	DatabaseURL string // PostgreSQL DSN

	Bucket        string
	StorageDriver string // "disk" or "s3"
	StorageDir    string
	S3Bucket      string
	S3Prefix      string
	S3Endpoint    string

	SecretsBackend string // "env" or "ssm"
	JWTSecretParam string

	SignInPerMinute int
	ShutdownTimeout time.Duration
}

// Client holds the CLI's configuration.
type Client struct {
	APIURL          string
	Bucket          string
	SessionDB       string
	RefreshInterval time.Duration
	HTTPTimeout     time.Duration
	LogLevel        slog.Level
}

// LoadServer reads the backend configuration from the environment.
func LoadServer() (Server, error) {
	return loadServer(os.Getenv)
}

// LoadClient reads the CLI configuration from the environment.
func LoadClient() (Client, error) {
	return loadClient(os.Getenv)
}

func loadServer(getenv func(string) string) (Server, error) {
	port, err := intOrDefault(getenv, "PORT", 8080)
	if err != nil {
		return Server{}, err
	}
	perMinute, err := intOrDefault(getenv, "SIGNIN_RATE_PER_MINUTE", 10)
	if err != nil {
		return Server{}, err
	}
	shutdown, err := durationOrDefault(getenv, "SHUTDOWN_TIMEOUT", 30*time.Second)
	if err != nil {
		return Server{}, err
	}
	level, err := parseLevel(getenv("LOG_LEVEL"))
	if err != nil {
		return Server{}, err
	}

	cfg := Server{
		Port:            port,
		PublicURL:       strings.TrimRight(envOrDefault(getenv, "PUBLIC_URL", fmt.Sprintf("http://localhost:%d", port)), "/"),
		LogLevel:        level,
		DBPath:          envOrDefault(getenv, "DB_PATH", "data/survey.db"),
		DatabaseURL:     strings.TrimSpace(getenv("DATABASE_URL")),
		Bucket:          envOrDefault(getenv, "STORAGE_BUCKET", DefaultBucket),
		StorageDriver:   strings.ToLower(envOrDefault(getenv, "STORAGE_DRIVER", "disk")),
		StorageDir:      envOrDefault(getenv, "STORAGE_DIR", "data/objects"),
		S3Bucket:        strings.TrimSpace(getenv("S3_BUCKET")),
		S3Prefix:        strings.TrimSpace(getenv("S3_PREFIX")),
		S3Endpoint:      strings.TrimSpace(getenv("S3_ENDPOINT")),
		SecretsBackend:  strings.ToLower(envOrDefault(getenv, "SECRETS_BACKEND", "env")),
		JWTSecretParam:  envOrDefault(getenv, "JWT_SECRET_PARAM", "/field-survey/jwt-secret"),
		SignInPerMinute: perMinute,
		ShutdownTimeout: shutdown,
	}

	switch cfg.StorageDriver {
	case "disk":
	case "s3":
		if cfg.S3Bucket == "" {
			return Server{}, fmt.Errorf("config: S3_BUCKET is required when STORAGE_DRIVER=s3")
		}
	default:
		return Server{}, fmt.Errorf("config: unknown STORAGE_DRIVER %q", cfg.StorageDriver)
	}

	return cfg, nil
}

func loadClient(getenv func(string) string) (Client, error) {
	refresh, err := durationOrDefault(getenv, "SURVEY_REFRESH_INTERVAL", 10*time.Minute)
	if err != nil {
		return Client{}, err
	}
	timeout, err := durationOrDefault(getenv, "SURVEY_HTTP_TIMEOUT", 30*time.Second)
	if err != nil {
		return Client{}, err
	}
	level, err := parseLevel(getenv("LOG_LEVEL"))
	if err != nil {
		return Client{}, err
	}

	sessionDB := strings.TrimSpace(getenv("SURVEY_SESSION_DB"))
	if sessionDB == "" {
		home := strings.TrimSpace(getenv("HOME"))
		if home == "" {
			home = "."
		}
		sessionDB = filepath.Join(home, ".field-survey", "session.db")
	}

	return Client{
		APIURL:          strings.TrimRight(envOrDefault(getenv, "SURVEY_API_URL", "http://localhost:8080"), "/"),
		Bucket:          envOrDefault(getenv, "STORAGE_BUCKET", DefaultBucket),
		SessionDB:       sessionDB,
		RefreshInterval: refresh,
		HTTPTimeout:     timeout,
		LogLevel:        level,
	}, nil
}

func envOrDefault(getenv func(string) string, key, fallback string) string {
	if v := strings.TrimSpace(getenv(key)); v != "" {
		return v
	}
	return fallback
}

func intOrDefault(getenv func(string) string, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(getenv(key))
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("config: invalid %s value %q", key, raw)
	}
	return n, nil
}

func durationOrDefault(getenv func(string) string, key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(getenv(key))
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("config: invalid %s value %q", key, raw)
	}
	return d, nil
}

func parseLevel(raw string) (slog.Level, error) {
	if strings.TrimSpace(raw) == "" {
		return slog.LevelInfo, nil
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(raw))); err != nil {
		return 0, fmt.Errorf("config: invalid LOG_LEVEL %q", raw)
	}
	return l, nil
}
