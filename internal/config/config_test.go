package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envFunc(env map[string]string) func(string) string {
	return func(k string) string { return env[k] }
}

func TestLoadServer_Defaults(t *testing.T) {
	cfg, err := loadServer(envFunc(nil))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "http://localhost:8080", cfg.PublicURL)
	assert.Equal(t, "data/survey.db", cfg.DBPath)
	assert.Equal(t, DefaultBucket, cfg.Bucket)
	assert.Equal(t, "disk", cfg.StorageDriver)
	assert.Equal(t, "env", cfg.SecretsBackend)
	assert.Equal(t, 10, cfg.SignInPerMinute)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
}

func TestLoadServer_Overrides(t *testing.T) {
	cfg, err := loadServer(envFunc(map[string]string{
		"PORT":           "9000",
		"PUBLIC_URL":     "https://survey.example.com/",
		"STORAGE_DRIVER": "S3",
		"S3_BUCKET":      "photos",
		"LOG_LEVEL":      "debug",
	}))
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "https://survey.example.com", cfg.PublicURL)
	assert.Equal(t, "s3", cfg.StorageDriver)
	assert.Equal(t, "photos", cfg.S3Bucket)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
}

func TestLoadServer_Errors(t *testing.T) {
	tests := map[string]map[string]string{
		"bad port":        {"PORT": "eighty"},
		"negative rate":   {"SIGNIN_RATE_PER_MINUTE": "-1"},
		"s3 without name": {"STORAGE_DRIVER": "s3"},
		"unknown driver":  {"STORAGE_DRIVER": "ftp"},
		"bad log level":   {"LOG_LEVEL": "loud"},
		"bad shutdown":    {"SHUTDOWN_TIMEOUT": "soon"},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := loadServer(envFunc(env))
			assert.Error(t, err)
		})
	}
}

func TestLoadClient(t *testing.T) {
	cfg, err := loadClient(envFunc(map[string]string{"HOME": "/home/agent"}))
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080", cfg.APIURL)
	assert.Equal(t, "/home/agent/.field-survey/session.db", cfg.SessionDB)
	assert.Equal(t, 10*time.Minute, cfg.RefreshInterval)
	assert.Equal(t, DefaultBucket, cfg.Bucket)

	cfg, err = loadClient(envFunc(map[string]string{
		"SURVEY_API_URL":          "https://api.example.com/",
		"SURVEY_SESSION_DB":       ":memory:",
		"SURVEY_REFRESH_INTERVAL": "1m",
	}))
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com", cfg.APIURL)
	assert.Equal(t, ":memory:", cfg.SessionDB)
	assert.Equal(t, time.Minute, cfg.RefreshInterval)

	_, err = loadClient(envFunc(map[string]string{"SURVEY_HTTP_TIMEOUT": "0s"}))
	assert.Error(t, err)
}
