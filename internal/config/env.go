package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

const (
	envAccessKey   = "MODELSCANNER_STORAGE_ACCESS_KEY"
	envSecretKey   = "MODELSCANNER_STORAGE_SECRET_KEY"
	envServiceURL  = "MODELSCANNER_STORAGE_SERVICE_URL"
	envDatabaseURL = "MODELSCANNER_DATABASE_URL"
	envAPITokens   = "MODELSCANNER_API_TOKENS"
	envWorkers     = "MODELSCANNER_WORKERS"
)

// environment resolves settings from the process environment first and from
// .env files second. The process environment is never modified.
type environment struct {
	dotenv map[string]string
}

func (e environment) lookup(key string) (string, bool) {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v), true
	}
	if v, ok := e.dotenv[key]; ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v), true
	}
	return "", false
}

// loadEnvironment reads .env next to the config file and in the working
// directory. Values from the config directory win.
func loadEnvironment(configDir string) (environment, error) {
	env := environment{dotenv: map[string]string{}}

	candidates := []string{".env"}
	if configDir != "" {
		candidates = append(candidates, filepath.Join(configDir, ".env"))
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return env, fmt.Errorf("stat %s: %w", path, err)
		}
		values, err := godotenv.Read(path)
		if err != nil {
			return env, fmt.Errorf("read %s: %w", path, err)
		}
		for k, v := range values {
			env.dotenv[k] = v
		}
	}
	return env, nil
}
