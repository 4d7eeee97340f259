package config

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
)

func (c *Config) normalize(env environment) error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeWorkflow(env); err != nil {
		return err
	}
	c.normalizeStorage(env)
	c.normalizeScanner()
	c.normalizeAPI(env)
	c.normalizeCleanup(env)
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	fields := []struct {
		name  string
		value *string
		def   string
	}{
		{"paths.temp_dir", &c.Paths.TempDir, defaultTempDir},
		{"paths.data_dir", &c.Paths.DataDir, defaultDataDir},
		{"paths.log_dir", &c.Paths.LogDir, defaultLogDir},
	}
	for _, f := range fields {
		if strings.TrimSpace(*f.value) == "" {
			*f.value = f.def
		}
		expanded, err := expandPath(strings.TrimSpace(*f.value))
		if err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
		*f.value = expanded
	}
	return nil
}

func (c *Config) normalizeStorage(env environment) {
	s := &c.Storage
	s.ServiceURL = strings.TrimRight(strings.TrimSpace(s.ServiceURL), "/")
	if s.ServiceURL == "" {
		if v, ok := env.lookup(envServiceURL); ok {
			s.ServiceURL = strings.TrimRight(v, "/")
		}
	}
	s.AccessKey = strings.TrimSpace(s.AccessKey)
	if s.AccessKey == "" {
		s.AccessKey, _ = env.lookup(envAccessKey)
	}
	s.SecretKey = strings.TrimSpace(s.SecretKey)
	if s.SecretKey == "" {
		s.SecretKey, _ = env.lookup(envSecretKey)
	}
	s.UploadBucket = strings.TrimSpace(s.UploadBucket)
	s.TempBucket = strings.TrimSpace(s.TempBucket)
	s.Region = strings.TrimSpace(s.Region)
	if s.Region == "" {
		s.Region = defaultRegion
	}
}

func (c *Config) normalizeScanner() {
	c.Scanner.DockerBinary = strings.TrimSpace(c.Scanner.DockerBinary)
	if c.Scanner.DockerBinary == "" {
		c.Scanner.DockerBinary = defaultDockerBinary
	}
	c.Scanner.Image = strings.TrimSpace(c.Scanner.Image)
	if c.Scanner.Image == "" {
		c.Scanner.Image = defaultImage
	}
	c.Callback.UserAgent = strings.TrimSpace(c.Callback.UserAgent)
	if c.Callback.UserAgent == "" {
		c.Callback.UserAgent = defaultUserAgent
	}
}

func (c *Config) normalizeWorkflow(env environment) error {
	if v, ok := env.lookup(envWorkers); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", envWorkers, err)
		}
		c.Workflow.Workers = n
	}
	if c.Workflow.Workers == 0 {
		c.Workflow.Workers = runtime.NumCPU()
	}
	return nil
}

func (c *Config) normalizeAPI(env environment) {
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if c.API.Bind == "" {
		c.API.Bind = defaultAPIBind
	}
	tokens := c.API.Tokens
	if v, ok := env.lookup(envAPITokens); ok {
		tokens = append(tokens, strings.Split(v, ",")...)
	}
	seen := make(map[string]struct{}, len(tokens))
	cleaned := make([]string, 0, len(tokens))
	for _, token := range tokens {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		cleaned = append(cleaned, token)
	}
	c.API.Tokens = cleaned
}

func (c *Config) normalizeCleanup(env environment) {
	c.Cleanup.DatabaseURL = strings.TrimSpace(c.Cleanup.DatabaseURL)
	if c.Cleanup.DatabaseURL == "" {
		c.Cleanup.DatabaseURL, _ = env.lookup(envDatabaseURL)
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
