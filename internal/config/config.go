package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the ScanHunter server.
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Scanner     ScannerConfig
	Notify      NotifyConfig
	Credentials CredentialsConfig
	Artifacts   ArtifactsConfig
}

type ServerConfig struct {
	Port           int
	Env            string
	AllowedOrigins []string
	APIKeyHash     string
	RateLimit      int
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type ScannerConfig struct {
	WorkDir      string
	CloneTimeout time.Duration
	JobTTL       time.Duration
	StoreTimeout time.Duration
	Tools        ToolsConfig
}

// ToolsConfig configures the three external scanners.
type ToolsConfig struct {
	DependencyScan ToolConfig `yaml:"dependency-scan"`
	SecretScan     ToolConfig `yaml:"secret-scan"`
	StaticAnalysis ToolConfig `yaml:"static-analysis"`
}

// ToolConfig is the invocation policy for one scanner executable.
type ToolConfig struct {
	Binary  string        `yaml:"binary"`
	Timeout time.Duration `yaml:"timeout"`
	Args    []string      `yaml:"args"`
}

type NotifyConfig struct {
	Timeout time.Duration
}

type CredentialsConfig struct {
	EncryptionKey []byte
}

// ArtifactsConfig configures the optional S3-compatible report archive.
// The archive is disabled when Endpoint is empty.
type ArtifactsConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// Enabled reports whether the report archive is configured.
func (a ArtifactsConfig) Enabled() bool { return a.Endpoint != "" }

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:           envInt("SCANHUNTER_PORT", 8080),
			Env:            envString("SCANHUNTER_ENV", "development"),
			AllowedOrigins: envList("SCANHUNTER_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			APIKeyHash:     os.Getenv("SCANHUNTER_API_KEY_HASH"),
			RateLimit:      envInt("SCANHUNTER_SCAN_RATE_LIMIT", 10),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Scanner: ScannerConfig{
			WorkDir:      envString("SCANHUNTER_WORK_DIR", os.TempDir()),
			CloneTimeout: envDurationSecs("SCANHUNTER_CLONE_TIMEOUT_SECS", 120*time.Second),
			JobTTL:       envDuration("SCANHUNTER_JOB_TTL", 24*time.Hour),
			StoreTimeout: envDuration("SCANHUNTER_STORE_TIMEOUT", 5*time.Second),
			Tools: ToolsConfig{
				DependencyScan: ToolConfig{
					Binary:  envString("TRIVY_BINARY", "trivy"),
					Timeout: envDurationSecs("TRIVY_TIMEOUT_SECS", 300*time.Second),
				},
				SecretScan: ToolConfig{
					Binary:  envString("GITLEAKS_BINARY", "gitleaks"),
					Timeout: envDurationSecs("GITLEAKS_TIMEOUT_SECS", 300*time.Second),
				},
				StaticAnalysis: ToolConfig{
					Binary:  envString("SEMGREP_BINARY", "semgrep"),
					Timeout: envDurationSecs("SEMGREP_TIMEOUT_SECS", 600*time.Second),
				},
			},
		},
		Notify: NotifyConfig{
			Timeout: envDuration("NOTIFY_TIMEOUT", 10*time.Second),
		},
		Artifacts: ArtifactsConfig{
			Endpoint:  os.Getenv("ARTIFACTS_ENDPOINT"),
			AccessKey: os.Getenv("ARTIFACTS_ACCESS_KEY"),
			SecretKey: os.Getenv("ARTIFACTS_SECRET_KEY"),
			Bucket:    envString("ARTIFACTS_BUCKET", "scan-reports"),
			Region:    envString("ARTIFACTS_REGION", "us-east-1"),
			UseSSL:    envBool("ARTIFACTS_USE_SSL", true),
		},
	}

	key, err := parseEncryptionKey(os.Getenv("CREDENTIALS_ENCRYPTION_KEY"))
	if err != nil {
		return nil, err
	}
	cfg.Credentials.EncryptionKey = key

	if path := os.Getenv("SCANHUNTER_TOOLS_FILE"); path != "" {
		if err := loadToolsFile(path, &cfg.Scanner.Tools); err != nil {
			return nil, fmt.Errorf("SCANHUNTER_TOOLS_FILE: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Scanner.CloneTimeout <= 0 {
		return fmt.Errorf("SCANHUNTER_CLONE_TIMEOUT_SECS must be positive")
	}
	if c.Scanner.JobTTL <= 0 {
		return fmt.Errorf("SCANHUNTER_JOB_TTL must be positive")
	}

	for name, tc := range map[string]ToolConfig{
		"dependency-scan": c.Scanner.Tools.DependencyScan,
		"secret-scan":     c.Scanner.Tools.SecretScan,
		"static-analysis": c.Scanner.Tools.StaticAnalysis,
	} {
		if tc.Binary == "" {
			return fmt.Errorf("%s: binary must not be empty", name)
		}
		if tc.Timeout <= 0 {
			return fmt.Errorf("%s: timeout must be positive", name)
		}
	}

	if c.Artifacts.Enabled() && (c.Artifacts.AccessKey == "" || c.Artifacts.SecretKey == "") {
		return fmt.Errorf("ARTIFACTS_ACCESS_KEY and ARTIFACTS_SECRET_KEY are required when ARTIFACTS_ENDPOINT is set")
	}

	return nil
}

// parseEncryptionKey accepts a 32-byte key as 64 hex characters or 32 raw bytes.
func parseEncryptionKey(v string) ([]byte, error) {
	if v == "" {
		return nil, fmt.Errorf("CREDENTIALS_ENCRYPTION_KEY is required")
	}
	if len(v) == 64 {
		if b, err := hex.DecodeString(v); err == nil {
			return b, nil
		}
	}
	if len(v) == 32 {
		return []byte(v), nil
	}
	return nil, fmt.Errorf("CREDENTIALS_ENCRYPTION_KEY must be 32 bytes (or 64 hex characters), got %d characters", len(v))
}

// loadToolsFile overlays non-zero values from a YAML file onto tools.
func loadToolsFile(path string, tools *ToolsConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var file ToolsConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	overlayTool(&tools.DependencyScan, file.DependencyScan)
	overlayTool(&tools.SecretScan, file.SecretScan)
	overlayTool(&tools.StaticAnalysis, file.StaticAnalysis)
	return nil
}

func overlayTool(dst *ToolConfig, src ToolConfig) {
	if src.Binary != "" {
		dst.Binary = src.Binary
	}
	if src.Timeout > 0 {
		dst.Timeout = src.Timeout
	}
	if len(src.Args) > 0 {
		dst.Args = src.Args
	}
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
