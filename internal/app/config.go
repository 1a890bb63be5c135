package app

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tkoivu/threadline-backend/internal/pkg/envutil"
	"github.com/tkoivu/threadline-backend/internal/pkg/logger"
)

// Config is the process configuration. Environment variables win over
// the optional yaml file, which wins over defaults.
type Config struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// AuthSecret signs user tokens. Empty means anonymous mode.
	AuthSecret string `yaml:"auth_secret"`

	// DatabaseURL accepts a postgres:// DSN or a sqlite file path; empty
	// falls back to an in-memory sqlite database.
	DatabaseURL string `yaml:"database_url"`

	// StorageRoot is the local element store and session scratch root.
	StorageRoot string `yaml:"storage_root"`

	// GCSBucket, when set, switches element storage to GCS.
	GCSBucket string `yaml:"gcs_bucket"`

	// RedisAddr, when set, fans transport messages out through Redis so
	// several replicas can share sessions' UIs.
	RedisAddr string `yaml:"redis_addr"`

	LogMode      string   `yaml:"log_mode"`
	PublicURL    string   `yaml:"public_url"`
	AllowOrigins []string `yaml:"allow_origins"`
}

const DefaultConfigFile = "threadline.yaml"

func defaultConfig() Config {
	return Config{
		Host:        "127.0.0.1",
		Port:        8000,
		StorageRoot: ".threadline/storage",
		LogMode:     "development",
		PublicURL:   "http://localhost:8000",
	}
}

// LoadConfig layers the yaml file (if present) and the environment over
// the defaults.
func LoadConfig(log *logger.Logger, configFile string) (Config, error) {
	cfg := defaultConfig()

	if configFile == "" {
		configFile = DefaultConfigFile
	}
	raw, err := os.ReadFile(configFile)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", configFile, err)
		}
		log.Debug("Loaded config file", "path", configFile)
	case os.IsNotExist(err):
		// Running without a config file is normal.
	default:
		return cfg, fmt.Errorf("read %s: %w", configFile, err)
	}

	cfg.Host = envutil.String("HOST", cfg.Host)
	cfg.Port = envutil.Int("PORT", cfg.Port)
	cfg.AuthSecret = envutil.String("CHAINLIT_AUTH_SECRET", cfg.AuthSecret)
	cfg.DatabaseURL = envutil.String("DATABASE_URL", cfg.DatabaseURL)
	cfg.StorageRoot = envutil.String("STORAGE_ROOT", cfg.StorageRoot)
	cfg.GCSBucket = envutil.String("GCS_BUCKET_NAME", cfg.GCSBucket)
	cfg.RedisAddr = envutil.String("REDIS_ADDR", cfg.RedisAddr)
	cfg.LogMode = envutil.String("LOG_MODE", cfg.LogMode)
	cfg.PublicURL = envutil.String("PUBLIC_URL", cfg.PublicURL)
	if origins := envutil.String("ALLOW_ORIGINS", ""); origins != "" {
		cfg.AllowOrigins = splitAndTrim(origins)
	}
	return cfg, nil
}

func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// WriteDefaultConfigFile materializes a commented starter config; it
// refuses to clobber an existing file.
func WriteDefaultConfigFile(path string) error {
	if path == "" {
		path = DefaultConfigFile
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	cfg := defaultConfig()
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	header := []byte("# threadline configuration; every key can be overridden by env vars.\n")
	return os.WriteFile(path, append(header, raw...), 0o644)
}
