package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/gsagostini/urban-graphlets/internal/watcher"
)

const envPrefix = "ORCASTR_"

type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
}

type CounterConfig struct {
	Workers   int `yaml:"workers"`
	ChunkSize int `yaml:"chunk_size"`
	CacheSize int `yaml:"cache_size"`
}

type CensusConfig struct {
	Enabled         bool     `yaml:"enabled"`
	Dir             string   `yaml:"dir"`
	Size            int      `yaml:"size"`
	WorkerCount     int      `yaml:"worker_count"`
	MaxQueueSize    int      `yaml:"max_queue_size"`
	RateLimit       int      `yaml:"rate_limit"`
	MaxFileSize     int64    `yaml:"max_file_size"`
	ExcludePatterns []string `yaml:"exclude_patterns"`
}

type ExportConfig struct {
	Dir       string `yaml:"dir"`
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type Config struct {
	DataDir        string                `yaml:"data_dir"`
	SocketPath     string                `yaml:"socket_path"`
	PidFile        string                `yaml:"pid_file"`
	LockFile       string                `yaml:"lock_file"`
	LogLevel       string                `yaml:"log_level"`
	LogFormat      string                `yaml:"log_format"`
	MaxConnections int                   `yaml:"max_connections"`
	RequestTimeout time.Duration         `yaml:"request_timeout"`
	Database       DatabaseConfig        `yaml:"database"`
	Counter        CounterConfig         `yaml:"counter"`
	Census         CensusConfig          `yaml:"census"`
	Export         ExportConfig          `yaml:"export"`
	Watcher        watcher.WatcherConfig `yaml:"watcher"`
}

func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".orcastr")
	return defaultsIn(dataDir)
}

func defaultsIn(dataDir string) *Config {
	return &Config{
		DataDir:        dataDir,
		SocketPath:     filepath.Join(dataDir, "daemon.sock"),
		PidFile:        filepath.Join(dataDir, "daemon.pid"),
		LockFile:       filepath.Join(dataDir, "daemon.lock"),
		LogLevel:       "info",
		LogFormat:      "text",
		MaxConnections: 100,
		RequestTimeout: 4 * time.Minute,
		Database: DatabaseConfig{
			Driver: "sqlite",
			Path:   filepath.Join(dataDir, "orcastr.db"),
		},
		Counter: CounterConfig{
			Workers:   0,
			ChunkSize: 64,
			CacheSize: 256,
		},
		Census: CensusConfig{
			Enabled:      false,
			Dir:          filepath.Join(dataDir, "graphs"),
			Size:         4,
			WorkerCount:  2,
			MaxQueueSize: 1000,
			RateLimit:    20,
			MaxFileSize:  256 * 1024 * 1024,
			ExcludePatterns: []string{
				"**/.git/**",
				"**/exports/**",
			},
		},
		Export: ExportConfig{
			Region: "us-east-1",
			Bucket: "orcastr-census",
		},
		Watcher: watcher.DefaultWatcherConfig(),
	}
}

// Path returns the config file location: $ORCASTR_CONFIG, or config.yaml in
// the default data directory.
func Path() string {
	if p := strings.TrimSpace(os.Getenv(envPrefix + "CONFIG")); p != "" {
		return p
	}
	return filepath.Join(Default().DataDir, "config.yaml")
}

// Load layers the defaults, the YAML file at Path (if present), a .env file
// in the working directory and ORCASTR_* environment variables.
func Load() (*Config, error) {
	return LoadFrom(Path())
}

func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.mergeFile(path); err != nil {
		return nil, err
	}

	_ = godotenv.Load()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	// data_dir moves every derived path unless the file sets them explicitly
	var probe struct {
		DataDir string `yaml:"data_dir"`
	}
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	if probe.DataDir != "" {
		*c = *defaultsIn(expandHome(probe.DataDir))
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(envPrefix + key)); v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) error {
		v := strings.TrimSpace(os.Getenv(envPrefix + key))
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, key, err)
		}
		*dst = n
		return nil
	}
	boolean := func(key string, dst *bool) error {
		v := strings.TrimSpace(os.Getenv(envPrefix + key))
		if v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, key, err)
		}
		*dst = b
		return nil
	}

	str("SOCKET_PATH", &c.SocketPath)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)
	str("DB_DRIVER", &c.Database.Driver)
	str("DB_PATH", &c.Database.Path)
	str("DB_DSN", &c.Database.DSN)
	str("CENSUS_DIR", &c.Census.Dir)
	str("EXPORT_DIR", &c.Export.Dir)
	str("S3_ENDPOINT", &c.Export.Endpoint)
	str("S3_REGION", &c.Export.Region)
	str("S3_ACCESS_KEY", &c.Export.AccessKey)
	str("S3_SECRET_KEY", &c.Export.SecretKey)
	str("S3_BUCKET", &c.Export.Bucket)

	if v := strings.TrimSpace(os.Getenv(envPrefix + "REQUEST_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sREQUEST_TIMEOUT: %w", envPrefix, err)
		}
		c.RequestTimeout = d
	}

	for _, err := range []error{
		integer("WORKERS", &c.Counter.Workers),
		integer("CACHE_SIZE", &c.Counter.CacheSize),
		integer("CENSUS_SIZE", &c.Census.Size),
		boolean("CENSUS_ENABLED", &c.Census.Enabled),
		boolean("S3_USE_SSL", &c.Export.UseSSL),
	} {
		if err != nil {
			return err
		}
	}

	if c.Database.DSN != "" && c.Database.Driver == "sqlite" {
		c.Database.Driver = "postgres"
	}
	return nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	if c.Database.Driver == "postgres" && c.Database.DSN == "" {
		return fmt.Errorf("postgres driver needs database.dsn")
	}
	if c.Census.Size != 4 && c.Census.Size != 5 {
		return fmt.Errorf("census size must be 4 or 5, got %d", c.Census.Size)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive")
	}
	return nil
}

func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.DataDir, 0700); err != nil {
		return err
	}
	if c.Census.Enabled {
		return os.MkdirAll(c.Census.Dir, 0755)
	}
	return nil
}

func expandHome(p string) string {
	if strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[2:])
		}
	}
	return p
}
