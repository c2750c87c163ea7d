package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"

	"github.com/scriptducks/hashes-gui/internal/adapters/filestore"
	"github.com/scriptducks/hashes-gui/internal/app"
)

const appDirName = "hashes-gui"

// Key storage backends for the API key.
const (
	KeyStorageFile    = "file"
	KeyStorageKeyring = "keyring"
)

type Config struct {
	Addr string `env:"HASHES_ADDR" envDefault:"127.0.0.1:8080"`

	// DataDir holds the preferences file, the algorithm catalogue and the task
	// database unless their own paths are set.
	DataDir         string `env:"HASHES_DATA_DIR"`
	PreferencesPath string `env:"HASHES_PREFERENCES_PATH"`
	AlgorithmsPath  string `env:"HASHES_ALGORITHMS_PATH"`
	DBPath          string `env:"HASHES_DB_PATH"`
	KeyStorage      string `env:"HASHES_KEY_STORAGE" envDefault:"file"`

	APIURL        string        `env:"HASHES_API_URL" envDefault:"https://hashes.com/en/api"`
	DownloadURL   string        `env:"HASHES_DOWNLOAD_URL" envDefault:"http://hashes.com"`
	HTTPTimeout   time.Duration `env:"HASHES_HTTP_TIMEOUT" envDefault:"20s"`
	DownloadDelay time.Duration `env:"HASHES_DOWNLOAD_DELAY" envDefault:"400ms"`
	ConversionTTL time.Duration `env:"HASHES_CONVERSION_TTL" envDefault:"60s"`

	Workers                int           `env:"HASHES_WORKERS" envDefault:"1"`
	MaxConcurrentDownloads int           `env:"HASHES_MAX_CONCURRENT_DOWNLOADS" envDefault:"1"`
	TaskRetention          time.Duration `env:"HASHES_TASK_RETENTION" envDefault:"168h"`

	LogLevel  string `env:"HASHES_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"HASHES_LOG_FORMAT" envDefault:"console"`
}

// Load reads an optional .env file from the working directory, then the
// environment. Variables already set win over the file.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return Parse()
}

// Parse reads the environment only.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.resolvePaths(); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) resolvePaths() error {
	if c.DataDir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return fmt.Errorf("locate config dir: %w (set HASHES_DATA_DIR)", err)
		}
		c.DataDir = filepath.Join(base, appDirName)
	}
	if c.PreferencesPath == "" {
		c.PreferencesPath = filepath.Join(c.DataDir, filestore.DefaultFileName)
	}
	if c.AlgorithmsPath == "" {
		c.AlgorithmsPath = filepath.Join(c.DataDir, app.AlgorithmsFileName)
	}
	if c.DBPath == "" {
		c.DBPath = filepath.Join(c.DataDir, "tasks.db")
	}
	return nil
}

func (c Config) Validate() error {
	switch strings.ToLower(c.KeyStorage) {
	case KeyStorageFile, KeyStorageKeyring:
	default:
		return fmt.Errorf("HASHES_KEY_STORAGE: unknown backend %q", c.KeyStorage)
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("HASHES_LOG_FORMAT: unknown format %q", c.LogFormat)
	}
	if c.Workers < 1 {
		return fmt.Errorf("HASHES_WORKERS must be at least 1, got %d", c.Workers)
	}
	if c.MaxConcurrentDownloads < 1 {
		return fmt.Errorf("HASHES_MAX_CONCURRENT_DOWNLOADS must be at least 1, got %d", c.MaxConcurrentDownloads)
	}
	return nil
}
