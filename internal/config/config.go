package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const envPrefix = "AUTO_CLAIMER_"

// Config holds all configuration values.
type Config struct {
	// ConfigDir holds accounts, settings and the instance lock. Empty means
	// the per-user default.
	ConfigDir string

	// Browser driver
	DriverBinary       string
	DriverReadyTimeout time.Duration
	Headless           bool

	// Remote site
	Endpoint string

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Load reads configuration from environment variables.
func Load() Config {
	return Config{
		ConfigDir: getEnv("CONFIG_DIR", ""),

		DriverBinary:       getEnv("DRIVER", "chromedriver"),
		DriverReadyTimeout: parseDuration(getEnv("DRIVER_READY_TIMEOUT", ""), 10*time.Second),
		Headless:           parseBool(getEnv("HEADLESS", "false")),

		Endpoint: getEnv("ENDPOINT", "https://pixai.art"),

		LogFile:  getEnv("LOG_FILE", filepath.Join(os.TempDir(), "auto-claimer.log")),
		LogLevel: parseLogLevel(getEnv("LOG_LEVEL", "INFO")),
	}
}

// LoadDotEnv applies a .env file to the environment without overriding
// variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return nil
}

// ChromeArgs returns the browser flags implied by the configuration.
func (c Config) ChromeArgs() []string {
	if !c.Headless {
		return nil
	}
	return []string{"--headless=new", "--disable-gpu", "--window-size=1280,900"}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(envPrefix + key); val != "" {
		return val
	}
	return defaultVal
}

func parseBool(s string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(s))
	return err == nil && v
}

func parseDuration(s string, defaultVal time.Duration) time.Duration {
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
