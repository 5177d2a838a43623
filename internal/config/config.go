// Package config loads Tagmark configuration from command-line flags,
// environment variables and an optional .env file.
package config

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Version is the server version, set at build time with
// -ldflags "-X github.com/tagmarkapp/tagmark-server/internal/config.Version=...".
var Version = "dev"

// Store drivers.
const (
	DriverBadger = "badger"
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Config holds the application configuration.
type Config struct {
	App     AppConfig
	Logger  LoggerConfig
	Data    DataConfig
	Server  ServerConfig
	Tasks   TaskConfig
	Scraper ScraperConfig
	Inbox   InboxConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
	// PageSize is the default number of bookmarks per listing page.
	PageSize int
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
	// File enables rotated file output instead of stdout.
	File string
}

// DataConfig selects where and how bookmarks are persisted.
type DataConfig struct {
	Path   string
	Driver string
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Name          string
	Port          string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	IdleTimeout   time.Duration
	CORSOrigins   []string
	AdvertiseMDNS bool
	// RateLimitRPS is the per-client request rate. Zero disables limiting.
	RateLimitRPS   int
	RateLimitBurst int
}

// TaskConfig controls the deferred task workers.
type TaskConfig struct {
	Workers      int
	MaxAttempts  int
	PollInterval time.Duration
}

// ScraperConfig controls page title fetching for the new-bookmark form.
type ScraperConfig struct {
	Enabled bool
	Timeout time.Duration
	// HostRPS bounds requests per second to any single host.
	HostRPS int
}

// InboxConfig configures the import drop directory. Empty Path disables it.
type InboxConfig struct {
	Path string
}

// LoadConfig loads configuration from the process arguments.
func LoadConfig() (*Config, error) {
	return Load(os.Args[1:])
}

// Load resolves configuration with precedence:
// 1. Command-line flags in args.
// 2. Environment variables.
// 3. .env file.
// 4. Defaults.
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("tagmark", flag.ContinueOnError)

	env := fs.String("env", "", "Environment (development, staging, production)")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")
	logFile := fs.String("log-file", "", "Write logs to a rotated file")
	dataPath := fs.String("data-path", "", "Directory holding the bookmark database")
	driver := fs.String("store", "", "Storage driver (badger, sqlite, memory)")
	serverName := fs.String("server-name", "", "Name advertised for this server")
	port := fs.String("port", "", "Server port (default: 8080)")
	readTimeout := fs.String("read-timeout", "", "HTTP read timeout (default: 15s)")
	writeTimeout := fs.String("write-timeout", "", "HTTP write timeout (default: 15s)")
	idleTimeout := fs.String("idle-timeout", "", "HTTP idle timeout (default: 60s)")
	corsOrigins := fs.String("cors-origins", "", "Comma-separated allowed CORS origins (default: *)")
	advertiseMDNS := fs.String("advertise-mdns", "", "Advertise via mDNS/Zeroconf (default: false)")
	rateLimit := fs.String("rate-limit", "", "Requests per second per client, 0 disables (default: 20)")
	workers := fs.String("task-workers", "", "Deferred task workers (default: 2)")
	inboxPath := fs.String("inbox-path", "", "Directory watched for bookmark files to import")
	envFile := fs.String("env-file", ".env", "Path to .env file")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	_ = loadEnvFile(*envFile)

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
			PageSize:    getIntConfigValue("", "PAGE_SIZE", 50),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*logLevel, "LOG_LEVEL", "info"),
			File:  getConfigValue(*logFile, "LOG_FILE", ""),
		},
		Data: DataConfig{
			Path:   getConfigValue(*dataPath, "DATA_PATH", ""),
			Driver: strings.ToLower(getConfigValue(*driver, "STORE_DRIVER", DriverBadger)),
		},
		Server: ServerConfig{
			Name:           getConfigValue(*serverName, "SERVER_NAME", "Tagmark"),
			Port:           getConfigValue(*port, "SERVER_PORT", "8080"),
			CORSOrigins:    splitList(getConfigValue(*corsOrigins, "CORS_ORIGINS", "*")),
			AdvertiseMDNS:  getBoolConfigValue(*advertiseMDNS, "ADVERTISE_MDNS", false),
			RateLimitRPS:   getIntConfigValue(*rateLimit, "RATE_LIMIT_RPS", 20),
			RateLimitBurst: getIntConfigValue("", "RATE_LIMIT_BURST", 40),
		},
		Tasks: TaskConfig{
			Workers:     getIntConfigValue(*workers, "TASK_WORKERS", 2),
			MaxAttempts: getIntConfigValue("", "TASK_MAX_ATTEMPTS", 5),
		},
		Scraper: ScraperConfig{
			Enabled: getBoolConfigValue("", "SCRAPER_ENABLED", true),
			HostRPS: getIntConfigValue("", "SCRAPER_HOST_RPS", 2),
		},
		Inbox: InboxConfig{
			Path: getConfigValue(*inboxPath, "INBOX_PATH", ""),
		},
	}

	durations := []struct {
		dst      *time.Duration
		flag     string
		env      string
		fallback string
	}{
		{&cfg.Server.ReadTimeout, *readTimeout, "SERVER_READ_TIMEOUT", "15s"},
		{&cfg.Server.WriteTimeout, *writeTimeout, "SERVER_WRITE_TIMEOUT", "15s"},
		{&cfg.Server.IdleTimeout, *idleTimeout, "SERVER_IDLE_TIMEOUT", "60s"},
		{&cfg.Tasks.PollInterval, "", "TASK_POLL_INTERVAL", "5s"},
		{&cfg.Scraper.Timeout, "", "SCRAPER_TIMEOUT", "10s"},
	}
	for _, d := range durations {
		raw := getConfigValue(d.flag, d.env, d.fallback)
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", d.env, raw, err)
		}
		*d.dst = parsed
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that config values are present and consistent.
func (c *Config) Validate() error {
	switch c.App.Environment {
	case "development", "staging", "production":
	case "":
		return errors.New("ENV is required")
	default:
		return fmt.Errorf("invalid environment: %s (must be development, staging, or production)", c.App.Environment)
	}

	switch strings.ToLower(c.Logger.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	switch c.Data.Driver {
	case DriverBadger, DriverSQLite, DriverMemory:
	default:
		return fmt.Errorf("invalid store driver: %s (must be badger, sqlite, or memory)", c.Data.Driver)
	}

	if c.Data.Path == "" && c.Data.Driver != DriverMemory {
		return errors.New("data path cannot be empty after expansion")
	}

	if c.App.PageSize < 1 {
		return fmt.Errorf("page size must be positive, got %d", c.App.PageSize)
	}
	if c.Tasks.Workers < 1 {
		return fmt.Errorf("task workers must be at least 1, got %d", c.Tasks.Workers)
	}
	if c.Tasks.MaxAttempts < 1 {
		return fmt.Errorf("task max attempts must be at least 1, got %d", c.Tasks.MaxAttempts)
	}
	if c.Server.RateLimitRPS < 0 {
		return fmt.Errorf("rate limit cannot be negative, got %d", c.Server.RateLimitRPS)
	}

	return nil
}

// StorePath returns the database location for the configured driver.
func (c *Config) StorePath() string {
	switch c.Data.Driver {
	case DriverSQLite:
		return filepath.Join(c.Data.Path, "tagmark.db")
	case DriverBadger:
		return filepath.Join(c.Data.Path, "badger")
	default:
		return ""
	}
}

func (c *Config) expandPaths() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	if c.Data.Path, err = expandPath(c.Data.Path, filepath.Join(home, "Tagmark", "data")); err != nil {
		return fmt.Errorf("invalid data path: %w", err)
	}
	if c.Inbox.Path, err = expandPath(c.Inbox.Path, ""); err != nil {
		return fmt.Errorf("invalid inbox path: %w", err)
	}
	if c.Logger.File, err = expandPath(c.Logger.File, ""); err != nil {
		return fmt.Errorf("invalid log file: %w", err)
	}
	return nil
}

// expandPath expands ~ and makes path absolute. An empty path yields defaultPath.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}
	return filepath.Clean(abs), nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	return defaultValue
}

// getBoolConfigValue treats "true", "1" and "yes" (any case) as true.
func getBoolConfigValue(flagValue, envKey string, defaultValue bool) bool {
	raw := getConfigValue(flagValue, envKey, "")
	if raw == "" {
		return defaultValue
	}
	switch strings.ToLower(raw) {
	case "true", "1", "yes":
		return true
	default:
		return false
	}
}

// getIntConfigValue returns an int from flag, env var, or default.
// Unparseable values fall back to the default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	raw := getConfigValue(flagValue, envKey, "")
	if raw == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return defaultValue
	}
	return n
}

// loadEnvFile sets KEY=value pairs from path for keys not already in the
// environment. Blank lines and # comments are skipped.
func loadEnvFile(path string) error {
	f, err := os.Open(path) //#nosec G304 -- path comes from the operator
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("invalid format at line %d: %s", n, line)
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		if _, set := os.LookupEnv(key); !set {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}
	return sc.Err()
}
