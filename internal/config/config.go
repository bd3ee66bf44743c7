package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr      string
	AuthToken string
}

// InvokeConfig holds the out-of-process invocation endpoint settings. Secret
// is the shared guard value checked in the request body.
type InvokeConfig struct {
	URL    string
	Secret string
}

// RunnerConfig holds scheduler runner loop settings.
type RunnerConfig struct {
	BaseInterval      time.Duration
	PenaltyCeiling    int
	PopulateLookahead time.Duration
}

// RetentionConfig controls pruning of completed task rows.
type RetentionConfig struct {
	MaxAge   time.Duration
	CronSpec string
}

// BarkConfig holds Bark notification settings.
type BarkConfig struct {
	URL     string
	Enabled bool
}

// Config holds all runtime configuration options for the daemon.
type Config struct {
	Server    ServerConfig
	Invoke    InvokeConfig
	Runner    RunnerConfig
	Retention RetentionConfig
	Bark      BarkConfig

	StateDir      string
	LogLevel      string
	ShutdownGrace time.Duration
	Mode          string // http, mcp or both
}

const (
	defaultAddr           = "0.0.0.0:7070"
	defaultLogLevel       = "info"
	defaultBaseInterval   = 10 * time.Second
	defaultPenaltyCeiling = 32
	defaultLookahead      = time.Minute
	defaultRetention      = 30 * 24 * time.Hour
	defaultRetentionSpec  = "0 4 * * *"
	defaultShutdownGrace  = 5 * time.Second
	defaultMode           = "http"
)

// getEnvString returns the environment variable value or default
func getEnvString(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

// getEnvInt returns the environment variable as int or default
func getEnvInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvBool returns the environment variable as bool or default
func getEnvBool(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		lower := strings.ToLower(val)
		return lower == "true" || lower == "1" || lower == "yes"
	}
	return defaultVal
}

// getEnvDuration returns the environment variable as duration or default
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

// Parse parses command line flags and environment variables into Config.
// Priority: CLI flags > Environment variables > .env file > defaults
func Parse() (*Config, error) {
	// Load .env file if exists (silent fail if not present)
	envFiles := []string{".env"}
	if configDir, err := os.UserConfigDir(); err == nil {
		envFiles = append(envFiles, filepath.Join(configDir, "admintask", ".env"))
	}
	_ = godotenv.Load(envFiles...)

	cfg := &Config{
		Server: ServerConfig{
			Addr:      getEnvString("ADMINTASK_ADDR", defaultAddr),
			AuthToken: getEnvString("ADMINTASK_AUTH_TOKEN", ""),
		},
		Invoke: InvokeConfig{
			URL:    getEnvString("ADMINTASK_INVOKE_URL", ""),
			Secret: getEnvString("ADMINTASK_INVOKE_SECRET", ""),
		},
		Runner: RunnerConfig{
			BaseInterval:      getEnvDuration("ADMINTASK_BASE_INTERVAL", defaultBaseInterval),
			PenaltyCeiling:    getEnvInt("ADMINTASK_PENALTY_CEILING", defaultPenaltyCeiling),
			PopulateLookahead: getEnvDuration("ADMINTASK_POPULATE_LOOKAHEAD", defaultLookahead),
		},
		Retention: RetentionConfig{
			MaxAge:   getEnvDuration("ADMINTASK_RETENTION_MAX_AGE", defaultRetention),
			CronSpec: getEnvString("ADMINTASK_RETENTION_CRON", defaultRetentionSpec),
		},
		Bark: BarkConfig{
			URL:     getEnvString("ADMINTASK_BARK_URL", ""),
			Enabled: getEnvBool("ADMINTASK_BARK_ENABLED", false),
		},
		StateDir:      getEnvString("ADMINTASK_STATE_DIR", ""),
		LogLevel:      getEnvString("ADMINTASK_LOG_LEVEL", defaultLogLevel),
		ShutdownGrace: getEnvDuration("ADMINTASK_SHUTDOWN_GRACE", defaultShutdownGrace),
		Mode:          getEnvString("ADMINTASK_MODE", defaultMode),
	}

	var addr, logLevel, stateDir, mode string
	var baseInterval, shutdownGrace time.Duration
	var penaltyCeiling int

	flag.StringVar(&addr, "addr", "", "HTTP listen address (overrides env)")
	flag.StringVar(&stateDir, "state-dir", "", "Directory to store the task database")
	flag.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.StringVar(&mode, "mode", "", "Serving mode: http, mcp or both")
	flag.DurationVar(&baseInterval, "base-interval", 0, "Scheduler runner base loop interval")
	flag.IntVar(&penaltyCeiling, "penalty-ceiling", 0, "Maximum exception-penalty multiplier")
	flag.DurationVar(&shutdownGrace, "shutdown-grace", 0, "Grace period when shutting down")

	flag.Parse()

	if addr != "" {
		cfg.Server.Addr = addr
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if stateDir != "" {
		cfg.StateDir = stateDir
	}
	if mode != "" {
		cfg.Mode = mode
	}
	if baseInterval > 0 {
		cfg.Runner.BaseInterval = baseInterval
	}
	if penaltyCeiling > 0 {
		cfg.Runner.PenaltyCeiling = penaltyCeiling
	}
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "shutdown-grace" {
			cfg.ShutdownGrace = shutdownGrace
		}
	})

	if cfg.StateDir == "" {
		dir, err := defaultStateDir()
		if err != nil {
			return nil, fmt.Errorf("resolve default state dir: %w", err)
		}
		cfg.StateDir = dir
	}
	if cfg.Runner.PenaltyCeiling < 1 {
		cfg.Runner.PenaltyCeiling = defaultPenaltyCeiling
	}
	switch cfg.Mode {
	case "http", "mcp", "both":
	default:
		return nil, fmt.Errorf("invalid mode %q, expected http, mcp or both", cfg.Mode)
	}

	return cfg, nil
}

func defaultStateDir() (string, error) {
	baseDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	path := filepath.Join(baseDir, "admintask")
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", err
	}
	return path, nil
}
