package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the flowshell daemon.
type Config struct {
	// Control API
	BindAddr         string
	PortCandidates   []string
	PortAutoFallback bool
	RateLimitRPS     float64
	RateLimitBurst   int
	LogLevel         string
	LogFile          string

	// Engine
	Engine        string
	CDPAddress    string
	CDPPort       int
	LaunchBrowser bool
	ChromiumPath  string
	ProfileDir    string
	Headless      bool

	// Sessions
	SessionBackend   string
	SessionDir       string
	SessionDB        string
	SaveRetries      int
	SaveRetryDelay   time.Duration
	AutoSaveInterval time.Duration
	RestoreOnStart   bool

	// Startup
	LayoutFile string
	StartURL   string
	JournalDir string
	// NotifyURL receives a plain-text POST for session failures when set.
	NotifyURL string
}

// Load reads configuration from environment variables and an optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Config{
		BindAddr:         getEnvOrDefault("FLOW_BIND_ADDR", "127.0.0.1:8190"),
		PortCandidates:   getEnvListOrDefault("FLOW_PORT_CANDIDATES", []string{"127.0.0.1:8191", "127.0.0.1:8192", "127.0.0.1:8193"}),
		PortAutoFallback: getEnvBoolOrDefault("FLOW_PORT_AUTO_FALLBACK", true),
		RateLimitRPS:     getEnvFloatOrDefault("FLOW_RATE_LIMIT_RPS", 50),
		RateLimitBurst:   getEnvIntOrDefault("FLOW_RATE_LIMIT_BURST", 100),
		LogLevel:         strings.ToLower(getEnvOrDefault("FLOW_LOG_LEVEL", "info")),
		LogFile:          getEnvOrDefault("FLOW_LOG_FILE", "logs/flowshell.log"),

		Engine:        strings.ToLower(getEnvOrDefault("FLOW_ENGINE", "headless")),
		CDPAddress:    getEnvOrDefault("CHROMIUM_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:       getEnvIntOrDefault("CHROMIUM_CDP_PORT", 9220),
		LaunchBrowser: getEnvBoolOrDefault("FLOW_LAUNCH_BROWSER", false),
		ChromiumPath:  getEnvOrDefault("FLOW_CHROMIUM_PATH", ""),
		ProfileDir:    getEnvOrDefault("FLOW_PROFILE_DIR", "./profiles"),
		Headless:      getEnvBoolOrDefault("FLOW_HEADLESS", false),

		SessionBackend:   strings.ToLower(getEnvOrDefault("FLOW_SESSION_BACKEND", "file")),
		SessionDir:       getEnvOrDefault("FLOW_SESSION_DIR", "./sessions"),
		SessionDB:        getEnvOrDefault("FLOW_SESSION_DB", "./sessions.db"),
		SaveRetries:      getEnvIntOrDefault("FLOW_SAVE_RETRIES", 3),
		SaveRetryDelay:   getEnvDurationOrDefault("FLOW_SAVE_RETRY_DELAY", 200*time.Millisecond),
		AutoSaveInterval: getEnvDurationOrDefault("FLOW_AUTOSAVE_INTERVAL", 5*time.Minute),
		RestoreOnStart:   getEnvBoolOrDefault("FLOW_RESTORE_ON_START", false),

		LayoutFile: getEnvOrDefault("FLOW_LAYOUT_FILE", ""),
		StartURL:   getEnvOrDefault("FLOW_START_URL", "about:blank"),
		JournalDir: getEnvOrDefault("FLOW_JOURNAL_DIR", "./journal"),
		NotifyURL:  getEnvOrDefault("FLOW_NOTIFY_URL", ""),
	}

	switch cfg.Engine {
	case "headless", "chromedp", "playwright":
	default:
		return nil, fmt.Errorf("FLOW_ENGINE: unknown engine %q", cfg.Engine)
	}
	switch cfg.SessionBackend {
	case "file", "sqlite":
	default:
		return nil, fmt.Errorf("FLOW_SESSION_BACKEND: unknown backend %q", cfg.SessionBackend)
	}
	if cfg.SaveRetries < 1 {
		cfg.SaveRetries = 1
	}
	if cfg.RateLimitBurst < 1 {
		cfg.RateLimitBurst = 1
	}
	return cfg, nil
}

// CDPURL returns the DevTools HTTP endpoint used by the chromedp engine.
func (c *Config) CDPURL() string {
	return "http://" + c.CDPAddress + ":" + strconv.Itoa(c.CDPPort)
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloatOrDefault(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

// getEnvListOrDefault splits a comma separated value, dropping blanks.
func getEnvListOrDefault(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
