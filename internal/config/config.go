// internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full application configuration tree. It is populated from
// config.yaml plus WEBPILOT_-prefixed environment variables via viper.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Browser  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	LLM      LLMConfig      `mapstructure:"llm" yaml:"llm"`
	Executor ExecutorConfig `mapstructure:"executor" yaml:"executor"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// ServerConfig configures the HTTP surface and its admission limits.
type ServerConfig struct {
	ListenAddr      string        `mapstructure:"listen_addr" yaml:"listen_addr"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	// RateLimit is the sustained /interact requests-per-second admission
	// rate; RateBurst is the burst allowance.
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst" yaml:"rate_burst"`
}

// BrowserConfig holds settings for the headless browser instances.
type BrowserConfig struct {
	Headless bool `mapstructure:"headless" yaml:"headless"`
	// MaxSessions caps concurrently open browser contexts. Requests beyond
	// the cap are rejected, not queued.
	MaxSessions    int           `mapstructure:"max_sessions" yaml:"max_sessions"`
	ViewportWidth  int           `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight int           `mapstructure:"viewport_height" yaml:"viewport_height"`
	Locale         string        `mapstructure:"locale" yaml:"locale"`
	UserAgent      string        `mapstructure:"user_agent" yaml:"user_agent"`
	NavTimeout     time.Duration `mapstructure:"nav_timeout" yaml:"nav_timeout"`
	QuietWait      time.Duration `mapstructure:"quiet_wait" yaml:"quiet_wait"`
	Args           []string      `mapstructure:"args" yaml:"args"`
}

// LLMConfig selects and configures the command interpreter backend.
type LLMConfig struct {
	// Provider is "gemini" (Google GenAI SDK) or "openai" (any
	// OpenAI-compatible chat-completions endpoint).
	Provider    string        `mapstructure:"provider" yaml:"provider"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"-"`
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	Temperature float32       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
}

// ExecutorConfig tunes the action dispatch loop.
type ExecutorConfig struct {
	// VisibilityTimeout bounds element-visibility waits before interaction.
	VisibilityTimeout time.Duration `mapstructure:"visibility_timeout" yaml:"visibility_timeout"`
	// SettleDelay is the fixed pause between successful steps.
	SettleDelay time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	// FeedTimeout bounds the wait for the feed container in post actions.
	FeedTimeout time.Duration `mapstructure:"feed_timeout" yaml:"feed_timeout"`
	// PostSettle is the pause after scrolling a post into view.
	PostSettle time.Duration `mapstructure:"post_settle" yaml:"post_settle"`
	// ClickSettle is the pause between clicking a like control and taking
	// the after snapshot.
	ClickSettle time.Duration `mapstructure:"click_settle" yaml:"click_settle"`
}

// Provider name constants, to avoid magic strings at call sites.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// NewDefaultConfig returns a Config with production defaults applied.
func NewDefaultConfig() *Config {
	return &Config{
		Logger: LoggerConfig{
			Level:       "info",
			Format:      "console",
			ServiceName: "webpilot",
			MaxSize:     50,
			MaxBackups:  3,
			MaxAge:      14,
		},
		Server: ServerConfig{
			ListenAddr:      ":8000",
			RequestTimeout:  5 * time.Minute,
			ShutdownTimeout: 30 * time.Second,
			RateLimit:       2,
			RateBurst:       5,
		},
		Browser: BrowserConfig{
			Headless:       true,
			MaxSessions:    4,
			ViewportWidth:  1366,
			ViewportHeight: 768,
			Locale:         "en-US",
			UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
			NavTimeout:     30 * time.Second,
			QuietWait:      10 * time.Second,
		},
		LLM: LLMConfig{
			Provider:    ProviderGemini,
			Model:       "gemini-2.0-flash",
			Temperature: 0.3,
			MaxTokens:   1000,
			APITimeout:  60 * time.Second,
		},
		Executor: ExecutorConfig{
			VisibilityTimeout: 10 * time.Second,
			SettleDelay:       1 * time.Second,
			FeedTimeout:       15 * time.Second,
			PostSettle:        2 * time.Second,
			ClickSettle:       3 * time.Second,
		},
	}
}

// Load reads the configuration from the given file (or the default search
// path when empty), layers environment overrides on top of the defaults, and
// validates the result.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("WEBPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults and env vars.
	}

	cfg := NewDefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints that viper cannot express.
func (c *Config) Validate() error {
	if c.Browser.MaxSessions <= 0 {
		return fmt.Errorf("browser.max_sessions must be a positive integer")
	}
	if c.Browser.ViewportWidth <= 0 || c.Browser.ViewportHeight <= 0 {
		return fmt.Errorf("browser viewport dimensions must be positive")
	}
	if c.Server.RateLimit <= 0 {
		return fmt.Errorf("server.rate_limit must be positive")
	}
	if c.Server.RateBurst <= 0 {
		return fmt.Errorf("server.rate_burst must be a positive integer")
	}
	switch c.LLM.Provider {
	case ProviderGemini, ProviderOpenAI:
	default:
		return fmt.Errorf("unknown llm.provider %q (supported: %s, %s)",
			c.LLM.Provider, ProviderGemini, ProviderOpenAI)
	}
	if c.Executor.VisibilityTimeout <= 0 {
		return fmt.Errorf("executor.visibility_timeout must be positive")
	}
	return nil
}
