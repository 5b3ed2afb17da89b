// Package config loads process configuration from defaults, an
// optional YAML config file, and PAGELENS_* environment variables, in
// increasing precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pagelens/pagelens/internal/observability"
)

// Config is the full process configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	OCR        OCRConfig        `mapstructure:"ocr"`
	Engine     EngineConfig     `mapstructure:"engine"`
	Rasterizer RasterizerConfig `mapstructure:"rasterizer"`
	Dev        DevConfig        `mapstructure:"dev"`
}

// ServerConfig is the HTTP bind and policy configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// AllowedOrigins is the CORS origin pattern list. Default "*".
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	// RateLimitRPS throttles the OCR endpoint. Zero disables.
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// LoggingConfig selects log level and encoding profile.
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Profile string `mapstructure:"profile"`
}

// OCRConfig covers upload bounds, scratch space, and prompt defaults.
type OCRConfig struct {
	// DefaultPrompt overrides the built-in default prompt when set.
	DefaultPrompt string `mapstructure:"default_prompt"`

	// MaxImageMB bounds upload size in megabytes.
	MaxImageMB float64 `mapstructure:"max_image_mb"`

	// RunsDir is the scratch root for per-job workspaces.
	RunsDir string `mapstructure:"runs_dir"`

	// ModeOverridesFile optionally merges a YAML mode table at startup.
	ModeOverridesFile string `mapstructure:"mode_overrides_file"`
}

// EngineConfig configures the inference sidecar collaborator.
type EngineConfig struct {
	// Endpoint is the sidecar base URL.
	Endpoint string `mapstructure:"endpoint"`

	// ModelDir overrides the sidecar's model directory.
	ModelDir string `mapstructure:"model_dir"`

	// AttnImpl is the attention-implementation hint passed through
	// opaquely to the loader.
	AttnImpl string `mapstructure:"attn_impl"`

	LoadTimeout time.Duration `mapstructure:"load_timeout"`
}

// RasterizerConfig configures PDF page rendering.
type RasterizerConfig struct {
	// Command is the external renderer binary.
	Command string `mapstructure:"command"`

	// Scale is the page magnification factor.
	Scale float64 `mapstructure:"scale"`
}

// DevConfig holds local-development toggles.
type DevConfig struct {
	// Reload re-reads the config file on change while running.
	Reload bool `mapstructure:"reload"`
}

// Load reads configuration. configFile may be empty; then only
// defaults and environment apply.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.allowed_origins", "*")
	v.SetDefault("server.rate_limit_rps", 0.0)
	v.SetDefault("server.rate_limit_burst", 4)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "STRUCTURED")
	v.SetDefault("ocr.default_prompt", "")
	v.SetDefault("ocr.max_image_mb", 15.0)
	v.SetDefault("ocr.runs_dir", "runs")
	v.SetDefault("ocr.mode_overrides_file", "")
	v.SetDefault("engine.endpoint", "http://127.0.0.1:8501")
	v.SetDefault("engine.model_dir", "")
	v.SetDefault("engine.attn_impl", "flash_attention_2")
	v.SetDefault("engine.load_timeout", 10*time.Minute)
	v.SetDefault("rasterizer.command", "pdftoppm")
	v.SetDefault("rasterizer.scale", 2.0)
	v.SetDefault("dev.reload", false)

	v.SetEnvPrefix("PAGELENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if cfg.OCR.MaxImageMB <= 0 {
		return nil, fmt.Errorf("ocr.max_image_mb must be positive, got %v", cfg.OCR.MaxImageMB)
	}

	if cfg.Dev.Reload && configFile != "" {
		watchConfig(v)
	}

	return &cfg, nil
}

// MaxUploadBytes returns the configured upload bound in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.OCR.MaxImageMB * 1024 * 1024)
}

// watchConfig re-reads the config file when it changes on disk. Only
// log level and similar soft settings take effect without a restart;
// the reload exists for local development loops.
func watchConfig(v *viper.Viper) {
	v.OnConfigChange(func(e fsnotify.Event) {
		observability.ServerLogger.Info("Config file changed",
			zap.String("file", e.Name),
			zap.String("op", e.Op.String()))
	})
	v.WatchConfig()
	observability.ServerLogger.Info("Config hot-reload enabled")
}
