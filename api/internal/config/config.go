package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"invoice-extractor/api/internal/clarity"
	"invoice-extractor/api/internal/llm"
)

type Config struct {
	Port string `mapstructure:"port" yaml:"port"`

	Engine       string  `mapstructure:"engine" yaml:"engine"`
	GeminiAPIKey string  `mapstructure:"gemini_api_key" yaml:"gemini_api_key"`
	GeminiModel  string  `mapstructure:"gemini_model" yaml:"gemini_model"`
	OpenAIAPIKey string  `mapstructure:"openai_api_key" yaml:"openai_api_key"`
	OpenAIModel  string  `mapstructure:"openai_model" yaml:"openai_model"`
	Temperature  float64 `mapstructure:"temperature" yaml:"temperature"`
	Structured   bool    `mapstructure:"structured" yaml:"structured"`
	PromptsDir   string  `mapstructure:"prompts_dir" yaml:"prompts_dir"`

	InputBucket    string `mapstructure:"input_bucket" yaml:"input_bucket"`
	OutputBucket   string `mapstructure:"output_bucket" yaml:"output_bucket"`
	OutputPrefix   string `mapstructure:"output_prefix" yaml:"output_prefix"`
	ResponseBucket string `mapstructure:"response_bucket" yaml:"response_bucket"`
	SaveResponses  bool   `mapstructure:"save_responses" yaml:"save_responses"`

	ResizeWidth  int `mapstructure:"resize_width" yaml:"resize_width"`
	ResizeHeight int `mapstructure:"resize_height" yaml:"resize_height"`

	Clarity clarity.Thresholds `mapstructure:"clarity" yaml:"clarity"`
	Retry   llm.RetryPolicy    `mapstructure:"retry" yaml:"retry"`

	// Storage is "s3" or "dir". The dir backend keeps buckets as folders under StorageDir.
	Storage    string `mapstructure:"storage" yaml:"storage"`
	StorageDir string `mapstructure:"storage_dir" yaml:"storage_dir"`
	AWSRegion  string `mapstructure:"aws_region" yaml:"aws_region"`

	DatabaseURL string        `mapstructure:"database_url" yaml:"database_url"`
	CacheMaxAge time.Duration `mapstructure:"cache_max_age" yaml:"cache_max_age"`

	TelegramToken      string `mapstructure:"telegram_token" yaml:"telegram_token"`
	TelegramWebhookURL string `mapstructure:"telegram_webhook_url" yaml:"telegram_webhook_url"`

	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
}

func DefaultConfig() *Config {
	return &Config{
		Port:           "8000",
		Engine:         "gemini",
		GeminiModel:    "gemini-1.5-pro",
		OpenAIModel:    "gpt-4o-mini",
		Temperature:    0,
		InputBucket:    "flask-image-api-bucket1",
		OutputBucket:   "json-extracted-output",
		OutputPrefix:   "json_files/",
		ResponseBucket: "gemini-app-responses",
		ResizeWidth:    800,
		ResizeHeight:   800,
		Clarity:        clarity.DefaultThresholds(),
		Retry:          llm.DefaultRetryPolicy(),
		Storage:        "s3",
		StorageDir:     "data",
		AWSRegion:      "us-east-1",
		CacheMaxAge:    7 * 24 * time.Hour,
		LogLevel:       "info",
	}
}

// legacyKeys are environment names older deployments used for the Gemini key.
var legacyKeys = []string{"GEMINI_API_KEY", "GOOGLE_API_KEY", "Google_Api_Key", "Api_key1"}

// Manager handles loading and hot-reloading configuration.
type Manager struct {
	v         *viper.Viper
	mu        sync.RWMutex
	config    *Config
	callbacks []func(*Config)
}

// NewManager loads .env (if present), then cfgFile or config.yaml from the usual places,
// then INVOICE_* environment variables.
func NewManager(cfgFile string) (*Manager, error) {
	_ = godotenv.Load()

	cm := &Manager{v: viper.New(), callbacks: make([]func(*Config), 0)}
	if err := cm.initViper(cfgFile); err != nil {
		return nil, err
	}
	cfg, err := cm.load()
	if err != nil {
		return nil, err
	}
	cm.config = cfg
	return cm, nil
}

func (cm *Manager) initViper(cfgFile string) error {
	v := cm.v
	d := DefaultConfig()
	v.SetDefault("port", d.Port)
	v.SetDefault("engine", d.Engine)
	v.SetDefault("gemini_api_key", "")
	v.SetDefault("gemini_model", d.GeminiModel)
	v.SetDefault("openai_api_key", "")
	v.SetDefault("openai_model", d.OpenAIModel)
	v.SetDefault("temperature", d.Temperature)
	v.SetDefault("structured", d.Structured)
	v.SetDefault("prompts_dir", "")
	v.SetDefault("input_bucket", d.InputBucket)
	v.SetDefault("output_bucket", d.OutputBucket)
	v.SetDefault("output_prefix", d.OutputPrefix)
	v.SetDefault("response_bucket", d.ResponseBucket)
	v.SetDefault("save_responses", d.SaveResponses)
	v.SetDefault("resize_width", d.ResizeWidth)
	v.SetDefault("resize_height", d.ResizeHeight)
	v.SetDefault("clarity.min_width", d.Clarity.MinWidth)
	v.SetDefault("clarity.min_height", d.Clarity.MinHeight)
	v.SetDefault("clarity.min_brightness", d.Clarity.MinBrightness)
	v.SetDefault("retry.attempts", d.Retry.Attempts)
	v.SetDefault("retry.base_delay", d.Retry.BaseDelay)
	v.SetDefault("retry.max_jitter", d.Retry.MaxJitter)
	v.SetDefault("storage", d.Storage)
	v.SetDefault("storage_dir", d.StorageDir)
	v.SetDefault("aws_region", d.AWSRegion)
	v.SetDefault("database_url", "")
	v.SetDefault("cache_max_age", d.CacheMaxAge)
	v.SetDefault("telegram_token", "")
	v.SetDefault("telegram_webhook_url", "")
	v.SetDefault("log_level", d.LogLevel)

	// INVOICE_CLARITY_MIN_WIDTH -> clarity.min_width
	v.SetEnvPrefix("INVOICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.invoice-extractor")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

func (cm *Manager) load() (*Config, error) {
	var cfg Config
	if err := cm.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	applyFallbacks(&cfg)
	return &cfg, nil
}

// applyFallbacks fills unset values from the plain environment names the
// services were deployed with before the INVOICE_ prefix.
func applyFallbacks(cfg *Config) {
	if cfg.GeminiAPIKey == "" {
		for _, k := range legacyKeys {
			if v := strings.TrimSpace(os.Getenv(k)); v != "" {
				cfg.GeminiAPIKey = v
				break
			}
		}
	}
	if cfg.OpenAIAPIKey == "" {
		cfg.OpenAIAPIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	}
	if cfg.TelegramToken == "" {
		cfg.TelegramToken = strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN"))
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	}
	if p := strings.TrimSpace(os.Getenv("PORT")); p != "" && !envSet("INVOICE_PORT") {
		cfg.Port = p
	}
}

func envSet(k string) bool {
	_, ok := os.LookupEnv(k)
	return ok
}

// Get returns the current configuration (thread-safe).
func (cm *Manager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// ConfigFile returns the file the configuration was read from, if any.
func (cm *Manager) ConfigFile() string { return cm.v.ConfigFileUsed() }

// OnChange registers a callback for config changes.
func (cm *Manager) OnChange(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// WatchConfig enables hot-reloading of configuration. Invalid updates are ignored.
func (cm *Manager) WatchConfig() {
	cm.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := cm.load()
		if err != nil || cfg.Validate() != nil {
			return
		}

		cm.mu.Lock()
		cm.config = cfg
		callbacks := make([]func(*Config), len(cm.callbacks))
		copy(callbacks, cm.callbacks)
		cm.mu.Unlock()

		for _, fn := range callbacks {
			fn(cfg)
		}
	})
	cm.v.WatchConfig()
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.Engine) {
	case "gemini":
		if c.GeminiAPIKey == "" {
			errs = append(errs, errors.New("gemini_api_key is required for the gemini engine (or GOOGLE_API_KEY)"))
		}
	case "gpt", "openai":
		if c.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("openai_api_key is required for the gpt engine (or OPENAI_API_KEY)"))
		}
	default:
		errs = append(errs, fmt.Errorf("engine must be gemini or gpt, got %q", c.Engine))
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		errs = append(errs, fmt.Errorf("temperature must be in [0, 2], got %v", c.Temperature))
	}
	if c.ResizeWidth <= 0 || c.ResizeHeight <= 0 {
		errs = append(errs, fmt.Errorf("resize must be positive, got %dx%d", c.ResizeWidth, c.ResizeHeight))
	}
	if c.Retry.Attempts == 0 {
		errs = append(errs, errors.New("retry.attempts must be at least 1"))
	}
	switch c.Storage {
	case "s3":
	case "dir":
		if strings.TrimSpace(c.StorageDir) == "" {
			errs = append(errs, errors.New("storage_dir is required for the dir storage backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage must be s3 or dir, got %q", c.Storage))
	}
	if c.InputBucket == "" || c.OutputBucket == "" {
		errs = append(errs, errors.New("input_bucket and output_bucket are required"))
	}
	if c.CacheMaxAge < 0 {
		errs = append(errs, errors.New("cache_max_age must not be negative"))
	}
	return errors.Join(errs...)
}

// EngineName normalises the configured engine to the name llm.Engines uses.
func (c *Config) EngineName() string {
	if n := strings.ToLower(strings.TrimSpace(c.Engine)); n != "openai" {
		return n
	}
	return "gpt"
}
