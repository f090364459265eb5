package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// DefaultPath is where Load looks when no --config flag is given.
const DefaultPath = "config/config.yaml"

// EnvPrefix prefixes every environment override, e.g. BEDTIME_LLM_MODEL.
const EnvPrefix = "BEDTIME"

// Config is the application configuration.
type Config struct {
	LLM    LLMConfig    `json:"llm" yaml:"llm" envconfig:"LLM"`
	Story  StoryConfig  `json:"story" yaml:"story" envconfig:"STORY"`
	Server ServerConfig `json:"server" yaml:"server" envconfig:"SERVER"`
	Log    LogConfig    `json:"log" yaml:"log" envconfig:"LOG"`
}

// LLMConfig selects and configures the text-completion provider.
type LLMConfig struct {
	Provider         string   `json:"provider,omitempty" yaml:"provider,omitempty" envconfig:"PROVIDER"`
	Model            string   `json:"model,omitempty" yaml:"model,omitempty" envconfig:"MODEL"`
	APIKey           string   `json:"api_key,omitempty" yaml:"api_key,omitempty" envconfig:"API_KEY"`
	BaseURL          string   `json:"base_url,omitempty" yaml:"base_url,omitempty" envconfig:"BASE_URL"`
	MaxRetries       int      `json:"max_retries" yaml:"max_retries" envconfig:"MAX_RETRIES"`
	Timeout          Duration `json:"timeout" yaml:"timeout" envconfig:"TIMEOUT"`
	StructuredOutput bool     `json:"structured_output" yaml:"structured_output" envconfig:"STRUCTURED_OUTPUT"`
}

// StoryConfig tunes the generation pipeline.
type StoryConfig struct {
	MaxRounds int `json:"max_rounds" yaml:"max_rounds" envconfig:"MAX_ROUNDS"`
	MaxTokens int `json:"max_tokens" yaml:"max_tokens" envconfig:"MAX_TOKENS"`
}

type ServerConfig struct {
	Addr           string   `json:"addr,omitempty" yaml:"addr,omitempty" envconfig:"ADDR"`
	RequestTimeout Duration `json:"request_timeout" yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT"`
	// MaxRuns caps the finished stories kept in memory; the oldest are dropped.
	MaxRuns int `json:"max_runs" yaml:"max_runs" envconfig:"MAX_RUNS"`
}

type LogConfig struct {
	Level    string `json:"level,omitempty" yaml:"level,omitempty" envconfig:"LEVEL"`
	Encoding string `json:"encoding,omitempty" yaml:"encoding,omitempty" envconfig:"ENCODING"`
	Output   string `json:"output,omitempty" yaml:"output,omitempty" envconfig:"OUTPUT"`
}

// Duration is a time.Duration written as "90s" in files and env vars.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(v)
	return nil
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LLM: LLMConfig{
			Provider:         "openai",
			Model:            "gpt-4o-mini",
			MaxRetries:       2,
			Timeout:          Duration(120 * time.Second),
			StructuredOutput: true,
		},
		Story: StoryConfig{
			MaxRounds: 2,
			MaxTokens: 3000,
		},
		Server: ServerConfig{
			Addr:           ":8080",
			RequestTimeout: Duration(180 * time.Second),
			MaxRuns:        500,
		},
		Log: LogConfig{
			Level:    "info",
			Encoding: "console",
			Output:   "stderr",
		},
	}
}

// Load builds the configuration from defaults, an optional .env file, an
// optional JSON or YAML config file and BEDTIME_* environment variables, in
// increasing order of precedence. A missing file at DefaultPath is ignored.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	if err := loadFile(path, &cfg); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".json":
		err = json.Unmarshal(data, cfg)
	default:
		return fmt.Errorf("config %s: unsupported format (use .json, .yaml or .yml)", path)
	}
	if err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Providers lists the accepted llm.provider values.
var Providers = []string{"openai", "deepseek", "ollama", "mock"}

// Validate checks the values Load cannot default.
func (c Config) Validate() error {
	known := false
	for _, p := range Providers {
		if c.LLM.Provider == p {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("llm provider %q not supported (one of %s)", c.LLM.Provider, strings.Join(Providers, ", "))
	}
	if c.LLM.Provider != "mock" && c.LLM.Model == "" {
		return errors.New("llm.model is required")
	}
	if c.LLM.MaxRetries < 0 {
		return errors.New("llm.max_retries must be >= 0")
	}
	if c.Story.MaxRounds < 0 {
		return errors.New("story.max_rounds must be >= 0")
	}
	if c.Server.MaxRuns <= 0 {
		return errors.New("server.max_runs must be > 0")
	}
	if c.Story.MaxTokens <= 0 {
		return errors.New("story.max_tokens must be > 0")
	}
	return nil
}
