package pdfquiz

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the runtime configuration shared by the binaries
type Config struct {
	Server struct {
		Port          string   `yaml:"port"`
		SessionSecret string   `yaml:"session_secret"`
		SessionTTL    string   `yaml:"session_ttl"`
		Origins       []string `yaml:"allowed_origins"`
	} `yaml:"server"`
	LLM struct {
		BaseURL        string `yaml:"base_url"`
		Model          string `yaml:"model"`
		Referer        string `yaml:"referer"`
		Title          string `yaml:"title"`
		Timeout        string `yaml:"timeout"`
		NumQuestions   int    `yaml:"num_questions"`
		MaxSourceChars int    `yaml:"max_source_chars"`
	} `yaml:"llm"`
	Quiz struct {
		DefaultMinutes int `yaml:"default_minutes"`
		MaxUploadMB    int `yaml:"max_upload_mb"`
	} `yaml:"quiz"`
	Log struct {
		Mode    string `yaml:"mode"`
		Verbose bool   `yaml:"verbose"`
		LLMDir  string `yaml:"llm_dir"`
	} `yaml:"log"`

	// APIKey only ever comes from the environment.
	APIKey string `yaml:"-"`
}

// LoadConfig reads .env (if present), then the YAML file at path (if any),
// then environment overrides, then fills defaults. It does not validate.
func LoadConfig(path string) (Config, error) {
	cfg := Config{}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("failed to load .env: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			VerboseLog("Config file %s not found, using defaults", path)
		case err != nil:
			return cfg, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.APIKey = firstEnv("OPENROUTER_API_KEY", "OPENAI_API_KEY")
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("PDFQUIZ_SESSION_SECRET"); v != "" {
		c.Server.SessionSecret = v
	}
	if v := os.Getenv("PDFQUIZ_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("PDFQUIZ_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8180"
	}
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = DefaultBaseURL
	}
	if c.LLM.Model == "" {
		c.LLM.Model = DefaultModel
	}
	if c.LLM.Title == "" {
		c.LLM.Title = DefaultTitle
	}
	if c.LLM.NumQuestions <= 0 {
		c.LLM.NumQuestions = DefaultNumQuestions
	}
	if c.LLM.MaxSourceChars == 0 {
		c.LLM.MaxSourceChars = DefaultMaxSourceChars
	}
	if c.Quiz.DefaultMinutes < MinTimeLimit || c.Quiz.DefaultMinutes > MaxTimeLimit {
		c.Quiz.DefaultMinutes = DefaultTimeLimit
	}
	if c.Quiz.MaxUploadMB <= 0 {
		c.Quiz.MaxUploadMB = 20
	}
}

// Validate reports a missing API key as ConfigurationMissing
func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return newError(KindConfigurationMissing, nil, "OPENROUTER_API_KEY (or OPENAI_API_KEY) environment variable is required")
	}
	return nil
}

// LLMTimeout is the deadline for one generation call
func (c Config) LLMTimeout() time.Duration {
	return durationOr(c.LLM.Timeout, 5*time.Minute)
}

// SessionTTL is how long an idle browser session keeps its quiz
func (c Config) SessionTTL() time.Duration {
	return durationOr(c.Server.SessionTTL, 2*time.Hour)
}

// MaxUploadBytes is the upload size cap
func (c Config) MaxUploadBytes() int64 {
	return int64(c.Quiz.MaxUploadMB) << 20
}

// MakerConfig derives the generation client settings
func (c Config) MakerConfig() MakerConfig {
	return MakerConfig{
		APIKey:  c.APIKey,
		BaseURL: c.LLM.BaseURL,
		Model:   c.LLM.Model,
		Referer: c.LLM.Referer,
		Title:   c.LLM.Title,
	}
}

// GeneratorOptions derives the pipeline settings
func (c Config) GeneratorOptions() GeneratorOptions {
	return GeneratorOptions{
		NumQuestions:   c.LLM.NumQuestions,
		MaxSourceChars: c.LLM.MaxSourceChars,
		LLMLogDir:      c.Log.LLMDir,
		Timeout:        c.LLMTimeout(),
	}
}

// durationOr parses a duration string or returns the fallback if empty or invalid.
func durationOr(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	return fallback
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}
