// Package config loads the service configuration from an optional YAML/JSON file
// and the process environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete service configuration. It is loaded once at startup
// and passed explicitly to the components that need it.
type Config struct {
	Server ServerConfig
	Auth   AuthConfig
	Render RenderConfig
	LLM    LLMConfig
	Log    LogConfig
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port           int
	AllowedOrigins []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
}

// AuthConfig configures client authentication for the browser extension.
type AuthConfig struct {
	// ExtensionSecret is the shared client secret in plain text.
	ExtensionSecret string
	// ExtensionSecretHash is a bcrypt hash of the client secret; it takes precedence.
	ExtensionSecretHash string
	JWT                 JWTConfig
}

// RenderConfig configures the document-generation pipeline and its toolchains.
type RenderConfig struct {
	Timeout          time.Duration
	Workers          int
	QueueTimeout     time.Duration
	WorkDir          string
	MaxArtifactBytes int64
	Compress         bool
	TemplateDir      string
	XelatexPath     string
	PandocPath       string
	GhostscriptPath  string
	ChromePath       string
}

// LLMConfig configures the Gemini client.
type LLMConfig struct {
	APIKey      string
	Model       string
	MaxAttempts int
	RetryDelay  time.Duration
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 120 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Auth: AuthConfig{
			JWT: JWTConfig{ExpirationHours: DefaultJWTExpirationHours},
		},
		Render: RenderConfig{
			Timeout:          30 * time.Second,
			QueueTimeout:     60 * time.Second,
			MaxArtifactBytes: 10 << 20,
		},
		LLM: LLMConfig{
			MaxAttempts: 3,
			RetryDelay:  time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// rawConfig mirrors the config file. Durations are strings ("30s").
type rawConfig struct {
	Server struct {
		Port           int      `yaml:"port"`
		AllowedOrigins []string `yaml:"allowed_origins"`
		ReadTimeout    string   `yaml:"read_timeout"`
		WriteTimeout   string   `yaml:"write_timeout"`
		IdleTimeout    string   `yaml:"idle_timeout"`
	} `yaml:"server"`
	Auth struct {
		ExtensionSecret     string `yaml:"extension_secret"`
		ExtensionSecretHash string `yaml:"extension_secret_hash"`
		JWTSecret           string `yaml:"jwt_secret"`
		JWTExpirationHours  int    `yaml:"jwt_expiration_hours"`
	} `yaml:"auth"`
	Render struct {
		Timeout          string `yaml:"timeout"`
		Workers          int    `yaml:"workers"`
		QueueTimeout     string `yaml:"queue_timeout"`
		WorkDir          string `yaml:"work_dir"`
		MaxArtifactBytes int64  `yaml:"max_artifact_bytes"`
		Compress         *bool  `yaml:"compress"`
		TemplateDir      string `yaml:"template_dir"`
		XelatexPath     string `yaml:"xelatex_path"`
		PandocPath       string `yaml:"pandoc_path"`
		GhostscriptPath  string `yaml:"ghostscript_path"`
		ChromePath       string `yaml:"chrome_path"`
	} `yaml:"render"`
	LLM struct {
		APIKey      string `yaml:"api_key"`
		Model       string `yaml:"model"`
		MaxAttempts int    `yaml:"max_attempts"`
		RetryDelay  string `yaml:"retry_delay"`
	} `yaml:"llm"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Load builds the configuration: defaults, then the file at path (if any),
// then environment variables, then validation.
func Load(path string) (*Config, error) {
	var cfg *Config
	if path != "" {
		fileCfg, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		cfg = fileCfg
	} else {
		d := Default()
		cfg = &d
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads a YAML (or JSON) config file on top of the defaults.
// ${VAR} references in the file are expanded from the environment.
func LoadFile(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg := Default()
	if err := cfg.merge(&raw); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// merge applies every non-zero file value.
func (c *Config) merge(raw *rawConfig) error {
	setInt(&c.Server.Port, raw.Server.Port)
	if len(raw.Server.AllowedOrigins) > 0 {
		c.Server.AllowedOrigins = raw.Server.AllowedOrigins
	}
	durations := []struct {
		key   string
		value string
		dst   *time.Duration
	}{
		{"server.read_timeout", raw.Server.ReadTimeout, &c.Server.ReadTimeout},
		{"server.write_timeout", raw.Server.WriteTimeout, &c.Server.WriteTimeout},
		{"server.idle_timeout", raw.Server.IdleTimeout, &c.Server.IdleTimeout},
		{"render.timeout", raw.Render.Timeout, &c.Render.Timeout},
		{"render.queue_timeout", raw.Render.QueueTimeout, &c.Render.QueueTimeout},
		{"llm.retry_delay", raw.LLM.RetryDelay, &c.LLM.RetryDelay},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("parse %s %q: %w", d.key, d.value, err)
		}
		*d.dst = parsed
	}

	setString(&c.Auth.ExtensionSecret, raw.Auth.ExtensionSecret)
	setString(&c.Auth.ExtensionSecretHash, raw.Auth.ExtensionSecretHash)
	setString(&c.Auth.JWT.Secret, raw.Auth.JWTSecret)
	setInt(&c.Auth.JWT.ExpirationHours, raw.Auth.JWTExpirationHours)

	setInt(&c.Render.Workers, raw.Render.Workers)
	setString(&c.Render.WorkDir, raw.Render.WorkDir)
	if raw.Render.MaxArtifactBytes != 0 {
		c.Render.MaxArtifactBytes = raw.Render.MaxArtifactBytes
	}
	if raw.Render.Compress != nil {
		c.Render.Compress = *raw.Render.Compress
	}
	setString(&c.Render.TemplateDir, raw.Render.TemplateDir)
	setString(&c.Render.XelatexPath, raw.Render.XelatexPath)
	setString(&c.Render.PandocPath, raw.Render.PandocPath)
	setString(&c.Render.GhostscriptPath, raw.Render.GhostscriptPath)
	setString(&c.Render.ChromePath, raw.Render.ChromePath)

	setString(&c.LLM.APIKey, raw.LLM.APIKey)
	setString(&c.LLM.Model, raw.LLM.Model)
	setInt(&c.LLM.MaxAttempts, raw.LLM.MaxAttempts)

	setString(&c.Log.Level, raw.Log.Level)
	setString(&c.Log.Format, raw.Log.Format)
	return nil
}

// applyEnv overrides values from environment variables.
func (c *Config) applyEnv() error {
	var errs []string
	envInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("invalid %s: %v", key, err))
				return
			}
			*dst = n
		}
	}
	envDuration := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("invalid %s: %v", key, err))
				return
			}
			*dst = d
		}
	}
	envBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("invalid %s: %v", key, err))
				return
			}
			*dst = b
		}
	}
	envString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	envInt("PORT", &c.Server.Port)
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		c.Server.AllowedOrigins = splitList(v)
	}

	envString("EXTENSION_SECRET", &c.Auth.ExtensionSecret)
	envString("EXTENSION_SECRET_HASH", &c.Auth.ExtensionSecretHash)
	envString("JWT_SECRET", &c.Auth.JWT.Secret)
	envString("JWT_SECRET_KEY", &c.Auth.JWT.Secret)
	envInt("JWT_EXPIRATION_HOURS", &c.Auth.JWT.ExpirationHours)

	envDuration("RENDER_TIMEOUT", &c.Render.Timeout)
	envInt("RENDER_WORKERS", &c.Render.Workers)
	envDuration("RENDER_QUEUE_TIMEOUT", &c.Render.QueueTimeout)
	envString("RENDER_WORKDIR", &c.Render.WorkDir)
	if v := os.Getenv("RENDER_MAX_ARTIFACT_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid RENDER_MAX_ARTIFACT_BYTES: %v", err))
		} else {
			c.Render.MaxArtifactBytes = n
		}
	}
	envBool("RENDER_COMPRESS", &c.Render.Compress)
	envString("RENDER_TEMPLATE_DIR", &c.Render.TemplateDir)
	envString("XELATEX_PATH", &c.Render.XelatexPath)
	envString("PANDOC_PATH", &c.Render.PandocPath)
	envString("GHOSTSCRIPT_PATH", &c.Render.GhostscriptPath)
	envString("CHROME_PATH", &c.Render.ChromePath)

	envString("GEMINI_API_KEY", &c.LLM.APIKey)
	envString("GEMINI_MODEL", &c.LLM.Model)
	envInt("LLM_MAX_ATTEMPTS", &c.LLM.MaxAttempts)
	envDuration("LLM_RETRY_DELAY", &c.LLM.RetryDelay)

	envString("LOG_LEVEL", &c.Log.Level)
	envString("LOG_FORMAT", &c.Log.Format)

	if len(errs) > 0 {
		return fmt.Errorf("config error: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Validate checks that the configuration has valid values. Authentication
// settings are checked separately by AuthConfig.Validate because only the
// server needs them.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config error: port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Render.Timeout <= 0 {
		return fmt.Errorf("config error: render timeout must be positive")
	}
	if c.Render.QueueTimeout <= 0 {
		return fmt.Errorf("config error: render queue timeout must be positive")
	}
	if c.Render.Workers < 0 {
		return fmt.Errorf("config error: render workers must be non-negative")
	}
	if c.Render.MaxArtifactBytes <= 0 {
		return fmt.Errorf("config error: max artifact bytes must be positive")
	}
	if c.Render.TemplateDir != "" {
		if _, err := os.Stat(c.Render.TemplateDir); os.IsNotExist(err) {
			return fmt.Errorf("config error: template directory not found: %s", c.Render.TemplateDir)
		}
	}
	if c.LLM.MaxAttempts < 1 {
		return fmt.Errorf("config error: LLM max attempts must be at least 1, got %d", c.LLM.MaxAttempts)
	}
	if c.LLM.RetryDelay < 0 {
		return fmt.Errorf("config error: LLM retry delay must be non-negative")
	}
	return c.Log.validate()
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func splitList(list string) []string {
	var out []string
	for _, item := range strings.Split(list, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
