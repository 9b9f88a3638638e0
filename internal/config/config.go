package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/pinpoint/internal/retry"
)

// EnvPrefix is the prefix of environment overrides, e.g.
// PINPOINT_GITHUB_TOKEN sets github.token.
const EnvPrefix = "PINPOINT_"

// Config represents the application configuration
type Config struct {
	Server ServerConfig `koanf:"server"`
	GitHub GitHubConfig `koanf:"github"`
	LLM    LLMConfig    `koanf:"llm"`
	Search SearchConfig `koanf:"search"`
	Retry  RetryConfig  `koanf:"retry"`
	Log    LogConfig    `koanf:"log"`
}

type ServerConfig struct {
	Port         int           `koanf:"port"`
	APIPrefix    string        `koanf:"api_prefix"`
	CORSOrigins  []string      `koanf:"cors_origins"`
	FrontendHost string        `koanf:"frontend_host"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

// AllowedOrigins is the CORS allow list: configured origins plus the
// frontend host.
func (s ServerConfig) AllowedOrigins() []string {
	origins := make([]string, 0, len(s.CORSOrigins)+1)
	seen := make(map[string]bool)
	for _, o := range append(append([]string{}, s.CORSOrigins...), s.FrontendHost) {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "" || seen[o] {
			continue
		}
		seen[o] = true
		origins = append(origins, o)
	}
	return origins
}

type GitHubConfig struct {
	Token             string        `koanf:"token"`
	BaseURL           string        `koanf:"base_url"`
	Timeout           time.Duration `koanf:"timeout"`
	PerPage           int           `koanf:"per_page"`
	RequestsPerSecond float64       `koanf:"requests_per_second"`
}

type LLMConfig struct {
	Provider    string        `koanf:"provider"` // gemini, openai, ollama
	Model       string        `koanf:"model"`
	APIKey      string        `koanf:"api_key"`
	BaseURL     string        `koanf:"base_url"`
	Timeout     time.Duration `koanf:"timeout"`
	Temperature float64       `koanf:"temperature"`
}

type SearchConfig struct {
	MinQueryLength      int `koanf:"min_query_length"`
	QueryCount          int `koanf:"query_count"`
	MaxCommentsPerIssue int `koanf:"max_comments_per_issue"`
	MaxTotalComments    int `koanf:"max_total_comments"`
	MaxConcurrency      int `koanf:"max_concurrency"`
	MaxBodyChars        int `koanf:"max_body_chars"`
}

type RetryConfig struct {
	MaxRetries int           `koanf:"max_retries"`
	BaseDelay  time.Duration `koanf:"base_delay"`
	MaxDelay   time.Duration `koanf:"max_delay"`
}

// Policy turns the configured values into a retry policy, keeping the
// package defaults for anything left unset.
func (r RetryConfig) Policy(base retry.Config) retry.Config {
	if r.MaxRetries >= 0 {
		base.MaxRetries = r.MaxRetries
	}
	if r.BaseDelay > 0 {
		base.BaseDelay = r.BaseDelay
	}
	if r.MaxDelay > 0 {
		base.MaxDelay = r.MaxDelay
	}
	return base
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json or pretty
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"server.port":          8000,
		"server.api_prefix":    "/api/v1",
		"server.cors_origins":  []string{},
		"server.frontend_host": "http://localhost:5173",
		"server.read_timeout":  "30s",
		"server.write_timeout": "0s",

		"github.base_url":            "",
		"github.timeout":             "15s",
		"github.per_page":            10,
		"github.requests_per_second": 5.0,

		"llm.provider":    "gemini",
		"llm.model":       "gemini-2.5-flash-lite",
		"llm.timeout":     "60s",
		"llm.temperature": 0.2,

		"search.min_query_length":       30,
		"search.query_count":            3,
		"search.max_comments_per_issue": 5,
		"search.max_total_comments":     50,
		"search.max_concurrency":        8,
		"search.max_body_chars":         2000,

		"retry.max_retries": 2,
		"retry.base_delay":  "500ms",
		"retry.max_delay":   "5s",

		"log.level":  "info",
		"log.format": "pretty",
	}
}

// DefaultPaths are searched, in order, when no config path is given.
var DefaultPaths = []string{"./pinpoint.toml", "$HOME/.pinpoint.toml"}

// LoadConfig loads the configuration from defaults, an optional TOML file,
// a .env file and the environment, in increasing order of precedence.
func LoadConfig(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env: %w", err)
	}

	var k = koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("error loading defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	} else {
		for _, path := range DefaultPaths {
			path = os.ExpandEnv(path)
			if _, err := os.Stat(path); err == nil {
				if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
					return nil, fmt.Errorf("error loading config %s: %w", path, err)
				}
				break
			}
		}
	}

	// Well-known variables shared with other tools, overridden by the
	// prefixed ones below.
	if err := k.Load(confmap.Provider(wellKnownEnv(), "."), nil); err != nil {
		return nil, fmt.Errorf("error loading environment: %w", err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("error loading environment: %w", err)
	}

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	return &config, nil
}

// envKey maps PINPOINT_SEARCH_MAX_TOTAL_COMMENTS to search.max_total_comments:
// the first segment is the section, the rest is the key.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.Replace(s, "_", ".", 1)
}

func wellKnownEnv() map[string]interface{} {
	out := map[string]interface{}{}
	if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		out["github.token"] = v
	}
	for _, name := range []string{"GOOGLE_API_KEY", "GEMINI_API_KEY"} {
		if v := os.Getenv(name); v != "" {
			out["llm.api_key"] = v
			break
		}
	}
	return out
}

// InitConfig initializes a new configuration file
func InitConfig(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists at %s", configPath)
	}

	sampleConfig := `# Pinpoint Configuration

[server]
port = 8000
api_prefix = "/api/v1"
cors_origins = ["http://localhost:3000"]
frontend_host = "http://localhost:5173"

[github]
token = "your-github-token"
timeout = "15s"
per_page = 10

[llm]
provider = "gemini"
model = "gemini-2.5-flash-lite"
api_key = "your-gemini-api-key"
timeout = "60s"
temperature = 0.2

[search]
min_query_length = 30
query_count = 3
max_comments_per_issue = 5
max_total_comments = 50
max_concurrency = 8

[log]
level = "info"
format = "pretty"
`

	return os.WriteFile(configPath, []byte(sampleConfig), 0644)
}

// Validate validates the configuration and reports every problem found.
func Validate(config *Config) error {
	var errs []error

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server port %d is out of range", config.Server.Port))
	}
	if !strings.HasPrefix(config.Server.APIPrefix, "/") {
		errs = append(errs, fmt.Errorf("server api_prefix must start with /"))
	}

	if config.GitHub.PerPage <= 0 || config.GitHub.PerPage > 100 {
		errs = append(errs, fmt.Errorf("github per_page must be between 1 and 100"))
	}
	if config.GitHub.RequestsPerSecond <= 0 {
		errs = append(errs, fmt.Errorf("github requests_per_second must be positive"))
	}

	switch config.LLM.Provider {
	case "gemini", "openai":
		if config.LLM.APIKey == "" {
			errs = append(errs, fmt.Errorf("%s api_key is required", config.LLM.Provider))
		}
	case "ollama":
	default:
		errs = append(errs, fmt.Errorf("unsupported llm provider %q", config.LLM.Provider))
	}
	if config.LLM.Model == "" {
		errs = append(errs, fmt.Errorf("llm model is required"))
	}

	s := config.Search
	if s.MinQueryLength < 1 {
		errs = append(errs, fmt.Errorf("search min_query_length must be at least 1"))
	}
	if s.QueryCount < 1 {
		errs = append(errs, fmt.Errorf("search query_count must be at least 1"))
	}
	if s.MaxCommentsPerIssue < 1 {
		errs = append(errs, fmt.Errorf("search max_comments_per_issue must be at least 1"))
	}
	if s.MaxTotalComments < s.MaxCommentsPerIssue {
		errs = append(errs, fmt.Errorf("search max_total_comments must be at least max_comments_per_issue"))
	}
	if s.MaxConcurrency < 1 {
		errs = append(errs, fmt.Errorf("search max_concurrency must be at least 1"))
	}

	return errors.Join(errs...)
}
