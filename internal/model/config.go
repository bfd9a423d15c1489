package model

import (
	"math"
	"time"
)

// Config holds all runtime settings
type Config struct {
	LLM          LLMConfig         `yaml:"llm" mapstructure:"llm"`
	Search       SearchConfig      `yaml:"search" mapstructure:"search"`
	Agent        AgentConfig       `yaml:"agent" mapstructure:"agent"`
	Store        StoreConfig       `yaml:"store" mapstructure:"store"`
	Cache        CacheConfig       `yaml:"cache" mapstructure:"cache"`
	HTTP         HTTPConfig        `yaml:"http" mapstructure:"http"`
	RateLimiting RateLimitConfig   `yaml:"rate_limiting" mapstructure:"rate_limiting"`
	Credibility  CredibilityConfig `yaml:"credibility" mapstructure:"credibility"`
	Logging      LoggingConfig     `yaml:"logging" mapstructure:"logging"`
	Concurrency  ConcurrencyConfig `yaml:"concurrency" mapstructure:"concurrency"`
	Metrics      MetricsConfig     `yaml:"metrics" mapstructure:"metrics"`
}

// LLMConfig selects and configures the model backend
type LLMConfig struct {
	Provider    string        `yaml:"provider" mapstructure:"provider"` // openai, together, anthropic, ollama, gemini
	Model       string        `yaml:"model" mapstructure:"model"`
	APIKey      string        `yaml:"-" mapstructure:"api_key"`
	BaseURL     string        `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxTokens   int           `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64       `yaml:"temperature" mapstructure:"temperature"`
	TopLogProbs int           `yaml:"top_logprobs" mapstructure:"top_logprobs"`
	HTTPProxy   string        `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy  string        `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy     string        `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
}

// SearchConfig configures the evidence search backend
type SearchConfig struct {
	APIKey       string        `yaml:"-" mapstructure:"api_key"`
	EngineID     string        `yaml:"engine_id" mapstructure:"engine_id"`
	Endpoint     string        `yaml:"endpoint,omitempty" mapstructure:"endpoint"`
	NumResults   int           `yaml:"num_results" mapstructure:"num_results"`
	Timeout      time.Duration `yaml:"timeout" mapstructure:"timeout"`
	RetryBackoff time.Duration `yaml:"retry_backoff" mapstructure:"retry_backoff"`
	Workers      int           `yaml:"workers" mapstructure:"workers"` // Concurrent per-result processing
}

// AgentConfig bounds the reasoning loop
type AgentConfig struct {
	MaxTurns            int           `yaml:"max_turns" mapstructure:"max_turns"`
	CallTimeout         time.Duration `yaml:"call_timeout" mapstructure:"call_timeout"`
	RetryBackoff        time.Duration `yaml:"retry_backoff" mapstructure:"retry_backoff"`
	VerdictRepairTries  int           `yaml:"verdict_repair_tries" mapstructure:"verdict_repair_tries"`
	IncludePublishDates bool          `yaml:"include_publish_dates" mapstructure:"include_publish_dates"`
}

// StoreConfig locates the database
type StoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// CacheConfig controls cached search results
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir       string        `yaml:"dir" mapstructure:"dir"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	SearchTTL time.Duration `yaml:"search_ttl" mapstructure:"search_ttl"`
}

// HTTPConfig is shared by every outbound HTTP client
type HTTPConfig struct {
	ConnectTimeout time.Duration `yaml:"connect_timeout" mapstructure:"connect_timeout"`
	ReadTimeout    time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	Timeout        time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent      string        `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	MaxRedirects   int           `yaml:"max_redirects" mapstructure:"max_redirects"`
	RespectRobots  bool          `yaml:"respect_robots" mapstructure:"respect_robots"`
	HTTPProxy      string        `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy     string        `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy        string        `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
}

// RateLimitConfig limits outbound requests per host
type RateLimitConfig struct {
	RequestsPerSecond float64    `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int        `yaml:"burst" mapstructure:"burst"`
	Hosts             []HostRate `yaml:"hosts,omitempty" mapstructure:"hosts"` // Per-host overrides
}

// HostRate overrides the request rate for one host and its www. form
type HostRate struct {
	Host              string  `yaml:"host" mapstructure:"host"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int     `yaml:"burst,omitempty" mapstructure:"burst"`
}

// CredibilityConfig seeds credibility for newly seen domains. Only domains in
// the configured lists get a seed score; everything else starts unknown.
type CredibilityConfig struct {
	CacheTTL         time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
	PrimaryScore     float64       `yaml:"primary_score" mapstructure:"primary_score"`
	SecondaryScore   float64       `yaml:"secondary_score" mapstructure:"secondary_score"`
	PrimaryDomains   []string      `yaml:"primary_domains" mapstructure:"primary_domains"`
	SecondaryDomains []string      `yaml:"secondary_domains" mapstructure:"secondary_domains"`
}

// LoggingConfig controls the structured logger
type LoggingConfig struct {
	Level       string `yaml:"level" mapstructure:"level"`
	Development bool   `yaml:"development" mapstructure:"development"`
}

// ConcurrencyConfig sizes the batch worker pool
type ConcurrencyConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers"`
}

// MetricsConfig exposes Prometheus metrics
type MetricsConfig struct {
	Addr string `yaml:"addr,omitempty" mapstructure:"addr"`
}

// Validate rejects settings outside their domain
func (c Config) Validate() error {
	for name, v := range map[string]float64{
		"credibility.primary_score":   c.Credibility.PrimaryScore,
		"credibility.secondary_score": c.Credibility.SecondaryScore,
	} {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return Validationf("%s %v outside [0,1]", name, v)
		}
	}
	for _, h := range c.RateLimiting.Hosts {
		if h.Host == "" {
			return Validationf("rate_limiting.hosts entry without host")
		}
		if h.RequestsPerSecond <= 0 {
			return Validationf("rate_limiting.hosts %s: requests_per_second must be positive", h.Host)
		}
	}
	return nil
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() Config {
	return Config{
		LLM: LLMConfig{
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			Timeout:     60 * time.Second,
			MaxTokens:   1024,
			Temperature: 0.2,
			TopLogProbs: 5,
		},
		Search: SearchConfig{
			NumResults:   5,
			Timeout:      15 * time.Second,
			RetryBackoff: 500 * time.Millisecond,
			Workers:      4,
		},
		Agent: AgentConfig{
			MaxTurns:           8,
			CallTimeout:        90 * time.Second,
			RetryBackoff:       time.Second,
			VerdictRepairTries: 1,
		},
		Store: StoreConfig{
			Path: "veracity.db",
		},
		Cache: CacheConfig{
			Enabled:   true,
			Dir:       ".veracity-cache",
			MemoryTTL: 10 * time.Minute,
			SearchTTL: 6 * time.Hour,
		},
		HTTP: HTTPConfig{
			ConnectTimeout: 5 * time.Second,
			ReadTimeout:    10 * time.Second,
			Timeout:        20 * time.Second,
			UserAgent:      "Veracity/0.1 (+https://github.com/ppiankov/veracity)",
			MaxBodyBytes:   2_000_000,
			MaxRedirects:   5,
			RespectRobots:  true,
		},
		RateLimiting: RateLimitConfig{
			RequestsPerSecond: 2,
			Burst:             2,
		},
		Credibility: CredibilityConfig{
			CacheTTL:       time.Hour,
			PrimaryScore:   0.9,
			SecondaryScore: 0.7,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Concurrency: ConcurrencyConfig{
			Workers: 2,
		},
	}
}
