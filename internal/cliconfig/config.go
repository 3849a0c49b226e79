// Package cliconfig loads the layered service configuration: defaults,
// then an optional config file, then MEMSTORE_-prefixed environment
// variables, then command-line flags, highest layer winning.
package cliconfig

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the single structured object every subsystem draws its
// tunables from.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Embedding   EmbeddingConfig   `mapstructure:"embedding"`
	Security    SecurityConfig    `mapstructure:"security"`
	Integration IntegrationConfig `mapstructure:"integration"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type EmbeddingConfig struct {
	ModelName string `mapstructure:"model_name"`
	Dimension int    `mapstructure:"dimension"`
}

type RateLimitConfig struct {
	PerMinute int  `mapstructure:"per_min"`
	PerHour   int  `mapstructure:"per_hr"`
	PerDay    int  `mapstructure:"per_day"`
	Burst     int  `mapstructure:"burst"`
	Enabled   bool `mapstructure:"enabled"`
}

type SecurityConfig struct {
	JWTSecret        string          `mapstructure:"jwt_secret"`
	JWTIssuer        string          `mapstructure:"jwt_issuer"`
	JWTAudience      string          `mapstructure:"jwt_audience"`
	JWTExpirySeconds int             `mapstructure:"jwt_expiry_seconds"`
	// APIKeys maps key (or bcrypt key hash) -> tenant id.
	APIKeys            map[string]string `mapstructure:"api_keys"`
	RateLimit          RateLimitConfig   `mapstructure:"rate_limit"`
	CORSAllowedOrigins []string          `mapstructure:"cors_allowed_origins"`
	MaxRequestSize     int64             `mapstructure:"max_request_size"`
}

type IntegrationConfig struct {
	SummarizationInterval time.Duration `mapstructure:"summarization_interval"`
	ImportanceInterval    time.Duration `mapstructure:"importance_interval"`
	RedundancyInterval    time.Duration `mapstructure:"redundancy_interval"`
	RelationshipInterval  time.Duration `mapstructure:"relationship_interval"`
	BatchSize             int           `mapstructure:"batch_size"`
	MinImportance         float64       `mapstructure:"min_importance"`
	SimilarityThreshold   float64       `mapstructure:"similarity_threshold"`
}

// JWTExpiry returns the configured bearer-token lifetime.
func (s SecurityConfig) JWTExpiry() time.Duration {
	return time.Duration(s.JWTExpirySeconds) * time.Second
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("embedding.model_name", "text-embedding-3-small")
	v.SetDefault("embedding.dimension", 1536)
	v.SetDefault("security.jwt_issuer", "memstore")
	v.SetDefault("security.jwt_audience", "memstore-clients")
	v.SetDefault("security.jwt_expiry_seconds", 3600)
	v.SetDefault("security.rate_limit.per_min", 60)
	v.SetDefault("security.rate_limit.per_hr", 1000)
	v.SetDefault("security.rate_limit.per_day", 10000)
	v.SetDefault("security.rate_limit.burst", 10)
	v.SetDefault("security.rate_limit.enabled", true)
	v.SetDefault("security.max_request_size", 1<<20)
	v.SetDefault("integration.summarization_interval", time.Hour)
	v.SetDefault("integration.importance_interval", 30*time.Minute)
	v.SetDefault("integration.redundancy_interval", 2*time.Hour)
	v.SetDefault("integration.relationship_interval", time.Hour)
	v.SetDefault("integration.batch_size", 100)
	v.SetDefault("integration.min_importance", 0.1)
	v.SetDefault("integration.similarity_threshold", 0.85)
}

// Load reads configuration from cfgFile (or the default search path when
// empty), the environment, and whatever flags the caller already bound
// into v.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath("/etc/memstore")
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName("memstore")
	}

	v.SetEnvPrefix("MEMSTORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing file on the default search path is fine; a named file
		// that cannot be read, or a malformed file anywhere, is not.
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if cfgFile != "" || !notFound {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate accumulates every configuration problem into one error so an
// operator fixes the whole file in one pass.
func (c *Config) Validate() error {
	var problems []string
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	if c.Database.URL == "" {
		problems = append(problems, "database.url is required")
	}
	if c.Security.JWTSecret == "" && len(c.Security.APIKeys) == 0 {
		problems = append(problems, "at least one of security.jwt_secret or security.api_keys is required")
	}
	if c.Security.JWTSecret != "" && len(c.Security.JWTSecret) < 32 {
		problems = append(problems, "security.jwt_secret must be at least 32 bytes")
	}
	if c.Embedding.Dimension <= 0 {
		problems = append(problems, "embedding.dimension must be positive")
	}
	if c.Integration.BatchSize <= 0 {
		problems = append(problems, "integration.batch_size must be positive")
	}
	if c.Integration.SimilarityThreshold < 0 || c.Integration.SimilarityThreshold > 1 {
		problems = append(problems, "integration.similarity_threshold must lie in [0,1]")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
