package config

import (
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMinConns  int32  `envconfig:"WN_DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"WN_DB_MAX_CONNS" default:"8"`

	EmbeddingEndpoint   string `envconfig:"EMBEDDING_ENDPOINT" default:"http://127.0.0.1:8844/v1"`
	EmbeddingModel      string `envconfig:"EMBEDDING_MODEL" default:"text-embedding-3-small"`
	EmbeddingAPIKey     string `envconfig:"EMBEDDING_API_KEY" default:""`
	EmbeddingDimensions int    `envconfig:"EMBEDDING_DIMENSIONS" default:"1536"`
	EmbeddingBatchSize  int    `envconfig:"EMBEDDING_BATCH_SIZE" default:"100"`

	ArbitrationEndpoint  string `envconfig:"ARBITRATION_ENDPOINT" default:"http://127.0.0.1:8845/v1"`
	ArbitrationModel     string `envconfig:"ARBITRATION_MODEL" default:"gpt-4o-mini"`
	ArbitrationAPIKey    string `envconfig:"ARBITRATION_API_KEY" default:""`
	ArbitrationBatchSize int    `envconfig:"ARBITRATION_BATCH_SIZE" default:"20"`

	LookbackHours      int     `envconfig:"LOOKBACK_HOURS" default:"48"`
	AmbiguousThreshold float64 `envconfig:"AMBIGUOUS_THRESHOLD" default:"0.75"`
	DuplicateThreshold float64 `envconfig:"DUPLICATE_THRESHOLD" default:"0.90"`

	SourcePriority string `envconfig:"SOURCE_PRIORITY" default:"rss,html,twitter"`
	TrackingParams string `envconfig:"TRACKING_PARAMS" default:""`

	RetryMaxAttempts int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`

	ServeAddr          string `envconfig:"SERVE_ADDR" default:":8090"`
	APITokenHash       string `envconfig:"API_TOKEN_HASH" default:""`
	CORSAllowedOrigins string `envconfig:"CORS_ALLOWED_ORIGINS" default:""`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("WN_DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("WN_DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("WN_DB_MIN_CONNS (%d) cannot exceed WN_DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.EmbeddingDimensions < 1 {
		return fmt.Errorf("EMBEDDING_DIMENSIONS must be >= 1")
	}
	if c.EmbeddingBatchSize < 1 {
		return fmt.Errorf("EMBEDDING_BATCH_SIZE must be >= 1")
	}
	if c.ArbitrationBatchSize < 1 {
		return fmt.Errorf("ARBITRATION_BATCH_SIZE must be >= 1")
	}
	if c.LookbackHours < 1 {
		return fmt.Errorf("LOOKBACK_HOURS must be >= 1")
	}
	if c.AmbiguousThreshold < 0 || c.AmbiguousThreshold > 1 {
		return fmt.Errorf("AMBIGUOUS_THRESHOLD must be within [0, 1]")
	}
	if c.DuplicateThreshold < 0 || c.DuplicateThreshold > 1 {
		return fmt.Errorf("DUPLICATE_THRESHOLD must be within [0, 1]")
	}
	if c.AmbiguousThreshold > c.DuplicateThreshold {
		return fmt.Errorf("AMBIGUOUS_THRESHOLD (%g) cannot exceed DUPLICATE_THRESHOLD (%g)", c.AmbiguousThreshold, c.DuplicateThreshold)
	}
	if c.RetryMaxAttempts < 1 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be >= 1")
	}
	if len(c.SourcePriorityList()) == 0 {
		return fmt.Errorf("SOURCE_PRIORITY must name at least one channel")
	}
	return nil
}

// SourcePriorityList returns the configured channels, highest priority first,
// lowercased and deduplicated.
func (c *Config) SourcePriorityList() []string {
	if c == nil {
		return nil
	}

	parts := strings.Split(c.SourcePriority, ",")
	channels := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		channel := strings.ToLower(strings.TrimSpace(part))
		if channel == "" {
			continue
		}
		if _, exists := seen[channel]; exists {
			continue
		}
		seen[channel] = struct{}{}
		channels = append(channels, channel)
	}
	return channels
}

// TrackingParamsList returns extra tracking query keys to strip during URL
// canonicalization, on top of the built-in blocklist.
func (c *Config) TrackingParamsList() []string {
	if c == nil {
		return nil
	}

	parts := strings.Split(c.TrackingParams, ",")
	keys := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		key := strings.ToLower(strings.TrimSpace(part))
		if key == "" {
			continue
		}
		if _, exists := seen[key]; exists {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	return keys
}

// CORSAllowedOriginsList splits the comma-separated origin list.
func (c *Config) CORSAllowedOriginsList() []string {
	if c == nil {
		return nil
	}

	parts := strings.Split(c.CORSAllowedOrigins, ",")
	origins := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		origin := strings.TrimSpace(part)
		if origin == "" {
			continue
		}
		if _, exists := seen[origin]; exists {
			continue
		}
		seen[origin] = struct{}{}
		origins = append(origins, origin)
	}
	return origins
}
