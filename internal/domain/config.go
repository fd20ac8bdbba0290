package domain

import "time"

// Config is the root configuration, loaded through Viper.
type Config struct {
	Environment string         `mapstructure:"environment"`
	Server      ServerConfig   `mapstructure:"server"`
	Database    DatabaseConfig `mapstructure:"database"`
	Graph       GraphConfig    `mapstructure:"graph"`
	PubMed      PubMedConfig   `mapstructure:"pubmed"`
	Synthesis   SynthConfig    `mapstructure:"synthesis"`
	Cache       CacheConfig    `mapstructure:"cache"`
	Audit       AuditConfig    `mapstructure:"audit"`
	Pipeline    PipelineConfig `mapstructure:"pipeline"`
	Logging     LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DatabaseConfig configures the Postgres audit store.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// GraphConfig configures knowledge-graph access.
type GraphConfig struct {
	URI          string        `mapstructure:"uri"`
	Username     string        `mapstructure:"username"`
	Password     string        `mapstructure:"password"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// PubMedConfig configures the literature client.
type PubMedConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Email   string        `mapstructure:"email"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// SynthConfig configures the hypothesis synthesizer and scorer endpoints.
type SynthConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	Model          string        `mapstructure:"model"`
	Timeout        time.Duration `mapstructure:"timeout"`
	ScorerTimeout  time.Duration `mapstructure:"scorer_timeout"`
	ExtractTimeout time.Duration `mapstructure:"extract_timeout"`
}

// CacheConfig configures the Redis external-response cache.
type CacheConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	RedisURL    string        `mapstructure:"redis_url"`
	DefaultTTL  time.Duration `mapstructure:"default_ttl"`
	MaxRetries  int           `mapstructure:"max_retries"`
	PoolSize    int           `mapstructure:"pool_size"`
	PoolTimeout time.Duration `mapstructure:"pool_timeout"`
}

// AuditConfig configures the audit chain.
type AuditConfig struct {
	FallbackPath string `mapstructure:"fallback_path"`
}

// PipelineConfig carries orchestration limits and timeouts.
type PipelineConfig struct {
	StageTimeout   time.Duration `mapstructure:"stage_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	ResultCacheTTL time.Duration `mapstructure:"result_cache_ttl"`
	ResultCacheLen int           `mapstructure:"result_cache_len"`
}

// LoggingConfig configures logrus.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
