package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Log       LogConfig
	HTTP      HTTPConfig
	Telemetry TelemetryConfig
	LLM       LLMConfig
	Assistant AssistantConfig
	Preview   PreviewConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds SQL Server connection settings
type DatabaseConfig struct {
	Host                   string
	Port                   int
	Instance               string
	User                   string
	Password               string
	DBName                 string
	Schema                 string
	Table                  string
	Auth                   string // sql or windows
	Encrypt                string // disable, false, true, strict
	TrustServerCertificate bool
	ConnectTimeout         time.Duration
	MaxOpenConns           int
	MaxIdleConns           int
	ConnMaxLifetime        int // in minutes
	ConnMaxIdleTime        int // in minutes
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns host:port
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// JWTConfig holds settings for validating bearer tokens on the API
type JWTConfig struct {
	Enabled  bool
	Secret   string
	Issuer   string
	TokenTTL time.Duration
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	MaxBodySize       int64
	RateLimitEnabled  bool
	RateLimitRequests int           // tokens per window for each client
	RateLimitWindow   time.Duration // refill window
	AskRateLimit      float64       // assistant requests per second for each client
	AskRateBurst      int
	CORSAllowOrigins  []string
	CORSAllowMethods  []string
	CORSAllowHeaders  []string
	TrustedProxies    []string
}

// TelemetryConfig holds OpenTelemetry and Prometheus configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to export traces
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	MetricsEnabled    bool    // Expose Prometheus metrics on /metrics
	// Database tracing options
	DBTraceEnabled    bool          // Enable database query tracing (otelgorm)
	DBLogFullSQL      bool          // Log full SQL statements (dev only)
	DBSlowQueryThresh time.Duration // Slow query threshold for warnings
	// Pyroscope continuous profiling
	ProfilingEnabled  bool
	ProfilingServer   string // e.g. "http://pyroscope:4040"
	ProfilingUser     string
	ProfilingPassword string
}

// LLMConfig holds the SQL generation backend settings
type LLMConfig struct {
	Provider     string // openai, ollama or none
	BaseURL      string
	Model        string
	APIKey       string
	Timeout      time.Duration
	MaxRetries   int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	Temperature  float64
	MaxTokens    int
}

// AssistantConfig holds question assistant settings
type AssistantConfig struct {
	MaxRows        int           // rows returned per answer
	TopLimit       int           // TOP enforced on generated SQL
	QueryTimeout   time.Duration // deadline for executing one answer
	SynonymsFile   string        // optional YAML overriding the built-in synonym map
	SchemaCacheTTL time.Duration // how long catalog text is reused in prompts
}

// PreviewConfig holds top-N preview settings
type PreviewConfig struct {
	DefaultLimit int
	Cache        string // none, memory or redis
	CacheTTL     time.Duration
}

// Load loads configuration from the default config file locations and the
// environment. See LoadFile.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile loads configuration from path (or config.toml in the usual
// locations when path is empty) and environment variables.
// Priority (highest to lowest):
// 1. Environment variables with SALESPLAN_ prefix (e.g., SALESPLAN_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/app")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("SALESPLAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:                   v.GetString("database.host"),
			Port:                   v.GetInt("database.port"),
			Instance:               v.GetString("database.instance"),
			User:                   v.GetString("database.user"),
			Password:               v.GetString("database.password"),
			DBName:                 v.GetString("database.dbname"),
			Schema:                 v.GetString("database.schema"),
			Table:                  v.GetString("database.table"),
			Auth:                   strings.ToLower(v.GetString("database.auth")),
			Encrypt:                strings.ToLower(v.GetString("database.encrypt")),
			TrustServerCertificate: v.GetBool("database.trust_server_certificate"),
			ConnectTimeout:         v.GetDuration("database.connect_timeout"),
			MaxOpenConns:           v.GetInt("database.max_open_conns"),
			MaxIdleConns:           v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime:        v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime:        v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Enabled:  v.GetBool("jwt.enabled"),
			Secret:   v.GetString("jwt.secret"),
			Issuer:   v.GetString("jwt.issuer"),
			TokenTTL: v.GetDuration("jwt.token_ttl"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:       v.GetDuration("http.read_timeout"),
			WriteTimeout:      v.GetDuration("http.write_timeout"),
			IdleTimeout:       v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:    v.GetInt("http.max_header_bytes"),
			MaxBodySize:       v.GetInt64("http.max_body_size"),
			RateLimitEnabled:  v.GetBool("http.rate_limit_enabled"),
			RateLimitRequests: v.GetInt("http.rate_limit_requests"),
			RateLimitWindow:   v.GetDuration("http.rate_limit_window"),
			AskRateLimit:      v.GetFloat64("http.ask_rate_limit"),
			AskRateBurst:      v.GetInt("http.ask_rate_burst"),
			CORSAllowOrigins:  v.GetStringSlice("http.cors_allow_origins"),
			CORSAllowMethods:  v.GetStringSlice("http.cors_allow_methods"),
			CORSAllowHeaders:  v.GetStringSlice("http.cors_allow_headers"),
			TrustedProxies:    v.GetStringSlice("http.trusted_proxies"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			MetricsEnabled:    v.GetBool("telemetry.metrics_enabled"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:      v.GetBool("telemetry.db_log_full_sql"),
			DBSlowQueryThresh: v.GetDuration("telemetry.db_slow_query_threshold"),
			ProfilingEnabled:  v.GetBool("telemetry.profiling_enabled"),
			ProfilingServer:   v.GetString("telemetry.profiling_server"),
			ProfilingUser:     v.GetString("telemetry.profiling_user"),
			ProfilingPassword: v.GetString("telemetry.profiling_password"),
		},
		LLM: LLMConfig{
			Provider:     strings.ToLower(v.GetString("llm.provider")),
			BaseURL:      v.GetString("llm.base_url"),
			Model:        v.GetString("llm.model"),
			APIKey:       v.GetString("llm.api_key"),
			Timeout:      v.GetDuration("llm.timeout"),
			MaxRetries:   v.GetInt("llm.max_retries"),
			RetryWaitMin: v.GetDuration("llm.retry_wait_min"),
			RetryWaitMax: v.GetDuration("llm.retry_wait_max"),
			Temperature:  v.GetFloat64("llm.temperature"),
			MaxTokens:    v.GetInt("llm.max_tokens"),
		},
		Assistant: AssistantConfig{
			MaxRows:        v.GetInt("assistant.max_rows"),
			TopLimit:       v.GetInt("assistant.top_limit"),
			QueryTimeout:   v.GetDuration("assistant.query_timeout"),
			SynonymsFile:   v.GetString("assistant.synonyms_file"),
			SchemaCacheTTL: v.GetDuration("assistant.schema_cache_ttl"),
		},
		Preview: PreviewConfig{
			DefaultLimit: v.GetInt("preview.default_limit"),
			Cache:        strings.ToLower(v.GetString("preview.cache")),
			CacheTTL:     v.GetDuration("preview.cache_ttl"),
		},
	}

	// Apply defaults for empty values
	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "salesplan-backend"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 1433
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "SalesPlanDB"
	}
	if cfg.Database.Schema == "" {
		cfg.Database.Schema = "dbo"
	}
	if cfg.Database.Table == "" {
		cfg.Database.Table = "SalesPlanTable"
	}
	if cfg.Database.Auth == "" {
		cfg.Database.Auth = "sql"
	}
	if cfg.Database.Auth == "sql" && cfg.Database.User == "" {
		cfg.Database.User = "sa"
	}
	if cfg.Database.Encrypt == "" {
		cfg.Database.Encrypt = "disable"
	}
	if cfg.Database.ConnectTimeout == 0 {
		cfg.Database.ConnectTimeout = 15 * time.Second
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 2
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = "salesplan-backend"
	}
	if cfg.JWT.TokenTTL == 0 {
		cfg.JWT.TokenTTL = 24 * time.Hour
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 60 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 1 << 20 // 1MB
	}
	if cfg.HTTP.RateLimitRequests == 0 {
		cfg.HTTP.RateLimitRequests = 100
	}
	if cfg.HTTP.RateLimitWindow == 0 {
		cfg.HTTP.RateLimitWindow = time.Minute
	}
	if cfg.HTTP.AskRateLimit == 0 {
		cfg.HTTP.AskRateLimit = 0.5
	}
	if cfg.HTTP.AskRateBurst == 0 {
		cfg.HTTP.AskRateBurst = 3
	}
	// An empty origin list allows no cross-origin requests until configured.
	if len(cfg.HTTP.CORSAllowMethods) == 0 {
		cfg.HTTP.CORSAllowMethods = []string{"GET", "POST", "OPTIONS"}
	}
	if len(cfg.HTTP.CORSAllowHeaders) == 0 {
		cfg.HTTP.CORSAllowHeaders = []string{"Content-Type", "Authorization", "X-Request-ID"}
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317" // Default gRPC endpoint
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "salesplan-backend"
	}
	if cfg.Telemetry.ProfilingServer == "" {
		cfg.Telemetry.ProfilingServer = "http://localhost:4040"
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 500 * time.Millisecond
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "none"
	}
	if cfg.LLM.BaseURL == "" {
		switch cfg.LLM.Provider {
		case "ollama":
			cfg.LLM.BaseURL = "http://localhost:11434"
		case "openai":
			cfg.LLM.BaseURL = "https://api.fireworks.ai/inference/v1"
		}
	}
	if cfg.LLM.Model == "" {
		switch cfg.LLM.Provider {
		case "ollama":
			cfg.LLM.Model = "llama3"
		case "openai":
			cfg.LLM.Model = "accounts/fireworks/models/llama-v3p1-8b-instruct"
		}
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = 30 * time.Second
	}
	if cfg.LLM.MaxRetries == 0 {
		cfg.LLM.MaxRetries = 2
	}
	if cfg.LLM.RetryWaitMin == 0 {
		cfg.LLM.RetryWaitMin = 500 * time.Millisecond
	}
	if cfg.LLM.RetryWaitMax == 0 {
		cfg.LLM.RetryWaitMax = 5 * time.Second
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 500
	}
	if cfg.Assistant.MaxRows == 0 {
		cfg.Assistant.MaxRows = 500
	}
	if cfg.Assistant.TopLimit == 0 {
		cfg.Assistant.TopLimit = 100
	}
	if cfg.Assistant.QueryTimeout == 0 {
		cfg.Assistant.QueryTimeout = 30 * time.Second
	}
	if cfg.Assistant.SchemaCacheTTL == 0 {
		cfg.Assistant.SchemaCacheTTL = 10 * time.Minute
	}
	if cfg.Preview.DefaultLimit == 0 {
		cfg.Preview.DefaultLimit = 1000
	}
	if cfg.Preview.Cache == "" {
		cfg.Preview.Cache = "memory"
	}
	if cfg.Preview.CacheTTL == 0 {
		cfg.Preview.CacheTTL = time.Minute
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}
	switch c.Database.Auth {
	case "sql", "windows":
	default:
		return fmt.Errorf("database.auth must be 'sql' or 'windows', got %q", c.Database.Auth)
	}
	switch c.Database.Encrypt {
	case "disable", "false", "true", "strict":
	default:
		return fmt.Errorf("database.encrypt must be one of disable, false, true, strict, got %q", c.Database.Encrypt)
	}
	if c.Preview.DefaultLimit < 0 || c.Preview.DefaultLimit > 1000 {
		return fmt.Errorf("preview.default_limit must be between 1 and 1000, got %d", c.Preview.DefaultLimit)
	}
	switch c.Preview.Cache {
	case "none", "memory", "redis":
	default:
		return fmt.Errorf("preview.cache must be none, memory or redis, got %q", c.Preview.Cache)
	}
	switch c.LLM.Provider {
	case "none", "openai", "ollama":
	default:
		return fmt.Errorf("llm.provider must be none, openai or ollama, got %q", c.LLM.Provider)
	}
	if c.Assistant.MaxRows < 0 {
		return fmt.Errorf("assistant.max_rows cannot be negative")
	}
	if c.JWT.Enabled && c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required when jwt.enabled is true")
	}

	// Production-specific validations
	if c.App.Env == "production" {
		if c.JWT.Enabled && len(c.JWT.Secret) < 32 {
			return fmt.Errorf("jwt.secret must be at least 32 characters in production")
		}
		if c.Database.Auth == "sql" && c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.Encrypt == "disable" {
			return fmt.Errorf("database.encrypt cannot be 'disable' in production")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production to prevent sensitive data exposure in traces")
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
}

// DSN returns the sqlserver:// connection string with properly escaped values.
// Windows authentication leaves the user out so the driver uses integrated
// security.
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "sqlserver",
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
	}
	if d.Auth == "sql" {
		u.User = url.UserPassword(d.User, d.Password)
	}
	if d.Instance != "" {
		u.Path = d.Instance
	}
	q := u.Query()
	q.Set("database", d.DBName)
	q.Set("encrypt", d.Encrypt)
	if d.TrustServerCertificate {
		q.Set("TrustServerCertificate", "true")
	}
	if d.ConnectTimeout > 0 {
		q.Set("connection timeout", strconv.Itoa(int(d.ConnectTimeout.Seconds())))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// RedactedDSN returns DSN with the password masked, for logs
func (d *DatabaseConfig) RedactedDSN() string {
	masked := *d
	if masked.Password != "" {
		masked.Password = "xxxxx"
	}
	return masked.DSN()
}
