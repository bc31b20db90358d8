package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "CONTRACTS"

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	DB       DBConfig
	Storage  StorageConfig
	S3       S3Config
	Log      LogConfig
	Model    ModelConfig
	Pipeline PipelineConfig
	CORS     CORSConfig
	Tracing  TracingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Environment  string
}

// DBConfig holds record store settings. Driver is "postgres" or "memory".
type DBConfig struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxOpen  int
	MaxIdle  int
}

// DSN returns the PostgreSQL connection string.
func (d *DBConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// StorageConfig selects the blob store. Backend is "s3" or "local".
type StorageConfig struct {
	Backend           string
	LocalDir          string
	AllowedExtensions []string
	MaxUploadSizeMB   int64
}

// MaxUploadBytes returns the upload limit in bytes.
func (s *StorageConfig) MaxUploadBytes() int64 {
	return s.MaxUploadSizeMB * 1024 * 1024
}

// S3Config holds AWS S3 settings.
type S3Config struct {
	Region    string
	Bucket    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// LogConfig holds logging settings. Format is "json" or "console".
type LogConfig struct {
	Level  string
	Format string
}

// ModelProviderConfig holds settings for a single language model provider.
type ModelProviderConfig struct {
	Provider     string
	APIKey       string
	DefaultModel string
	TimeoutSecs  int
}

// ModelConfig holds the provider chain and output limits for analysis calls.
type ModelConfig struct {
	Primary              ModelProviderConfig
	Secondary            ModelProviderConfig
	Tertiary             ModelProviderConfig
	MaxOutputTokens      int
	FieldMaxOutputTokens int
	TimeoutSecs          int
}

// Chain returns the configured providers in fallback order.
func (m *ModelConfig) Chain() []ModelProviderConfig {
	var chain []ModelProviderConfig
	for _, p := range []ModelProviderConfig{m.Primary, m.Secondary, m.Tertiary} {
		if p.Provider != "" {
			chain = append(chain, p)
		}
	}
	return chain
}

// PipelineConfig holds analysis queue settings.
type PipelineConfig struct {
	Workers          int
	QueueSize        int
	SweepInterval    time.Duration
	SweepGrace       time.Duration
	RunTimeout       time.Duration
	MinFastTextChars int
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// TracingConfig holds OpenTelemetry settings. Exporter is "stdout" or "otlp".
type TracingConfig struct {
	Enabled     bool
	Exporter    string
	Endpoint    string
	SampleRatio float64
	ServiceName string
}

var defaults = map[string]interface{}{
	"server.port":          ":8000",
	"server.read_timeout":  "30s",
	"server.write_timeout": "60s",
	"server.environment":   "development",

	"db.driver":   "postgres",
	"db.host":     "localhost",
	"db.port":     5432,
	"db.user":     "contracts",
	"db.password": "contracts_secret",
	"db.name":     "contracts_db",
	"db.sslmode":  "disable",
	"db.max_open": 25,
	"db.max_idle": 10,

	"storage.backend":            "local",
	"storage.local_dir":          "./uploads",
	"storage.allowed_extensions": "pdf,docx",
	"storage.max_upload_size_mb": 50,

	"s3.region":     "us-east-1",
	"s3.bucket":     "contract-uploads",
	"s3.endpoint":   "",
	"s3.access_key": "",
	"s3.secret_key": "",

	"log.level":  "info",
	"log.format": "console",

	"model.primary.provider":        "claude",
	"model.primary.api_key":         "",
	"model.primary.default_model":   "claude-sonnet-4-20250514",
	"model.primary.timeout_secs":    120,
	"model.secondary.provider":      "",
	"model.secondary.api_key":       "",
	"model.secondary.default_model": "",
	"model.secondary.timeout_secs":  120,
	"model.tertiary.provider":       "",
	"model.tertiary.api_key":        "",
	"model.tertiary.default_model":  "",
	"model.tertiary.timeout_secs":   120,
	"model.max_output_tokens":       4096,
	"model.field_max_output_tokens": 2048,
	"model.timeout_secs":            120,

	"pipeline.workers":             4,
	"pipeline.queue_size":          64,
	"pipeline.sweep_interval_secs": 30,
	"pipeline.sweep_grace_secs":    60,
	"pipeline.run_timeout_secs":    300,
	"pipeline.min_fast_text_chars": 100,

	"cors.allowed_origins": "http://localhost:5173,http://localhost:3000",

	"tracing.enabled":      false,
	"tracing.exporter":     "stdout",
	"tracing.endpoint":     "localhost:4318",
	"tracing.sample_ratio": 1.0,
	"tracing.service_name": "contract-analyzer",
}

// Load reads configuration from an optional config.yaml (working directory or
// /etc/contractanalyzer) and environment variables with the CONTRACTS_ prefix.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/contractanalyzer")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	// Bind environment variables explicitly for nested keys
	for key, val := range defaults {
		v.SetDefault(key, val)
		_ = v.BindEnv(key, envPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")))
	}

	cfg := &Config{}

	// Hosting platforms set a PORT env var. Use it if CONTRACTS_SERVER_PORT is not explicitly set.
	serverPort := v.GetString("server.port")
	if port := os.Getenv("PORT"); port != "" && os.Getenv(envPrefix+"_SERVER_PORT") == "" {
		serverPort = ":" + port
	}

	cfg.Server = ServerConfig{
		Port:         serverPort,
		ReadTimeout:  v.GetDuration("server.read_timeout"),
		WriteTimeout: v.GetDuration("server.write_timeout"),
		Environment:  v.GetString("server.environment"),
	}
	cfg.DB = DBConfig{
		Driver:   v.GetString("db.driver"),
		Host:     v.GetString("db.host"),
		Port:     v.GetInt("db.port"),
		User:     v.GetString("db.user"),
		Password: v.GetString("db.password"),
		Name:     v.GetString("db.name"),
		SSLMode:  v.GetString("db.sslmode"),
		MaxOpen:  v.GetInt("db.max_open"),
		MaxIdle:  v.GetInt("db.max_idle"),
	}
	cfg.Storage = StorageConfig{
		Backend:           v.GetString("storage.backend"),
		LocalDir:          v.GetString("storage.local_dir"),
		AllowedExtensions: splitList(v.GetString("storage.allowed_extensions")),
		MaxUploadSizeMB:   v.GetInt64("storage.max_upload_size_mb"),
	}
	cfg.S3 = S3Config{
		Region:    v.GetString("s3.region"),
		Bucket:    v.GetString("s3.bucket"),
		Endpoint:  v.GetString("s3.endpoint"),
		AccessKey: v.GetString("s3.access_key"),
		SecretKey: v.GetString("s3.secret_key"),
	}
	cfg.Log = LogConfig{
		Level:  v.GetString("log.level"),
		Format: v.GetString("log.format"),
	}
	cfg.Model = ModelConfig{
		Primary:              providerConfig(v, "model.primary"),
		Secondary:            providerConfig(v, "model.secondary"),
		Tertiary:             providerConfig(v, "model.tertiary"),
		MaxOutputTokens:      v.GetInt("model.max_output_tokens"),
		FieldMaxOutputTokens: v.GetInt("model.field_max_output_tokens"),
		TimeoutSecs:          v.GetInt("model.timeout_secs"),
	}
	cfg.Pipeline = PipelineConfig{
		Workers:          v.GetInt("pipeline.workers"),
		QueueSize:        v.GetInt("pipeline.queue_size"),
		SweepInterval:    time.Duration(v.GetInt("pipeline.sweep_interval_secs")) * time.Second,
		SweepGrace:       time.Duration(v.GetInt("pipeline.sweep_grace_secs")) * time.Second,
		RunTimeout:       time.Duration(v.GetInt("pipeline.run_timeout_secs")) * time.Second,
		MinFastTextChars: v.GetInt("pipeline.min_fast_text_chars"),
	}
	cfg.CORS = CORSConfig{
		AllowedOrigins: splitList(v.GetString("cors.allowed_origins")),
	}
	cfg.Tracing = TracingConfig{
		Enabled:     v.GetBool("tracing.enabled"),
		Exporter:    v.GetString("tracing.exporter"),
		Endpoint:    v.GetString("tracing.endpoint"),
		SampleRatio: v.GetFloat64("tracing.sample_ratio"),
		ServiceName: v.GetString("tracing.service_name"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func providerConfig(v *viper.Viper, prefix string) ModelProviderConfig {
	return ModelProviderConfig{
		Provider:     v.GetString(prefix + ".provider"),
		APIKey:       v.GetString(prefix + ".api_key"),
		DefaultModel: v.GetString(prefix + ".default_model"),
		TimeoutSecs:  v.GetInt(prefix + ".timeout_secs"),
	}
}

func (c *Config) validate() error {
	switch c.DB.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("invalid db.driver %q: must be postgres or memory", c.DB.Driver)
	}
	switch c.Storage.Backend {
	case "s3", "local":
	default:
		return fmt.Errorf("invalid storage.backend %q: must be s3 or local", c.Storage.Backend)
	}
	if len(c.Storage.AllowedExtensions) == 0 {
		return fmt.Errorf("storage.allowed_extensions must not be empty")
	}
	if c.Pipeline.Workers <= 0 || c.Pipeline.QueueSize <= 0 {
		return fmt.Errorf("pipeline.workers and pipeline.queue_size must be positive")
	}
	return nil
}

// splitList parses a comma-separated list, trimming blanks.
func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
