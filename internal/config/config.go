package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	GitHub     GitHubConfig     `mapstructure:"github"`
	Indexing   IndexingConfig   `mapstructure:"indexing"`
	Log        LogConfig        `mapstructure:"log"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Security   SecurityConfig   `mapstructure:"security"`
}

type ServerConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	RootPath    string `mapstructure:"root_path"`   // prefix stripped by a reverse proxy
	Environment string `mapstructure:"environment"` // development, production
}

// IsProduction reports whether manual indexing must be refused.
func (s ServerConfig) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(s.Environment), "production")
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres
	Path            string        `mapstructure:"path"`   // sqlite file
	DSN             string        `mapstructure:"dsn"`    // postgres DSN, wins over the discrete fields
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type GitHubConfig struct {
	Token           string        `mapstructure:"token"`
	Host            string        `mapstructure:"host"`
	Topic           string        `mapstructure:"topic"`
	NoTopicSearch   bool          `mapstructure:"no_topic_search"`
	MaxRepositories int           `mapstructure:"max_repositories"` // 0 = unlimited
	SelfRepo        string        `mapstructure:"self_repo"`        // owner/name whose stars are published
	Timeout         time.Duration `mapstructure:"timeout"`
}

type IndexingConfig struct {
	Cooldown        time.Duration `mapstructure:"cooldown"`
	ScheduleEnabled bool          `mapstructure:"schedule_enabled"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // json, text
	Output     string `mapstructure:"output"` // stdout, file, both
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxAge     int    `mapstructure:"max_age"`  // days
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

type MonitoringConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

// TracingConfig OpenTelemetry exporter settings.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"` // OTLP gRPC, e.g. otel-collector:4317
	Insecure    bool    `mapstructure:"insecure"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
	ServiceName string  `mapstructure:"service_name"`
}

type SecurityConfig struct {
	CORS         CORSConfig         `mapstructure:"cors"`
	RateLimiting RateLimitingConfig `mapstructure:"rate_limiting"`
}

type CORSConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

type RateLimitingConfig struct {
	Enabled           bool                  `mapstructure:"enabled"`
	RequestsPerMinute int                   `mapstructure:"requests_per_minute"`
	Burst             int                   `mapstructure:"burst"`
	KeyHeader         string                `mapstructure:"key_header"`
	WhitelistIPs      []string              `mapstructure:"whitelist_ips"`
	Paths             []PathRateLimitConfig `mapstructure:"paths"`
}

// PathRateLimitConfig overrides the global limit for one path prefix.
type PathRateLimitConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	Prefix            string `mapstructure:"prefix"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute"`
	Burst             int    `mapstructure:"burst"`
}

// Load unmarshals the viper state on top of GetDefaultConfig and applies the
// legacy environment variables the deployment scripts still set.
func Load() (*Config, error) {
	cfg := GetDefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := applyLegacyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// BindEnv lets every config key be overridden from the environment, e.g.
// server.port by SERVER_PORT. Viper only consults the environment for keys it
// knows about, so the defaults are registered first.
func BindEnv() {
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	registerDefaults("", reflect.ValueOf(*GetDefaultConfig()))
}

func registerDefaults(prefix string, v reflect.Value) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}
		field := v.Field(i)
		if field.Kind() == reflect.Struct {
			registerDefaults(key, field)
			continue
		}
		viper.SetDefault(key, field.Interface())
	}
}

type lookupFunc func(key string) (string, bool)

func applyLegacyEnv(cfg *Config, lookup lookupFunc) error {
	if v, ok := lookup("GITHUB_TOKEN"); ok && v != "" {
		cfg.GitHub.Token = v
	}
	if v, ok := lookup("ENVIRONMENT"); ok && v != "" {
		cfg.Server.Environment = v
	}
	if v, ok := lookup("ROOT_PATH"); ok {
		cfg.Server.RootPath = strings.TrimRight(strings.TrimSpace(v), "/")
	}
	if v, ok := lookup("ENABLE_NO_TOPIC_SEARCH"); ok {
		cfg.GitHub.NoTopicSearch = parseFlag(v)
	}
	if v, ok := lookup("MAX_REPOSITORIES"); ok && strings.TrimSpace(v) != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n < 0 {
			return fmt.Errorf("MAX_REPOSITORIES must be a non-negative integer, got %q", v)
		}
		cfg.GitHub.MaxRepositories = n
	}
	if v, ok := lookup("DATABASE_URL"); ok && v != "" {
		if err := cfg.Database.applyURL(v); err != nil {
			return err
		}
	}
	return nil
}

func parseFlag(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes":
		return true
	}
	return false
}

// applyURL accepts sqlite:///relative/path, sqlite:////absolute/path and
// postgres(ql):// URLs.
func (d *DatabaseConfig) applyURL(raw string) error {
	switch {
	case strings.HasPrefix(raw, "sqlite:///"):
		d.Driver = "sqlite"
		d.Path = strings.TrimPrefix(raw, "sqlite:///")
	case strings.HasPrefix(raw, "postgres://"), strings.HasPrefix(raw, "postgresql://"):
		d.Driver = "postgres"
		d.DSN = raw
	default:
		return fmt.Errorf("unsupported DATABASE_URL scheme: %q", raw)
	}
	return nil
}

// GetDefaultConfig returns the configuration used when no file or env overrides it.
func GetDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8000,
			Environment: "development",
		},
		Database: DatabaseConfig{
			Driver:          "sqlite",
			Path:            "./data/hadiscover.db",
			Host:            "localhost",
			Port:            5432,
			User:            "postgres",
			Name:            "hadiscover",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: time.Hour,
		},
		GitHub: GitHubConfig{
			Host:     "github.com",
			Topic:    "ha-discover",
			SelfRepo: "DevSecNinja/hadiscover",
			Timeout:  30 * time.Second,
		},
		Indexing: IndexingConfig{
			Cooldown:        time.Hour,
			ScheduleEnabled: true,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			Output:     "stdout",
			FilePath:   "./logs/hadiscover.log",
			MaxSize:    100,
			MaxAge:     7,
			MaxBackups: 3,
			Compress:   true,
		},
		Monitoring: MonitoringConfig{
			Enabled: true,
			Tracing: TracingConfig{
				Enabled:     false,
				Endpoint:    "localhost:4317",
				Insecure:    true,
				SampleRatio: 0.1,
				ServiceName: "hadiscover",
			},
		},
		Security: SecurityConfig{
			CORS: CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders: []string{"*"},
			},
			RateLimiting: RateLimitingConfig{
				Enabled:           true,
				RequestsPerMinute: 120,
				Burst:             20,
			},
		},
	}
}
