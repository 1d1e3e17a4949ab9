package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Log         LogConfig         `mapstructure:"log"`
	Pipeline    PipelineConfig    `mapstructure:"pipeline"`
	Tools       ToolsConfig       `mapstructure:"tools"`
	Database    DatabaseConfig    `mapstructure:"database"`
	NATS        NATSConfig        `mapstructure:"nats"`
	Valkey      ValkeyConfig      `mapstructure:"valkey"`
	ObjectStore ObjectStoreConfig `mapstructure:"objectstore"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry"`
	Server      ServerConfig      `mapstructure:"server"`
	Temporal    TemporalConfig    `mapstructure:"temporal"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type PipelineConfig struct {
	StagingRoot      string `mapstructure:"staging_root"`
	AssetName        string `mapstructure:"asset_name"`
	MeasurementGroup string `mapstructure:"measurement_group"`
	Radiometry       string `mapstructure:"radiometry"`
}

type ToolsConfig struct {
	Sardem        string `mapstructure:"sardem"`
	Sarsen        string `mapstructure:"sarsen"`
	DEMDataSource string `mapstructure:"dem_data_source"`
}

type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
}

type ValkeyConfig struct {
	Addr          string `mapstructure:"addr"`
	DEMTTLSeconds int    `mapstructure:"dem_ttl_seconds"`
}

type ObjectStoreConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	Secure    bool   `mapstructure:"secure"`
}

type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Job            string `mapstructure:"job"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	TempoAddr   string `mapstructure:"tempo_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

type ServerConfig struct {
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
	CatalogDir   string `mapstructure:"catalog_dir"`
}

type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

// flagKeys maps command-line flags onto configuration keys.
var flagKeys = map[string]string{
	"log_level":   "log.level",
	"log_format":  "log.format",
	"staging_dir": "pipeline.staging_root",
	"catalog_dir": "server.catalog_dir",
	"port":        "server.port",
}

// Load reads configuration from defaults, an optional config file, environment
// variables and, when flags is non-nil, the command-line flags listed in flagKeys.
func Load(service string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("pipeline.staging_root", "")
	v.SetDefault("pipeline.asset_name", "PRODUCT")
	v.SetDefault("pipeline.measurement_group", "IW/VV")
	v.SetDefault("pipeline.radiometry", "gamma_nearest")
	v.SetDefault("tools.sardem", "sardem")
	v.SetDefault("tools.sarsen", "sarsen")
	v.SetDefault("tools.dem_data_source", "COP")
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "sarpipe")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "sarpipe")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("nats.url", "")
	v.SetDefault("valkey.addr", "")
	v.SetDefault("valkey.dem_ttl_seconds", 7*24*3600)
	v.SetDefault("objectstore.endpoint", "")
	v.SetDefault("objectstore.access_key", "")
	v.SetDefault("objectstore.secret_key", "")
	v.SetDefault("objectstore.bucket", "sarpipe")
	v.SetDefault("objectstore.prefix", "runs")
	v.SetDefault("objectstore.secure", true)
	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.job", service)
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.tempo_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("server.catalog_dir", ".")
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "sarpipe-pipeline")

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	if flags != nil {
		if f := flags.Lookup("config"); f != nil && f.Value.String() != "" {
			v.SetConfigFile(f.Value.String())
		}
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && v.ConfigFileUsed() != "" {
			return nil, fmt.Errorf("read config %s: %w", v.ConfigFileUsed(), err)
		}
	}

	// Environment variables: SARPIPE_TOOLS_SARSEN → tools.sarsen
	v.SetEnvPrefix("SARPIPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
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

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Sprintf("log.format must be json or text, got %q", c.Log.Format))
	}
	if c.Tools.Sardem == "" {
		errs = append(errs, "tools.sardem is required")
	}
	if c.Tools.Sarsen == "" {
		errs = append(errs, "tools.sarsen is required")
	}
	if c.Tools.DEMDataSource == "" {
		errs = append(errs, "tools.dem_data_source is required")
	}
	if c.Database.Enabled {
		if c.Database.Host == "" {
			errs = append(errs, "database.host is required")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.User == "" {
			errs = append(errs, "database.user is required")
		}
		if c.Database.DBName == "" {
			errs = append(errs, "database.dbname is required")
		}
	}
	if c.ObjectStore.Endpoint != "" && c.ObjectStore.Bucket == "" {
		errs = append(errs, "objectstore.bucket is required when objectstore.endpoint is set")
	}
	if c.Valkey.Addr != "" && c.Valkey.DEMTTLSeconds <= 0 {
		errs = append(errs, "valkey.dem_ttl_seconds must be positive")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
