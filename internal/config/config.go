package config

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Catalog CatalogConfig `yaml:"catalog" mapstructure:"catalog"`
	DEIMS   DEIMSConfig   `yaml:"deims" mapstructure:"deims"`
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// CatalogConfig points at the shapefile tree holding zones and sites.
type CatalogConfig struct {
	Root string `yaml:"root" mapstructure:"root"`
}

// DEIMSConfig configures the remote site registry.
type DEIMSConfig struct {
	BaseURL      string  `yaml:"base_url" mapstructure:"base_url"`
	GeoserverURL string  `yaml:"geoserver_url" mapstructure:"geoserver_url"`
	TimeoutSecs  int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec   float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	UserAgent    string  `yaml:"user_agent" mapstructure:"user_agent"`
	// BreakerThreshold consecutive registry outages open the breaker for
	// BreakerCooldownSecs.
	BreakerThreshold    int `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerCooldownSecs int `yaml:"breaker_cooldown_secs" mapstructure:"breaker_cooldown_secs"`
}

// StoreConfig configures the build ledger backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, file and environment.
func Load() (*Config, error) {
	// .env is optional; values already in the environment win.
	_ = godotenv.Load()

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LTSER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("catalog.root", "shapefiles")
	v.SetDefault("deims.base_url", "https://deims.org")
	v.SetDefault("deims.geoserver_url", "https://deims.org/geoserver/deims/ows")
	v.SetDefault("deims.timeout_secs", 0)
	v.SetDefault("deims.rate_per_sec", 2.0)
	v.SetDefault("deims.user_agent", "ltser-cli/1.0")
	v.SetDefault("deims.breaker_threshold", 5)
	v.SetDefault("deims.breaker_cooldown_secs", 30)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "ledger.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the fields required by the given command mode.
// Modes: "catalog", "provision", "serve".
func (c *Config) Validate(mode string) error {
	var problems []string

	if c.Catalog.Root == "" {
		problems = append(problems, "catalog.root is required")
	}

	switch c.Store.Driver {
	case "sqlite", "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for driver "+c.Store.Driver)
		}
	case "none", "":
	default:
		problems = append(problems, "store.driver must be one of sqlite, postgres, none")
	}

	switch mode {
	case "catalog":
	case "provision":
		problems = append(problems, c.validateDEIMS()...)
	case "serve":
		problems = append(problems, c.validateDEIMS()...)
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) validateDEIMS() []string {
	var problems []string
	if c.DEIMS.BaseURL == "" {
		problems = append(problems, "deims.base_url is required")
	}
	if c.DEIMS.GeoserverURL == "" {
		problems = append(problems, "deims.geoserver_url is required")
	}
	if c.DEIMS.TimeoutSecs < 0 {
		problems = append(problems, "deims.timeout_secs must be >= 0")
	}
	if c.DEIMS.BreakerThreshold < 0 || c.DEIMS.BreakerCooldownSecs < 0 {
		problems = append(problems, "deims.breaker_threshold and deims.breaker_cooldown_secs must be >= 0")
	}
	return problems
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
