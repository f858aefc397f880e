package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sashkaw/spatial-aez/internal/area"
	"github.com/sashkaw/spatial-aez/internal/export"
)

// Config holds the full application configuration.
type Config struct {
	Data    DataConfig    `yaml:"data" mapstructure:"data"`
	Extract ExtractConfig `yaml:"extract" mapstructure:"extract"`
	Fetch   FetchConfig   `yaml:"fetch" mapstructure:"fetch"`
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// DataConfig locates the input rasters, the boundary layer and the country
// vocabulary.
type DataConfig struct {
	Dir        string `yaml:"dir" mapstructure:"dir"`
	Shapefile  string `yaml:"shapefile" mapstructure:"shapefile"`
	NameField  string `yaml:"name_field" mapstructure:"name_field"`
	CodeField  string `yaml:"code_field" mapstructure:"code_field"`
	Vocabulary string `yaml:"vocabulary" mapstructure:"vocabulary"`

	// BoundariesURL is the ZIP archive the fetch command unpacks next to
	// Shapefile.
	BoundariesURL string `yaml:"boundaries_url" mapstructure:"boundaries_url"`
}

// FetchConfig tunes downloads of source data.
type FetchConfig struct {
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries" mapstructure:"max_retries"`
}

// ExtractConfig tunes the zonal pass and its outputs.
type ExtractConfig struct {
	OutputDir string   `yaml:"output_dir" mapstructure:"output_dir"`
	Workers   int      `yaml:"workers" mapstructure:"workers"` // 0 = NumCPU
	BandRows  int      `yaml:"band_rows" mapstructure:"band_rows"`
	Strict    bool     `yaml:"strict" mapstructure:"strict"`
	Precision int      `yaml:"precision" mapstructure:"precision"`
	AreaModel string   `yaml:"area_model" mapstructure:"area_model"`
	Units     string   `yaml:"units" mapstructure:"units"`
	Formats   []string `yaml:"formats" mapstructure:"formats"`
}

// StoreConfig configures the run history backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// MetricsConfig configures the Prometheus textfile output.
type MetricsConfig struct {
	Textfile string `yaml:"textfile" mapstructure:"textfile"`
}

// ServerConfig configures the read-only API server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("AEZ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("data.dir", "data")
	v.SetDefault("data.shapefile", "data/ne_10m_admin_0_countries/ne_10m_admin_0_countries.shp")
	v.SetDefault("data.name_field", "ADMIN")
	v.SetDefault("data.code_field", "SOV_A3")
	v.SetDefault("data.vocabulary", "configs/vocabulary.yaml")
	v.SetDefault("data.boundaries_url", "https://naciscdn.org/naturalearth/10m/cultural/ne_10m_admin_0_countries.zip")
	v.SetDefault("fetch.user_agent", "spatial-aez/1.0")
	v.SetDefault("fetch.timeout_secs", 3600)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("extract.output_dir", "results")
	v.SetDefault("extract.workers", 0)
	v.SetDefault("extract.band_rows", 256)
	v.SetDefault("extract.strict", true)
	v.SetDefault("extract.precision", export.DefaultPrecision)
	v.SetDefault("extract.area_model", "ellipsoid")
	v.SetDefault("extract.units", "km2")
	v.SetDefault("extract.formats", []string{"csv"})
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "aez.db")
	v.SetDefault("metrics.textfile", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})

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

// Validate checks the fields a command needs and reports every problem at
// once.
func (c *Config) Validate(mode string) error {
	var errs []string
	require := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, msg)
		}
	}

	switch mode {
	case "extract":
		require(c.Data.Dir != "", "data.dir is required")
		require(c.Data.Shapefile != "", "data.shapefile is required")
		require(c.Data.NameField != "", "data.name_field is required")
		require(c.Data.Vocabulary != "", "data.vocabulary is required")
		require(c.Extract.OutputDir != "", "extract.output_dir is required")
		require(c.Extract.Workers >= 0, "extract.workers must be >= 0")
		require(c.Extract.BandRows > 0, "extract.band_rows must be > 0")
		require(c.Extract.Precision >= 0 && c.Extract.Precision <= 10, "extract.precision must be between 0 and 10")
		if _, err := area.ParseModel(c.Extract.AreaModel); err != nil {
			errs = append(errs, "extract.area_model: "+err.Error())
		}
		if _, err := area.ParseUnit(c.Extract.Units); err != nil {
			errs = append(errs, "extract.units: "+err.Error())
		}
		if _, err := export.ParseFormats(c.Extract.Formats); err != nil {
			errs = append(errs, "extract.formats: "+err.Error())
		}
		errs = append(errs, c.storeErrors()...)
	case "vocab":
		require(c.Data.Shapefile != "", "data.shapefile is required")
		require(c.Data.NameField != "", "data.name_field is required")
		require(c.Data.Vocabulary != "", "data.vocabulary is required")
	case "datasets":
		require(c.Data.Dir != "", "data.dir is required")
	case "fetch":
		require(c.Data.Dir != "", "data.dir is required")
		require(c.Data.Shapefile != "", "data.shapefile is required")
		require(c.Data.BoundariesURL != "", "data.boundaries_url is required")
		require(c.Fetch.TimeoutSecs > 0, "fetch.timeout_secs must be > 0")
		require(c.Fetch.MaxRetries > 0, "fetch.max_retries must be > 0")
	case "runs":
		errs = append(errs, c.storeErrors()...)
	case "serve":
		require(c.Server.Port > 0, "server.port must be > 0")
		require(len(c.Server.CORSOrigins) > 0, "server.cors_origins must list at least one origin")
		errs = append(errs, c.storeErrors()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) storeErrors() []string {
	switch c.Store.Driver {
	case "sqlite":
		return nil
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return []string{"store.database_url is required for postgres"}
		}
		return nil
	default:
		return []string{"store.driver must be sqlite or postgres"}
	}
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
