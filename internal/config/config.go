package config

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"geocoding-enricher/internal/models"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. GEOCODER_GEOCODER_MAPBOX_KEY.
const EnvPrefix = "GEOCODER"

// Config holds the full application configuration.
type Config struct {
	ServerAddress string         `mapstructure:"server_address"`
	DBSource      string         `mapstructure:"db_source"`
	Log           LogConfig      `mapstructure:"log"`
	Geocoder      GeocoderConfig `mapstructure:"geocoder"`
	Pipeline      PipelineConfig `mapstructure:"pipeline"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// GeocoderConfig holds provider endpoints, field names and pacing.
type GeocoderConfig struct {
	NominatimURL        string  `mapstructure:"nominatim_url"`
	MapboxURL           string  `mapstructure:"mapbox_url"`
	MapboxKey           string  `mapstructure:"mapbox_key"`
	UseMapboxFallback   bool    `mapstructure:"use_mapbox_fallback"`
	StreetField         string  `mapstructure:"street_field"`
	CityField           string  `mapstructure:"city_field"`
	StateField          string  `mapstructure:"state_field"`
	ZipField            string  `mapstructure:"zip_field"`
	LatitudeField       string  `mapstructure:"latitude_field"`
	LongitudeField      string  `mapstructure:"longitude_field"`
	PostNominatimWaitMs int     `mapstructure:"post_nominatim_wait_ms"`
	PostMapboxWaitMs    int     `mapstructure:"post_mapbox_wait_ms"`
	HTTPTimeoutSecs     int     `mapstructure:"http_timeout_secs"`
	MaxRPS              float64 `mapstructure:"max_rps"`
}

// PipelineConfig tunes batch runs.
type PipelineConfig struct {
	FeedbackSize int `mapstructure:"feedback_size"`
	BatchSize    int `mapstructure:"batch_size"`
}

// Step attribute names used by saved transformations, keyed by the option they set.
var legacyGeocoderKeys = map[string][]string{
	"nominatim_url":       {"nominatimUrl"},
	"mapbox_url":          {"mapboxUrl"},
	"mapbox_key":          {"mapboxKey"},
	"use_mapbox_fallback": {"useMapBox", "useMapBoxFallbackIfPresent"},
	"street_field":        {"streetField"},
	"city_field":          {"cityField"},
	"state_field":         {"stateField"},
	"zip_field":           {"zipField"},
	"latitude_field":      {"latitudeField"},
	"longitude_field":     {"longitudeField"},
}

// LoadConfig reads configuration from path/config.yaml, path/.env and the environment.
// Both files are optional. Environment variables win over the file.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(filepath.Join(path, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: read .env")
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(path)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	// Old attribute names only fill in for keys that nothing else sets.
	for key, names := range legacyGeocoderKeys {
		for _, legacy := range names {
			if !v.InConfig("geocoder." + legacy) {
				continue
			}
			value := v.Get("geocoder." + legacy)
			if key == "use_mapbox_fallback" {
				flag, err := legacyFlag(value)
				if err != nil {
					return nil, eris.Wrapf(err, "config: geocoder.%s", legacy)
				}
				value = flag
			}
			v.SetDefault("geocoder."+key, value)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// legacyFlag reads a saved step boolean, which was stored as Y or N.
func legacyFlag(value any) (bool, error) {
	if s, ok := value.(string); ok {
		switch {
		case strings.EqualFold(strings.TrimSpace(s), "Y"):
			return true, nil
		case strings.EqualFold(strings.TrimSpace(s), "N"):
			return false, nil
		}
	}
	return cast.ToBoolE(value)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server_address", ":8080")
	v.SetDefault("db_source", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("geocoder.nominatim_url", "")
	v.SetDefault("geocoder.mapbox_url", "https://api.mapbox.com/geocoding/v5/mapbox.places")
	v.SetDefault("geocoder.mapbox_key", "")
	v.SetDefault("geocoder.use_mapbox_fallback", true)
	v.SetDefault("geocoder.street_field", "")
	v.SetDefault("geocoder.city_field", "")
	v.SetDefault("geocoder.state_field", "")
	v.SetDefault("geocoder.zip_field", "")
	v.SetDefault("geocoder.latitude_field", "latitude")
	v.SetDefault("geocoder.longitude_field", "longitude")
	v.SetDefault("geocoder.post_nominatim_wait_ms", 0)
	v.SetDefault("geocoder.post_mapbox_wait_ms", 0)
	v.SetDefault("geocoder.http_timeout_secs", 30)
	v.SetDefault("geocoder.max_rps", 0)
	v.SetDefault("pipeline.feedback_size", 1000)
	v.SetDefault("pipeline.batch_size", 500)
}

// Validate rejects values no run could use. Missing endpoints and field names are not errors;
// the geocoder logs and skips them.
func (c *Config) Validate() error {
	if c.Geocoder.PostNominatimWaitMs < 0 || c.Geocoder.PostMapboxWaitMs < 0 {
		return eris.New("config: wait durations must not be negative")
	}
	if c.Geocoder.HTTPTimeoutSecs <= 0 {
		return eris.Errorf("config: http_timeout_secs must be positive, got %d", c.Geocoder.HTTPTimeoutSecs)
	}
	if c.Geocoder.MaxRPS < 0 {
		return eris.Errorf("config: max_rps must not be negative, got %v", c.Geocoder.MaxRPS)
	}
	if c.Pipeline.BatchSize <= 0 {
		return eris.Errorf("config: pipeline.batch_size must be positive, got %d", c.Pipeline.BatchSize)
	}
	return nil
}

// FieldMapping converts the geocoder section into the options one run reads.
func (c *Config) FieldMapping() models.FieldMapping {
	g := c.Geocoder
	return models.FieldMapping{
		StreetField:       g.StreetField,
		CityField:         g.CityField,
		StateField:        g.StateField,
		ZipField:          g.ZipField,
		LatitudeField:     g.LatitudeField,
		LongitudeField:    g.LongitudeField,
		NominatimURL:      g.NominatimURL,
		MapboxURL:         g.MapboxURL,
		MapboxKey:         g.MapboxKey,
		UseMapboxFallback: g.UseMapboxFallback,
		PostNominatimWait: time.Duration(g.PostNominatimWaitMs) * time.Millisecond,
		PostMapboxWait:    time.Duration(g.PostMapboxWaitMs) * time.Millisecond,
	}
}

// HTTPTimeout is the per-request timeout shared by both providers.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.Geocoder.HTTPTimeoutSecs) * time.Second
}
