// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// Resolver types understood by the resolver factory.
const (
	ResolverCatalog = "catalog"
	ResolverSpotify = "spotify"
	ResolverStatic  = "static"
)

// Audio output kinds.
const (
	OutputSpeaker = "speaker"
	OutputVirtual = "virtual"
)

// Config represents the application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Control   ControlConfig   `yaml:"control"`
	Playback  PlaybackConfig  `yaml:"playback"`
	Audio     AudioConfig     `yaml:"audio"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Resolvers ResolversConfig `yaml:"resolvers"`
	Spotify   SpotifyConfig   `yaml:"spotify"`
}

// ServerConfig represents server configuration.
type ServerConfig struct {
	Addr               string      `yaml:"addr" default:":8080"`
	ShutdownTimeoutSec int         `yaml:"shutdown_timeout_sec" default:"5" validate:"gte=1,lte=60"`
	Hooks              HooksConfig `yaml:"hooks"`
}

// HooksConfig lists shell commands run around the server lifecycle.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// ControlConfig represents control access configuration.
// An empty token leaves the mutating procedures open.
type ControlConfig struct {
	Token string `yaml:"token"`
}

// PlaybackConfig represents playback control configuration.
type PlaybackConfig struct {
	SkipIncrementSec int      `yaml:"skip_increment_sec" default:"5" validate:"gte=1,lte=60"`
	SampleIntervalMs int      `yaml:"sample_interval_ms" default:"1000" validate:"gte=50,lte=10000"`
	LoadTimeoutSec   int      `yaml:"load_timeout_sec" default:"30" validate:"gte=0,lte=600"`
	Autoplay         *bool    `yaml:"autoplay" default:"true"`
	InitialVolume    *float64 `yaml:"initial_volume" default:"1" validate:"omitempty,gte=0,lte=1"`
}

// AudioConfig represents audio output configuration.
type AudioConfig struct {
	Output        string `yaml:"output" default:"speaker" validate:"oneof=speaker virtual"`
	SampleRate    int    `yaml:"sample_rate" default:"44100" validate:"oneof=22050 44100 48000"`
	BufferMs      int    `yaml:"buffer_ms" default:"100" validate:"gte=10,lte=1000"`
	MaxDownloadMB int    `yaml:"max_download_mb" default:"64" validate:"gte=1,lte=1024"`
}

// CatalogConfig represents song catalog configuration.
type CatalogConfig struct {
	Path string `yaml:"path"` // Empty selects the XDG data directory
}

// ResolversConfig represents the track resolver chain.
type ResolversConfig struct {
	CacheSize   int              `yaml:"cache_size" default:"256" validate:"gte=0"`
	CacheTTLSec int              `yaml:"cache_ttl_sec" default:"600" validate:"gte=0"`
	Entries     []ResolverConfig `yaml:"entries" validate:"required,min=1,dive"`
}

// ResolverConfig represents a single resolver configuration.
type ResolverConfig struct {
	Type        string         `yaml:"type" validate:"required,oneof=catalog spotify static"`
	DisplayName string         `yaml:"display_name"`
	Settings    map[string]any `yaml:"settings"`
}

// SpotifyConfig represents Spotify API configuration.
// Credentials are required only when a spotify resolver is configured.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RefreshToken string `yaml:"refresh_token"`
	Market       string `yaml:"market" validate:"omitempty,len=2" default:"JP"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse builds a configuration from YAML bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Spotify.ClientSecret = v
	}
	if v := os.Getenv("SPOTIFY_REFRESH_TOKEN"); v != "" {
		c.Spotify.RefreshToken = v
	}
	if v := os.Getenv("PLAYDECK_CONTROL_TOKEN"); v != "" {
		c.Control.Token = v
	}
	if v := os.Getenv("PLAYDECK_CATALOG_PATH"); v != "" {
		c.Catalog.Path = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	if c.HasResolver(ResolverSpotify) {
		if c.Spotify.ClientID == "" || c.Spotify.ClientSecret == "" || c.Spotify.RefreshToken == "" {
			return errors.New("spotify resolver requires client_id, client_secret and refresh_token")
		}
	}

	return nil
}

// HasResolver reports whether a resolver of the given type is configured.
func (c *Config) HasResolver(typ string) bool {
	return lo.ContainsBy(c.Resolvers.Entries, func(r ResolverConfig) bool {
		return r.Type == typ
	})
}

// ShutdownTimeout returns the graceful shutdown bound.
func (s ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(s.ShutdownTimeoutSec) * time.Second
}

// SkipIncrement returns the skip step.
func (p PlaybackConfig) SkipIncrement() time.Duration {
	return time.Duration(p.SkipIncrementSec) * time.Second
}

// SampleInterval returns the progress sampling period.
func (p PlaybackConfig) SampleInterval() time.Duration {
	return time.Duration(p.SampleIntervalMs) * time.Millisecond
}

// LoadTimeout returns the bound for resolving and opening a track.
func (p PlaybackConfig) LoadTimeout() time.Duration {
	return time.Duration(p.LoadTimeoutSec) * time.Second
}

// AutoplayEnabled returns the autoplay flag, true when unset.
func (p PlaybackConfig) AutoplayEnabled() bool {
	return p.Autoplay == nil || *p.Autoplay
}

// Volume returns the initial volume, 1 when unset.
func (p PlaybackConfig) Volume() float64 {
	if p.InitialVolume == nil {
		return 1
	}
	return *p.InitialVolume
}

// MaxDownloadBytes returns the download limit in bytes.
func (a AudioConfig) MaxDownloadBytes() int64 {
	return int64(a.MaxDownloadMB) << 20
}

// CacheTTL returns the resolver cache lifetime.
func (r ResolversConfig) CacheTTL() time.Duration {
	return time.Duration(r.CacheTTLSec) * time.Second
}
