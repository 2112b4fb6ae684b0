package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/franz/crate-digger/internal/catalog"
	"github.com/franz/crate-digger/internal/profile"
	"github.com/franz/crate-digger/internal/util"
)

const (
	providerFile    = "file"
	providerSpotify = "spotify"
)

// Config is the validated runtime configuration, assembled from flags,
// CDIG_* environment variables and the config file (in that precedence).
type Config struct {
	DB        string `mapstructure:"db" validate:"required"`
	EventsDir string `mapstructure:"events_dir"`
	Verbose   bool   `mapstructure:"verbose"`
	Quiet     bool   `mapstructure:"quiet"`

	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Profile   ProfileConfig   `mapstructure:"profile"`
	Playlists PlaylistsConfig `mapstructure:"playlists"`
	Spotify   SpotifyConfig   `mapstructure:"spotify"`
	Server    ServerConfig    `mapstructure:"server"`
}

type CatalogConfig struct {
	Tracks     string   `mapstructure:"tracks"`
	Genres     string   `mapstructure:"genres"`
	Attributes []string `mapstructure:"attributes" validate:"min=1,unique,dive,required"`
}

type ProfileConfig struct {
	DecayBase   float64       `mapstructure:"decay_base" validate:"gt=1"`
	DecayPeriod time.Duration `mapstructure:"decay_period" validate:"gt=0"`
}

type PlaylistsConfig struct {
	Provider string `mapstructure:"provider" validate:"oneof=file spotify"`
	Dir      string `mapstructure:"dir"`
}

type SpotifyConfig struct {
	ClientID          string        `mapstructure:"client_id"`
	ClientSecret      string        `mapstructure:"client_secret"`
	BaseURL           string        `mapstructure:"base_url" validate:"omitempty,url"`
	TokenURL          string        `mapstructure:"token_url" validate:"omitempty,url"`
	Timeout           time.Duration `mapstructure:"timeout" validate:"gte=0"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" validate:"gte=0"`
	Burst             int           `mapstructure:"burst" validate:"gte=0"`
	ArtworkTTL        time.Duration `mapstructure:"artwork_ttl" validate:"gte=0"`
}

type ServerConfig struct {
	Addr           string        `mapstructure:"addr" validate:"required,hostname_port"`
	Watch          bool          `mapstructure:"watch"`
	ReloadDebounce time.Duration `mapstructure:"reload_debounce" validate:"gte=0"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gte=0"`
}

// setDefaults registers the default value of every key
func setDefaults(v *viper.Viper) {
	v.SetDefault("db", "cdig.db")
	v.SetDefault("events_dir", "artifacts")

	v.SetDefault("catalog.tracks", "")
	v.SetDefault("catalog.genres", "")
	v.SetDefault("catalog.attributes", catalog.DefaultAttributes)

	v.SetDefault("profile.decay_base", profile.DefaultDecayBase)
	v.SetDefault("profile.decay_period", profile.DefaultDecayPeriod)

	v.SetDefault("playlists.provider", providerFile)
	v.SetDefault("playlists.dir", "playlists")

	v.SetDefault("spotify.client_id", "")
	v.SetDefault("spotify.client_secret", "")
	v.SetDefault("spotify.base_url", "")
	v.SetDefault("spotify.token_url", "")
	v.SetDefault("spotify.timeout", 15*time.Second)
	v.SetDefault("spotify.requests_per_second", 5.0)
	v.SetDefault("spotify.burst", 1)
	v.SetDefault("spotify.artwork_ttl", 30*24*time.Hour)

	v.SetDefault("server.addr", "127.0.0.1:8080")
	v.SetDefault("server.watch", false)
	v.SetDefault("server.reload_debounce", 2*time.Second)
	v.SetDefault("server.request_timeout", 30*time.Second)
}

// loadConfig decodes and validates the configuration held by v
func loadConfig(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", util.ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints and the cross-field rules
func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, len(verrs))
			for i, fe := range verrs {
				msgs[i] = fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag())
			}
			return fmt.Errorf("%w: %s", util.ErrInvalidConfig, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %w", util.ErrInvalidConfig, err)
	}

	if c.Playlists.Provider == providerFile && c.Playlists.Dir == "" {
		return fmt.Errorf("%w: playlists.dir is required for the file provider", util.ErrInvalidConfig)
	}
	if c.Playlists.Provider == providerSpotify && !c.Spotify.HasCredentials() {
		return fmt.Errorf("%w: spotify.client_id and spotify.client_secret are required for the spotify provider", util.ErrInvalidConfig)
	}
	return nil
}

// HasCredentials reports whether both client credentials are set
func (s SpotifyConfig) HasCredentials() bool {
	return s.ClientID != "" && s.ClientSecret != ""
}

// currentConfig loads the global viper configuration
func currentConfig() (*Config, error) {
	return loadConfig(viper.GetViper())
}
