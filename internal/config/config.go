// Package config loads runtime settings from flags, environment and an
// optional config file.
package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // scratch images ship without zoneinfo

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const (
	envPrefix = "DRIVERSTATUS"

	defaultHTTPAddress  = ":8080"
	defaultLogLevel     = "info"
	defaultHubName      = "QAR Duiven"
	defaultHubLat       = 51.9672245
	defaultHubLon       = 6.0205411
	defaultRadiusKm     = 30.0
	defaultMaxAge       = 120 * time.Second
	defaultTimezone     = "Europe/Amsterdam"
	defaultPollInterval = 60 * time.Second
	defaultPushTimeout  = 5 * time.Second
	defaultPushTTL      = 3600
	defaultPushSubject  = "mailto:admin@example.com"
	defaultRouteTimeout = 4 * time.Second
	defaultORSURL       = "https://api.openrouteservice.org"
	defaultOSRMURL      = "https://router.project-osrm.org"
	defaultRateRPS      = 5.0
	defaultRateBurst    = 20
)

// legacyEnv maps keys onto the environment names used by earlier
// deployments. The prefixed name still wins when both are set.
var legacyEnv = map[string]string{
	"admin.secret":       "ADMIN_UPLOAD_SECRET",
	"push.vapid_public":  "VAPID_PUBLIC_KEY",
	"push.vapid_private": "VAPID_PRIVATE_KEY",
	"push.subject":       "VAPID_SUBJECT",
	"database.url":       "DATABASE_URL",
	"redis.url":          "REDIS_URL",
	"http.port":          "PORT",
}

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress string `validate:"required"`
	LogLevel    string `validate:"oneof=debug info warn warning error"`

	AdminSecret string `validate:"omitempty,min=8"`

	VAPIDPublicKey  string
	VAPIDPrivateKey string `validate:"required_with=VAPIDPublicKey"`
	VAPIDSubject    string
	PushTimeout     time.Duration `validate:"gt=0"`
	PushTTL         int           `validate:"gte=0"`

	Timezone     string        `validate:"required"`
	PollInterval time.Duration `validate:"gt=0"`

	HubName  string        `validate:"required"`
	HubLat   float64       `validate:"gte=-90,lte=90"`
	HubLon   float64       `validate:"gte=-180,lte=180"`
	RadiusKm float64       `validate:"gt=0"`
	MaxAge   time.Duration `validate:"gt=0"`

	ORSAPIKey    string
	ORSURL       string        `validate:"omitempty,url"`
	OSRMURL      string        `validate:"omitempty,url"`
	RouteTimeout time.Duration `validate:"gt=0"`

	GeoCSV      string
	LocalityCSV string
	DatabaseURL string
	RedisURL    string

	RateRPS   float64 `validate:"gte=0"`
	RateBurst int     `validate:"gte=0"`
	// Key the limiter on X-Forwarded-For. Only safe behind a proxy that sets it.
	TrustProxy bool
}

// PushEnabled reports whether a VAPID key pair is configured.
func (c AppConfig) PushEnabled() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != ""
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()
	for key, legacy := range legacyEnv {
		prefixed := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		_ = configViper.BindEnv(key, prefixed, legacy)
	}

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("push.timeout", defaultPushTimeout)
	configViper.SetDefault("push.ttl", defaultPushTTL)
	configViper.SetDefault("push.subject", defaultPushSubject)
	configViper.SetDefault("status.timezone", defaultTimezone)
	configViper.SetDefault("status.poll_interval", defaultPollInterval)
	configViper.SetDefault("hub.name", defaultHubName)
	configViper.SetDefault("hub.lat", defaultHubLat)
	configViper.SetDefault("hub.lon", defaultHubLon)
	configViper.SetDefault("hub.radius_km", defaultRadiusKm)
	configViper.SetDefault("hub.max_age", defaultMaxAge)
	configViper.SetDefault("routing.ors_url", defaultORSURL)
	configViper.SetDefault("routing.osrm_url", defaultOSRMURL)
	configViper.SetDefault("routing.timeout", defaultRouteTimeout)
	configViper.SetDefault("rate.rps", defaultRateRPS)
	configViper.SetDefault("rate.burst", defaultRateBurst)
	configViper.SetDefault("rate.trust_proxy", false)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:     configViper.GetString("http.address"),
		LogLevel:        strings.ToLower(strings.TrimSpace(configViper.GetString("log.level"))),
		AdminSecret:     strings.TrimSpace(configViper.GetString("admin.secret")),
		VAPIDPublicKey:  strings.TrimSpace(configViper.GetString("push.vapid_public")),
		VAPIDPrivateKey: strings.TrimSpace(configViper.GetString("push.vapid_private")),
		VAPIDSubject:    strings.TrimSpace(configViper.GetString("push.subject")),
		PushTimeout:     configViper.GetDuration("push.timeout"),
		PushTTL:         configViper.GetInt("push.ttl"),
		Timezone:        configViper.GetString("status.timezone"),
		PollInterval:    configViper.GetDuration("status.poll_interval"),
		HubName:         configViper.GetString("hub.name"),
		HubLat:          configViper.GetFloat64("hub.lat"),
		HubLon:          configViper.GetFloat64("hub.lon"),
		RadiusKm:        configViper.GetFloat64("hub.radius_km"),
		MaxAge:          configViper.GetDuration("hub.max_age"),
		ORSAPIKey:       strings.TrimSpace(configViper.GetString("routing.ors_api_key")),
		ORSURL:          configViper.GetString("routing.ors_url"),
		OSRMURL:         configViper.GetString("routing.osrm_url"),
		RouteTimeout:    configViper.GetDuration("routing.timeout"),
		GeoCSV:          configViper.GetString("directory.geo_csv"),
		LocalityCSV:     configViper.GetString("directory.locality_csv"),
		DatabaseURL:     strings.TrimSpace(configViper.GetString("database.url")),
		RedisURL:        strings.TrimSpace(configViper.GetString("redis.url")),
		RateRPS:         configViper.GetFloat64("rate.rps"),
		RateBurst:       configViper.GetInt("rate.burst"),
		TrustProxy:      configViper.GetBool("rate.trust_proxy"),
	}
	if port := strings.TrimSpace(configViper.GetString("http.port")); port != "" && cfg.HTTPAddress == defaultHTTPAddress {
		cfg.HTTPAddress = ":" + port
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultLogLevel
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func (c AppConfig) validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("status.timezone: %w", err)
	}
	return nil
}

// Location returns the configured time zone.
func (c AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
