package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(NewViper())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddress != ":8080" || cfg.HubName != "QAR Duiven" || cfg.RadiusKm != 30 || cfg.MaxAge != 2*time.Minute {
		t.Fatalf("defaults: %+v", cfg)
	}
	if cfg.PollInterval != time.Minute || cfg.RouteTimeout != 4*time.Second || cfg.PushTimeout != 5*time.Second {
		t.Fatalf("timeouts: %+v", cfg)
	}
	if cfg.PushEnabled() {
		t.Fatal("push must be off without keys")
	}
	if cfg.VAPIDSubject != "mailto:admin@example.com" {
		t.Fatalf("push subject %q", cfg.VAPIDSubject)
	}
	if cfg.TrustProxy {
		t.Fatal("forwarded headers must not be trusted by default")
	}
	if cfg.Location().String() != "Europe/Amsterdam" {
		t.Fatalf("timezone %s", cfg.Location())
	}
}

func TestLoadLegacyEnv(t *testing.T) {
	t.Setenv("ADMIN_UPLOAD_SECRET", "legacy-secret")
	t.Setenv("VAPID_PUBLIC_KEY", "pub")
	t.Setenv("VAPID_PRIVATE_KEY", "priv")
	t.Setenv("PORT", "9090")
	t.Setenv("DRIVERSTATUS_HUB_RADIUS_KM", "12.5")

	cfg, err := Load(NewViper())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AdminSecret != "legacy-secret" || !cfg.PushEnabled() || cfg.HTTPAddress != ":9090" || cfg.RadiusKm != 12.5 {
		t.Fatalf("got %+v", cfg)
	}

	t.Setenv("DRIVERSTATUS_ADMIN_SECRET", "prefixed-secret")
	cfg, _ = Load(NewViper())
	if cfg.AdminSecret != "prefixed-secret" {
		t.Fatalf("prefixed name should win, got %q", cfg.AdminSecret)
	}
}

func TestLoadValidation(t *testing.T) {
	cases := map[string]string{
		"short admin secret": "admin.secret",
		"half key pair":      "push.vapid_public",
		"zero radius":        "hub.radius_km",
		"bad timezone":       "status.timezone",
		"bad level":          "log.level",
	}
	values := map[string]any{
		"admin.secret":      "short",
		"push.vapid_public": "pub",
		"hub.radius_km":     0,
		"status.timezone":   "Mars/Olympus",
		"log.level":         "loud",
	}
	for name, key := range cases {
		t.Run(name, func(t *testing.T) {
			v := NewViper()
			v.Set(key, values[key])
			if _, err := Load(v); err == nil {
				t.Fatalf("%s=%v should be rejected", key, values[key])
			}
		})
	}
}

func TestLoadNormalizesLevel(t *testing.T) {
	v := NewViper()
	v.Set("log.level", " DEBUG ")
	cfg, err := Load(v)
	if err != nil || !strings.EqualFold(cfg.LogLevel, "debug") {
		t.Fatalf("got %q %v", cfg.LogLevel, err)
	}
}
