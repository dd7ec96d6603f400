package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"driverstatus/internal/api"
	"driverstatus/internal/auth"
	"driverstatus/internal/buildinfo"
	"driverstatus/internal/config"
	"driverstatus/internal/directory"
	"driverstatus/internal/geofence"
	"driverstatus/internal/logging"
	"driverstatus/internal/metrics"
	"driverstatus/internal/model"
	"driverstatus/internal/notify"
	"driverstatus/internal/push"
	"driverstatus/internal/routing"
	"driverstatus/internal/service"
	"driverstatus/internal/status"
	"driverstatus/internal/store"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "driverstatus",
		Short:   "Driver status and push notification service",
		Version: buildinfo.Version,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
	rootCmd.AddCommand(&cobra.Command{
		Use:   "vapid-keys",
		Short: "Generate a VAPID key pair for Web Push",
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := push.GenerateKeys()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "VAPID_PUBLIC_KEY=%s\nVAPID_PRIVATE_KEY=%s\n", keys.PublicKey, keys.PrivateKey)
			return nil
		},
	})

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("admin-secret", "", "Shared secret for office endpoints (overrides env)")
	cmd.PersistentFlags().String("timezone", defaults.GetString("status.timezone"), "Time zone of movement timestamps")
	cmd.PersistentFlags().Duration("poll-interval", defaults.GetDuration("status.poll_interval"), "Status re-evaluation interval")
	cmd.PersistentFlags().Float64("radius-km", defaults.GetFloat64("hub.radius_km"), "Service radius around the hub")
	cmd.PersistentFlags().String("geo-csv", "", "Geo location table (CSV)")
	cmd.PersistentFlags().String("locality-csv", "", "Locality location table (CSV)")
	cmd.PersistentFlags().String("database-url", "", "Postgres URL holding the location tables")
	cmd.PersistentFlags().String("redis-url", "", "Redis URL for the live status broker")
	cmd.PersistentFlags().Bool("trust-proxy", false, "Rate limit on X-Forwarded-For (only behind a trusted proxy)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "admin.secret", "admin-secret")
	bindFlag(cmd, "status.timezone", "timezone")
	bindFlag(cmd, "status.poll_interval", "poll-interval")
	bindFlag(cmd, "hub.radius_km", "radius-km")
	bindFlag(cmd, "directory.geo_csv", "geo-csv")
	bindFlag(cmd, "directory.locality_csv", "locality-csv")
	bindFlag(cmd, "database.url", "database-url")
	bindFlag(cmd, "redis.url", "redis-url")
	bindFlag(cmd, "rate.trust_proxy", "trust-proxy")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	metrics.RegisterDefault()

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps := map[string]api.Pinger{}

	dir, closeDir := loadDirectory(signalCtx, appConfig, logger, deps)
	defer closeDir()

	var broker api.EventBroker = api.NewBroker()
	if appConfig.RedisURL != "" {
		rb, err := api.NewRedisBroker(appConfig.RedisURL, logger)
		if err != nil {
			logger.Warn("redis broker unavailable, using in-process broker", zap.Error(err))
		} else {
			defer rb.Close() //nolint:errcheck
			broker = rb
			deps["redis"] = rb
		}
	}

	mem := store.NewMemory()
	engine := status.NewEngine(appConfig.Location())

	vapid := push.VAPID{
		PublicKey:  appConfig.VAPIDPublicKey,
		PrivateKey: appConfig.VAPIDPrivateKey,
		Subject:    appConfig.VAPIDSubject,
	}
	var sender push.Sender
	if appConfig.PushEnabled() {
		wp := push.NewWebPush(vapid)
		wp.TTL = appConfig.PushTTL
		wp.Timeout = appConfig.PushTimeout
		sender = wp
	} else {
		logger.Warn("VAPID keys not configured, push notifications disabled")
	}

	dispatcher := notify.New(mem, engine, sender, logger.Named("notify"))
	dispatcher.Interval = appConfig.PollInterval
	dispatcher.Timeout = appConfig.PushTimeout
	dispatcher.Events = broker
	dispatcher.Start(signalCtx)

	routeClient := routing.NewHTTPClient(appConfig.RouteTimeout)
	chain := &routing.Chain{
		Secondary: &routing.OSRM{BaseURL: appConfig.OSRMURL, HTTP: routeClient},
		Timeout:   appConfig.RouteTimeout,
		Log:       logger.Named("routing"),
	}
	if appConfig.ORSAPIKey != "" {
		chain.Primary = &routing.OpenRouteService{BaseURL: appConfig.ORSURL, APIKey: appConfig.ORSAPIKey, HTTP: routeClient}
	}
	estimatorProviders := []routing.Provider{chain.Secondary}
	if chain.Primary != nil {
		estimatorProviders = append([]routing.Provider{chain.Primary}, estimatorProviders...)
	}

	svc := &service.Service{
		Store:  mem,
		Engine: engine,
		Gate: geofence.Gate{
			HubName:  appConfig.HubName,
			Hub:      model.GeoPoint{Lat: appConfig.HubLat, Lng: appConfig.HubLon},
			RadiusKm: appConfig.RadiusKm,
			MaxAge:   appConfig.MaxAge,
		},
		Resolver:   &directory.Resolver{Dir: dir},
		Routes:     chain,
		Estimator:  routing.NewEstimator(appConfig.RouteTimeout, estimatorProviders...),
		Dispatcher: dispatcher,
		VAPID:      vapid,
		Log:        logger.Named("service"),
	}

	verifier := auth.NewVerifier(appConfig.AdminSecret)
	if !verifier.Configured() {
		logger.Warn("admin secret not configured, office endpoints will refuse requests")
	}

	srv := &api.Server{
		Service:  svc,
		Auth:     verifier,
		Broker:   broker,
		Log:      logger.Named("http"),
		Deps:     deps,
		Settings: settings(appConfig),
	}
	if appConfig.RateRPS > 0 {
		srv.Limiter = api.NewRateLimiter(appConfig.RateRPS, appConfig.RateBurst)
		srv.Limiter.TrustProxy = appConfig.TrustProxy
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("address", appConfig.HTTPAddress),
			zap.String("version", buildinfo.Version),
			zap.Bool("push_enabled", svc.PushEnabled()))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// loadDirectory prefers the Postgres tables when a database is configured and
// falls back to the CSV files.
func loadDirectory(ctx context.Context, cfg config.AppConfig, logger *zap.Logger, deps map[string]api.Pinger) (*directory.Directory, func()) {
	log := logger.Named("directory")
	if cfg.DatabaseURL != "" {
		pg, err := directory.NewPostgres(cfg.DatabaseURL)
		if err == nil {
			deps["postgres"] = pg
			return directory.Load(ctx, log, pg.Table("geo_locations"), pg.Table("locality_locations")), func() { _ = pg.Close() }
		}
		log.Warn("postgres unavailable, using CSV location tables", zap.Error(err))
	}
	var geo, locality directory.Source
	if cfg.GeoCSV != "" {
		geo = directory.CSVSource{Path: cfg.GeoCSV}
	}
	if cfg.LocalityCSV != "" {
		locality = directory.CSVSource{Path: cfg.LocalityCSV}
	}
	return directory.Load(ctx, log, geo, locality), func() {}
}

func settings(c config.AppConfig) map[string]any {
	return map[string]any{
		"http.address":         c.HTTPAddress,
		"log.level":            c.LogLevel,
		"status.timezone":      c.Timezone,
		"status.poll_interval": c.PollInterval.String(),
		"hub.name":             c.HubName,
		"hub.radius_km":        c.RadiusKm,
		"hub.max_age":          c.MaxAge.String(),
		"push.enabled":         c.PushEnabled(),
		"push.ttl":             c.PushTTL,
		"routing.ors":          c.ORSAPIKey != "",
		"rate.rps":             c.RateRPS,
		"rate.burst":           c.RateBurst,
		"rate.trust_proxy":     c.TrustProxy,
		"has_admin_secret":     c.AdminSecret != "",
		"has_database_url":     c.DatabaseURL != "",
		"has_redis_url":        c.RedisURL != "",
	}
}
