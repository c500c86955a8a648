package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"eventhub/internal/auth"
	"eventhub/internal/avatars"
	"eventhub/internal/config"
	"eventhub/internal/events"
	"eventhub/internal/exporter"
	transporthttp "eventhub/internal/http"
	"eventhub/internal/importer"
	"eventhub/internal/jokes"
	"eventhub/internal/metrics"
	"eventhub/internal/platform/database"
	"eventhub/internal/platform/logging"
	"eventhub/internal/platform/migrate"
	"eventhub/internal/profiles"
	"eventhub/internal/provider"
	"eventhub/internal/session"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logging.New(cfg.LogLevel)

	st, err := buildStores(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	if st.cleanup != nil {
		defer st.cleanup()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	client := provider.New(cfg.ProviderURL, cfg.ProviderAnonKey,
		provider.WithHTTPClient(&http.Client{Timeout: 12 * time.Second}))
	authService := auth.NewService(st.sessions, 0)
	verifier := buildVerifier(ctx, cfg, logger)

	profilesFor := func(authClient *provider.AuthClient) profiles.Repository {
		if st.profiles != nil {
			return st.profiles
		}
		return client.Profiles(authClient)
	}

	sessCfg := session.Config{
		InitTimeout:      cfg.SessionInitTimeout,
		ProfileRetries:   3,
		RefreshInterval:  cfg.SessionRefreshInterval,
		PasswordResetURL: cfg.PasswordResetURL(),
	}
	managerOpts := []session.Option{session.WithMetrics(collector)}
	if verifier != nil {
		managerOpts = append(managerOpts, session.WithVerifier(verifier))
	}

	factory := func(key string, notifier session.Notifier) *session.Manager {
		authClient := client.Auth(authService.Storage(), key)
		return session.NewManager(authClient, profilesFor(authClient), notifier, logger, sessCfg, managerOpts...)
	}
	registry := session.NewRegistry(factory, logger,
		session.WithIdleTTL(cfg.SessionIdleTTL),
		session.WithSharedNotifier(session.NewLogNotifier(logger)),
		session.WithRegistryMetrics(collector),
		session.WithSweep(func(ctx context.Context) {
			removed, err := authService.CleanupExpiredSessions(ctx)
			if err != nil {
				logger.Warn("expired session cleanup failed", "error", err)
				return
			}
			if removed > 0 {
				logger.Info("removed expired browser sessions", "count", removed)
			}
		}),
	)

	eventsSvc := events.NewService(st.events)
	avatarSvc := avatars.NewService(func(key string) avatars.Store {
		return client.Storage(client.Auth(authService.Storage(), key))
	})

	router := transporthttp.NewRouter(cfg, transporthttp.Dependencies{
		Sessions: registry,
		Events:   eventsSvc,
		Importer: importer.NewCSVImporter(eventsSvc),
		Exporter: exporter.NewCSVExporter(profilesFor(nil)),
		Avatars:  avatarSvc,
		Jokes:    jokes.NewService(client),
		Metrics:  collector,
		Gatherer: reg,
	}, logger)

	// WriteTimeout stays unset: the session stream is long-lived and each
	// non-streaming route is bounded by its own timeout middleware.
	srv := &http.Server{
		Addr:              cfg.HTTPAddress(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    http.DefaultMaxHeaderBytes,
	}
	// Closing the registry ends open session streams so Shutdown can drain.
	srv.RegisterOnShutdown(func() {
		if err := registry.Close(); err != nil {
			logger.Error("closing session registry", "error", err)
		}
	})

	go func() {
		logger.Info("eventhub API listening", "addr", srv.Addr, "store", cfg.DataStore, "provider", cfg.ProviderURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}

type stores struct {
	// profiles is nil when profile rows live in the provider.
	profiles profiles.Repository
	events   events.Repository
	sessions auth.Repository
	cleanup  func()
}

func buildStores(ctx context.Context, cfg config.Config, logger *slog.Logger) (stores, error) {
	useDatabase := cfg.DataStore == "postgres" || (cfg.UseProviderStore() && cfg.DatabaseURL != "")
	if !useDatabase {
		logger.Info("using in-memory repositories", "store", cfg.DataStore)
		st := stores{
			events:   events.NewInMemoryRepository(seedLocalEvents()),
			sessions: auth.NewInMemoryRepository(),
		}
		if cfg.UseInMemoryStore() {
			st.profiles = profiles.NewInMemoryRepository(nil)
		}
		return st, nil
	}

	db, err := database.NewPostgres(ctx, cfg.DatabaseURL, database.DefaultPool())
	if err != nil {
		return stores{}, err
	}

	cleanup := func() {
		_ = db.Close()
	}

	if err := migrate.Apply(ctx, db, logger); err != nil {
		cleanup()
		return stores{}, err
	}

	eventRepo := events.NewPostgresRepository(db)
	if cfg.IsDevelopment() {
		if err := seedPostgresEvents(ctx, eventRepo, logger); err != nil {
			logger.Warn("seeding demo events failed", "error", err)
		}
	}

	logger.Info("connected to postgres")
	st := stores{
		events:   eventRepo,
		sessions: auth.NewPostgresRepository(db),
		cleanup:  cleanup,
	}
	if !cfg.UseProviderStore() {
		st.profiles = profiles.NewPostgresRepository(db)
	}
	return st, nil
}

func buildVerifier(ctx context.Context, cfg config.Config, logger *slog.Logger) session.TokenVerifier {
	switch {
	case cfg.ProviderJWKSURL != "":
		logger.Info("verifying access tokens against JWKS", "url", cfg.ProviderJWKSURL)
		return auth.NewJWKSVerifier(ctx, cfg.ProviderJWKSURL, cfg.ProviderURL+"/auth/v1")
	case cfg.ProviderJWTSecret != "":
		logger.Info("verifying access tokens with shared secret")
		return auth.NewHMACVerifier(cfg.ProviderJWTSecret)
	default:
		logger.Warn("access token verification disabled")
		return nil
	}
}
