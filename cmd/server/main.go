package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"

	app "github.com/nutrilink/platform/internal/app"
	"github.com/nutrilink/platform/internal/app/auth"
	"github.com/nutrilink/platform/internal/app/httpapi"
	"github.com/nutrilink/platform/internal/app/metrics"
	"github.com/nutrilink/platform/internal/app/storage/postgres"
	"github.com/nutrilink/platform/internal/config"
	"github.com/nutrilink/platform/internal/middleware"
	"github.com/nutrilink/platform/internal/platform/database"
	"github.com/nutrilink/platform/pkg/logger"
)

func main() {
	envFile := flag.String("env", "", "optional .env file to load")
	flag.Parse()

	if *envFile != "" {
		_ = godotenv.Load(*envFile)
	} else {
		_ = godotenv.Load()
	}

	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logger.New(logger.LoggingConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var stores app.Stores
	if cfg.Database.URL != "" {
		db, err := database.Open(ctx, database.Config{
			URL:             cfg.Database.URL,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			log.WithError(err).Error("connect database")
			os.Exit(1)
		}
		defer db.Close()

		if err := database.Migrate(db); err != nil {
			log.WithError(err).Error("migrate database")
			os.Exit(1)
		}

		store := postgres.New(db)
		stores = app.Stores{
			Users:      store,
			Listings:   store,
			Requests:   store,
			Deliveries: store,
			Analytics:  store,
		}
		log.Info("using postgres storage")
	} else {
		log.Warn("DATABASE_URL not set; using in-memory storage")
	}

	tokens := auth.NewManager(auth.Config{
		AccessSecret:  cfg.Auth.AccessSecret,
		RefreshSecret: cfg.Auth.RefreshSecret,
		AccessTTL:     cfg.Auth.AccessTTL,
		RefreshTTL:    cfg.Auth.RefreshTTL,
		BcryptCost:    cfg.Auth.BcryptCost,
	})

	application, err := app.New(stores, tokens, app.Options{
		AdminAccessCode:      cfg.Auth.AdminAccessCode,
		InitialRequestStatus: cfg.InitialRequestStatus(),
		ExpirySchedule:       cfg.Listings.ExpirySweepSchedule,
	}, log)
	if err != nil {
		log.WithError(err).Error("build application")
		os.Exit(1)
	}

	if err := application.Start(ctx); err != nil {
		log.WithError(err).Error("start application")
		os.Exit(1)
	}

	authn := middleware.NewAuthenticator(tokens, log)
	api := httpapi.NewHandler(application, authn, httpapi.Options{
		AuditFilePath: os.Getenv("AUDIT_LOG_PATH"),
	})

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/", api)

	var root http.Handler = mux
	root = limiter.Middleware(root)
	root = metrics.InstrumentHandler(root)
	root = middleware.CORS(cfg.Server.CORSOrigins)(root)
	root = middleware.Trace(root)

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      root,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", server.Addr).Info("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		log.WithError(err).Error("http server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http server shutdown")
	}
	if err := application.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("application shutdown")
	}
	log.Info("shutdown complete")
}
