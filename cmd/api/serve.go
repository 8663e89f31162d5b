package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"barangay/api/internal/app"
	"barangay/api/internal/assets"
	"barangay/api/internal/config"
	"barangay/api/internal/live"
	"barangay/api/internal/metrics"
	"barangay/api/internal/notify"
	"barangay/api/internal/register"
	"barangay/api/internal/search"
	"barangay/api/internal/store"
)

var serveInMemory bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run the HTTP API.

Optional backends are enabled by their environment variables: REDIS_URL
for cross-instance change notifications, MEILI_URL for search,
MINIO_ENDPOINT for letterhead logos and the certificate archive, and
SMTP_HOST for requester notifications.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&serveInMemory, "memory", false, "Keep records in memory instead of PostgreSQL (development only)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.TokenSecret == config.DevTokenSecret {
		logger.Warn("BARANGAY_TOKEN_SECRET is unset; using the development secret")
	}

	var (
		repo store.Repository
		db   *sql.DB
	)
	if serveInMemory {
		logger.Warn("using in-memory store; records are lost on exit")
		repo = store.NewMemoryStore()
	} else {
		var err error
		db, err = store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		defer db.Close()
		if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
			return fmt.Errorf("migrations failed: %w", err)
		}
		repo = store.NewPostgresStore(db, logger)
	}

	var notifier live.Notifier = live.NewLocalNotifier()
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisNotifier, err := live.NewRedisNotifier(cfg.RedisURL, logger)
		if err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		defer redisNotifier.Close()
		notifier = redisNotifier
		logger.Info("using redis for change notifications")
	}
	hub := live.NewHub(repo, notifier, logger)

	var fallback search.Searcher = search.NewScanSearch(repo)
	if db != nil {
		fallback = search.NewPgSearch(db)
	}
	var index search.Index
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meili := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
		defer meili.Close()
		index = meili
	}
	searchService := search.NewService(index, fallback, logger)

	m := metrics.New()
	opts := []app.Option{
		app.WithLogger(logger),
		app.WithMetrics(m),
		app.WithSearch(searchService),
		app.WithRegister(register.New(cfg.RegisterDir)),
	}
	if strings.TrimSpace(cfg.MinIOEndpoint) != "" {
		objects, err := assets.New(ctx, assets.Config{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			UseSSL:    cfg.MinIOUseSSL,
		})
		if err != nil {
			return fmt.Errorf("object storage: %w", err)
		}
		opts = append(opts, app.WithAssets(objects))
	}
	mailer := notify.NewService(notify.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	if mailer.IsConfigured() {
		opts = append(opts, app.WithMailer(mailer))
	} else {
		logger.Info("smtp not configured; requester notifications disabled")
	}

	service := app.New(cfg, repo, hub, opts...)
	go func() {
		if err := searchService.ReindexAll(ctx, repo); err != nil {
			logger.Warn("search reindex failed", "error", err)
		}
	}()

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, []byte(cfg.TokenSecret))
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	server.RegisterOnShutdown(httpServer.CloseStreams)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("barangay api listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	service.Wait()
	return nil
}
