package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/LeventeLantos/outreach-engine/internal/api"
	"github.com/LeventeLantos/outreach-engine/internal/campaign"
	"github.com/LeventeLantos/outreach-engine/internal/client"
	"github.com/LeventeLantos/outreach-engine/internal/collector"
	"github.com/LeventeLantos/outreach-engine/internal/config"
	"github.com/LeventeLantos/outreach-engine/internal/repo"
	"github.com/LeventeLantos/outreach-engine/internal/scheduler"
	"github.com/LeventeLantos/outreach-engine/internal/service"
	"github.com/LeventeLantos/outreach-engine/internal/store"
	"github.com/LeventeLantos/outreach-engine/internal/worker"
)

const shutdownTimeout = 30 * time.Second

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadAll()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Log.Level})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("outreach engine exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	slog.Info("outreach engine starting",
		"addr", cfg.Server.Address,
		"delivery_mode", cfg.Delivery.Mode,
		"send_delay", cfg.Campaign.SendDelay.String(),
		"max_retries", cfg.Campaign.MaxRetries,
		"workers", cfg.Worker.Limit,
	)

	db, err := sql.Open("pgx", cfg.Database.PostgresURL)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	if err := repo.EnsureSchema(ctx, db); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}

	st := store.NewRedisStore(rdb, cfg.Redis.TTL)
	messages := repo.NewPostgresMessageRepo(db)
	leads := repo.NewPostgresLeadRepo(db)

	delivery, closeDelivery := deliveryClient(cfg)
	defer closeDelivery()

	pool := worker.New(cfg.Worker.Limit)

	campaigns := campaign.NewService(
		st,
		messages,
		service.NewSender(delivery, cfg.Campaign.ContentMax),
		pool,
		campaign.Options{
			SendDelay:  cfg.Campaign.SendDelay,
			MaxRetries: cfg.Campaign.MaxRetries,
			Heartbeat:  cfg.Campaign.Heartbeat,
		},
	)

	scraper := client.NewScraperClient(cfg.Scraper.URL, cfg.Scraper.Token, cfg.Scraper.Timeout)
	collections := collector.NewRunner(leads, st, scraper, pool)

	recovery, err := scheduler.New("campaign-recovery", cfg.Recovery.Interval, func(ctx context.Context) error {
		_, err := campaigns.Recover(ctx, cfg.Recovery.StaleAfter)
		return err
	})
	if err != nil {
		return err
	}
	recovery.Start()

	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           loggingMiddleware(api.Router(api.NewHandler(campaigns, collections, recovery))),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		recovery.Stop()
		errs := []error{srv.Shutdown(shutdownCtx)}
		if err := pool.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("worker pool: %w", err))
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}

// deliveryClient builds the actuator named by DELIVERY_MODE along with its
// cleanup.
func deliveryClient(cfg *config.Config) (service.DeliveryClient, func()) {
	if cfg.Delivery.Mode == config.DeliveryWebhook {
		return client.NewWebhookSender(cfg.Delivery.Webhook.URL, cfg.Delivery.Webhook.Timeout), func() {}
	}

	b := cfg.Delivery.Browser
	sender := client.NewBrowserSender(client.BrowserConfig{
		ControlURL:            b.ControlURL,
		Bin:                   b.Bin,
		Headless:              b.Headless,
		BaseURL:               b.BaseURL,
		CookieDomain:          b.CookieDomain,
		NavigationTimeout:     b.NavigationTimeout,
		ScreenshotDir:         b.ScreenshotDir,
		MessageButtonSelector: b.MessageButtonSelector,
		InputSelector:         b.InputSelector,
		SendButtonSelector:    b.SendButtonSelector,
		SentMarkerSelector:    b.SentMarkerSelector,
	})
	return sender, func() {
		if err := sender.Close(); err != nil {
			slog.Warn("browser close failed", "error", err)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
