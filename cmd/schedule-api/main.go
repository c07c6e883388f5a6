package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"

	"github.com/workdeck/schedule-engine/internal/app/notifysink"
	"github.com/workdeck/schedule-engine/internal/app/scheduleapi"
	"github.com/workdeck/schedule-engine/internal/config"
	"github.com/workdeck/schedule-engine/internal/notes"
	"github.com/workdeck/schedule-engine/internal/notify"
	"github.com/workdeck/schedule-engine/internal/platform/dbpool"
	"github.com/workdeck/schedule-engine/internal/platform/env"
	"github.com/workdeck/schedule-engine/internal/platform/metrics"
	"github.com/workdeck/schedule-engine/internal/platform/natsutil"
	"github.com/workdeck/schedule-engine/internal/schedule/layout"
	"github.com/workdeck/schedule-engine/internal/schedule/merge"
	"github.com/workdeck/schedule-engine/internal/signals"
	"github.com/workdeck/schedule-engine/internal/source/google"
	"github.com/workdeck/schedule-engine/internal/store/blobs"
	"github.com/workdeck/schedule-engine/internal/store/directory"
	"github.com/workdeck/schedule-engine/internal/store/events"
	"github.com/workdeck/schedule-engine/internal/store/tasks"
)

func main() {
	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := env.String("SCHEDULE_API_ADDR", env.DefaultScheduleAddr)
	pgURL := env.String("DATABASE_URL", env.DefaultDatabaseURL)
	natsURL := env.String("NATS_URL", env.DefaultNATSURL)
	providerURL := env.String("PROVIDER_URL", env.DefaultProviderURL)
	providerKey := env.String("PROVIDER_API_KEY", "")
	shutdownTimeout := env.Duration("SHUTDOWN_TIMEOUT", 10*time.Second)

	cfg, err := config.Load(env.String("CONFIG_PATH", ""))
	if err != nil {
		log.Fatal(err)
	}

	pool, err := dbpool.New(runCtx, pgURL)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	taskRepo := tasks.NewRepository(pool)
	eventRepo := events.NewRepository(pool)
	dirRepo := directory.NewRepository(pool)
	blobRepo := blobs.NewRepository(pool)
	notifyRepo := notifysink.NewNotificationRepository(pool)
	if err := waitForPostgres(runCtx, pool, 30*time.Second,
		taskRepo.EnsureSchema, eventRepo.EnsureSchema, dirRepo.EnsureSchema,
		blobRepo.EnsureSchema, notifyRepo.EnsureSchema,
	); err != nil {
		log.Fatal(err)
	}

	client, err := natsutil.ConnectJetStreamWithRetry(natsURL, 20*time.Second)
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()
	publisher := natsutil.JetStreamPublisher{JS: client.JS}

	provider := google.NewClient(providerURL, providerKey)
	merger := merge.NewMerger(provider, eventRepo)
	merger.NoisePhrases = cfg.NoisePhrases

	service := scheduleapi.NewService(merger, taskRepo, dirRepo)
	service.Events = eventRepo
	service.Provider = provider
	service.Signals = signals.NewBus(publisher.Publish)
	service.Grid = layout.Grid{
		HourHeight:     float64(cfg.Layout.HourHeight),
		TopOffset:      float64(cfg.Layout.TopOffset),
		MinEventHeight: float64(cfg.Layout.MinEventHeight),
	}
	service.WeekCellBudget = cfg.Layout.WeekCellBudget
	service.MonthCellBudget = cfg.Layout.MonthCellBudget

	subs, err := service.WatchChanges(client.JS)
	if err != nil {
		log.Fatal(err)
	}
	defer func() {
		for _, sub := range subs {
			_ = sub.Unsubscribe()
		}
	}()

	dispatcher := notify.NewDispatcher(publisher.Publish)
	noteSvc := notes.NewService(taskRepo, dirRepo, dispatcher, blobRepo)
	noteSvc.Compressor = notes.Compressor{
		MaxEdge: cfg.Notes.ImageMaxEdge,
		Quality: cfg.Notes.ImageQuality,
	}

	handler := scheduleapi.NewHandler(service, noteSvc, notes.NewRegistry(), blobRepo)
	handler.Notifications = notifyRepo
	handler.SuggestionLimit = cfg.Notes.SuggestionLimit

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := checkReadiness(r.Context(), pool, client.Conn); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", metrics.DefaultHandler())
	mux.Handle("/", handler.Router())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	fmt.Printf("Schedule API listening on %s\n", addr)
	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		log.Fatal(err)
	case <-runCtx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("schedule-api graceful shutdown failed: %v", err)
	}
}

func waitForPostgres(ctx context.Context, pool *pgxpool.Pool, timeout time.Duration, ensure ...func(context.Context) error) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		attemptCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		lastErr = pool.Ping(attemptCtx)
		if lastErr == nil {
			for _, fn := range ensure {
				if lastErr = fn(attemptCtx); lastErr != nil {
					break
				}
			}
		}
		cancel()

		if lastErr == nil {
			return nil
		}
		log.Printf("waiting for postgres readiness: %v", lastErr)
		time.Sleep(500 * time.Millisecond)
	}
	return lastErr
}

func checkReadiness(ctx context.Context, pool *pgxpool.Pool, conn *nats.Conn) error {
	if conn == nil {
		return errors.New("nats connection is nil")
	}
	if conn.Status() != nats.CONNECTED {
		return fmt.Errorf("nats is not connected: %s", conn.Status().String())
	}

	checkCtx, cancel := context.WithTimeout(ctx, 1500*time.Millisecond)
	defer cancel()
	if err := pool.Ping(checkCtx); err != nil {
		return fmt.Errorf("postgres ping failed: %w", err)
	}
	return nil
}
