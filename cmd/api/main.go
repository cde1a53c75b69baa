package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/healthrelay/internal/api"
	"example.com/healthrelay/internal/config"
	"example.com/healthrelay/internal/debounce"
	"example.com/healthrelay/internal/domain"
	"example.com/healthrelay/internal/eventlog"
	"example.com/healthrelay/internal/ingest"
	"example.com/healthrelay/internal/notify"
	"example.com/healthrelay/internal/poller"
	"example.com/healthrelay/internal/provider/fitbit"
	"example.com/healthrelay/internal/store/postgres"
	"example.com/healthrelay/internal/streak"
	httptransport "example.com/healthrelay/internal/transport/http"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	repo := postgres.NewRepository(pool)

	producer := eventlog.NewKafkaProducer(cfg.KafkaBrokers)
	defer producer.Close()

	dispatcher := eventlog.NewDispatcher(pool, producer, cfg.OutboxPollInterval, cfg.OutboxBatchSize)
	go dispatcher.Start(ctx)

	debouncer := debounce.New(cfg.EventDebounceWindow, cfg.ContentDebounceWindow)
	defer debouncer.Close()

	sink := notify.NewWebhookSink(cfg.WebhookURL, 10*time.Second, 2)
	notifier := notify.NewNotifier(sink, debouncer)
	provider := fitbit.NewClient(cfg.ProviderBaseURL, cfg.ProviderTimeout, cfg.ProviderRetries)

	ingestor := ingest.New(repo, provider, notifier, ingest.Config{
		Reports:      buildReports(cfg),
		HistoryDays:  cfg.HistoryDays,
		ProviderName: "fitbit",
		LoginURL:     cfg.LoginURL,
	})

	status := debounce.NewStatusTracker()

	handler := api.NewHandler(ingestor, debouncer, status, cfg.VerificationCode)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	var pollTask *poller.Poller
	if cfg.PollEnabled {
		pollTask = poller.New(repo, ingestor, status, cfg.PollInterval)
		go pollTask.Start(ctx)
	}

	dailyTask := poller.NewDailyReporter(ingestor, cfg.DailyReportHour, cfg.DailyReportMinute)
	go dailyTask.Start(ctx)

	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:      cfg.HTTPAddress,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}, mux)

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("healthrelay listening on %s", cfg.HTTPAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-shutdownCh
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	if pollTask != nil {
		pollTask.Wait()
	}
	dailyTask.Wait()
	dispatcher.Wait()
}

// buildReports assembles the per-activity-type reporting table from the
// configured realtime and daily type lists.
func buildReports(cfg config.Config) map[int]ingest.Report {
	mode := streak.Lax
	if cfg.StrictStreaks {
		mode = streak.Strict
	}

	reports := make(map[int]ingest.Report)
	for _, id := range cfg.RealtimeTypeIDs {
		reports[id] = ingest.Report{
			TypeID:   id,
			Name:     domain.ActivityTypeNames[id],
			Realtime: true,
		}
	}
	for _, id := range cfg.DailyTypeIDs {
		report := reports[id]
		report.TypeID = id
		report.Name = domain.ActivityTypeNames[id]
		report.Daily = true
		report.Goal = &streak.Goal{Metric: domain.MetricDistanceKM, Min: cfg.DailyDistanceGoalKM}
		report.StreakMode = mode
		reports[id] = report
	}
	return reports
}
