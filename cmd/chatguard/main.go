package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatguard/internal/cleanup"
	"chatguard/internal/config"
	"chatguard/internal/enforce"
	"chatguard/internal/escalate"
	"chatguard/internal/metrics"
	"chatguard/internal/modules/antibot"
	"chatguard/internal/modules/audit"
	"chatguard/internal/modules/duplicate"
	"chatguard/internal/modules/links"
	"chatguard/internal/modules/nightwatch"
	"chatguard/internal/modules/quota"
	"chatguard/internal/modules/spammer"
	"chatguard/internal/pipeline"
	"chatguard/internal/platform"
	"chatguard/internal/storage"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := config.BuildLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	store, err := storage.New(cfg.DatabasePath)
	if err != nil {
		logger.Fatal("storage init failed", zap.Error(err))
	}
	defer store.Close()
	if err := store.Migrate(); err != nil {
		logger.Fatal("migrations failed", zap.Error(err))
	}

	client := platform.NewHTTPClient(cfg.APIBaseURL, cfg.APIToken)
	admins := platform.NewCachedAdminResolver(client, time.Duration(cfg.AdminCacheTTLMinutes)*time.Minute)

	recorder := audit.NewRecorder(store, logger)
	enforcer := enforce.New(client, store, recorder, logger, cfg.Restriction.SoftBanHours, cfg.Ladder.DoubleMuteHours)
	ladder := escalate.New(store, enforcer, logger, cfg.Ladder.DecayHours, cfg.Ladder.MuteMinutes)

	registry := prometheus.NewRegistry()
	metricSet := metrics.New(registry)

	scorer := antibot.NewScorer(antibot.Config{
		ActThreshold:     cfg.AntiBot.ActThreshold,
		MuteThreshold:    cfg.AntiBot.MuteThreshold,
		SoftThreshold:    cfg.AntiBot.SoftThreshold,
		HistoryWindow:    time.Duration(cfg.AntiBot.HistoryMinutes) * time.Minute,
		BurstShort:       time.Duration(cfg.AntiBot.BurstShortSec) * time.Second,
		BurstMedium:      time.Duration(cfg.AntiBot.BurstMediumSec) * time.Second,
		BurstShortLimit:  cfg.AntiBot.BurstShortLimit,
		BurstMediumLimit: cfg.AntiBot.BurstMediumLimit,
	}, store)

	pipe := pipeline.New(pipeline.Deps{
		Config:    cfg,
		Logger:    logger,
		Store:     store,
		Admins:    admins,
		Enforcer:  enforcer,
		Metrics:   metricSet,
		Spammer:   spammer.New(store, enforcer, logger),
		Links:     links.New(store, enforcer, logger, cfg.Links.WindowHours),
		Duplicate: duplicate.New(store, enforcer, logger, cfg.Duplicate.WindowHours, cfg.Duplicate.MinLength, cfg.Duplicate.MaxSignature, cfg.Duplicate.SweepMinutes),
		AntiBot:   antibot.NewModule(scorer, enforcer, logger, cfg.Ladder.MuteMinutes),
		Quota:     quota.New(store, enforcer, logger, cfg.Ladder.MuteMinutes),
		Night:     nightwatch.New(store, enforcer, logger, cfg.QuietHours.Chats, cfg.QuietHours.StartHour, cfg.QuietHours.EndHour),
		Ladder:    ladder,
	})

	job := cleanup.New(cfg, store, client, logger)
	if err := job.Start(); err != nil {
		logger.Fatal("cleanup scheduler failed", zap.Error(err))
	}
	defer job.Stop()

	var server *http.Server
	if cfg.Health.Enabled {
		mux := http.NewServeMux()
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		server = &http.Server{Addr: cfg.Health.Addr, Handler: mux}
		go func() {
			logger.Info("health endpoint enabled", zap.String("addr", cfg.Health.Addr))
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("health server error", zap.Error(err))
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	go consume(ctx, client, pipe, logger)
	logger.Info("chatguard started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if server != nil {
		_ = server.Shutdown(shutdownCtx)
	}
}

// consume long-polls the platform and hands every message to its own
// goroutine: messages for different users and chats proceed in parallel.
func consume(ctx context.Context, client *platform.HTTPClient, pipe *pipeline.Pipeline, logger *zap.Logger) {
	var marker int64
	for {
		if ctx.Err() != nil {
			return
		}
		messages, next, err := client.PollUpdates(ctx, marker)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("update poll failed", zap.Error(err))
			time.Sleep(3 * time.Second)
			continue
		}
		marker = next
		for i := range messages {
			msg := messages[i]
			go pipe.Process(ctx, &msg)
		}
	}
}
