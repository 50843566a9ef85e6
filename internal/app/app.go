// Package app wires the storage, transport, conversation and
// scheduling components together and owns their lifecycle.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/McdWebs/whatsapp-bot/internal/bot"
	"github.com/McdWebs/whatsapp-bot/internal/config"
	"github.com/McdWebs/whatsapp-bot/internal/export"
	"github.com/McdWebs/whatsapp-bot/internal/scheduler"
	"github.com/McdWebs/whatsapp-bot/internal/store"
	"github.com/McdWebs/whatsapp-bot/internal/web"
	"github.com/McdWebs/whatsapp-bot/internal/whatsapp"
	"github.com/McdWebs/whatsapp-bot/internal/zmanim"
)

// App is the composed application.
type App struct {
	cfg config.Config
	log *zap.Logger
	tz  *time.Location
}

// New validates configuration that cannot be checked lazily.
func New(cfg config.Config, log *zap.Logger) (*App, error) {
	tz, err := time.LoadLocation(cfg.DefaultTZ)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.DefaultTZ, err)
	}
	return &App{cfg: cfg, log: log, tz: tz}, nil
}

// Run builds every component, starts the HTTP server, dispatcher,
// worker and nightly sync, and blocks until a shutdown signal.
func (a *App) Run(ctx context.Context) error {
	a.log.Info("starting whatsapp-bot",
		zap.String("http", a.cfg.HTTPAddr),
		zap.String("tz", a.cfg.DefaultTZ),
	)

	repo, err := store.OpenSQLite(ctx, a.cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	defer repo.Close()
	a.log.Info("sqlite ready", zap.String("path", a.cfg.DBPath))

	if err := a.pingRedis(ctx); err != nil {
		return fmt.Errorf("redis unreachable at %s: %w", a.cfg.RedisAddr, err)
	}
	a.log.Info("redis ready", zap.String("addr", a.cfg.RedisAddr))

	provider := whatsapp.NewTwilioProvider(
		a.cfg.TwilioAccountSID, a.cfg.TwilioAuthToken, a.cfg.TwilioFrom, a.log)
	messages := whatsapp.NewService(provider, a.cfg.TwilioTemplateSID, a.log)

	hebcal := zmanim.NewHebcalClient(a.cfg.HebcalBaseURL, a.log)
	resolver := zmanim.New(repo, hebcal, a.log)

	machine := bot.New(repo, messages, resolver, a.cfg.DefaultLocation, a.tz, a.log)

	redisOpt := asynq.RedisClientOpt{
		Addr:     a.cfg.RedisAddr,
		Password: a.cfg.RedisPassword,
		DB:       a.cfg.RedisDB,
	}
	queue := scheduler.NewAsynqQueue(redisOpt, a.log)
	defer queue.Close()

	dispatcher := scheduler.NewDispatcher(repo, queue, resolver, a.cfg.DefaultLocation, a.tz, a.log)
	syncer := scheduler.NewSyncer(repo, resolver, a.cfg.DefaultLocation, a.tz, a.log)
	worker := scheduler.NewWorker(repo, messages, a.tz, a.log)

	asynqSrv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency:    10,
		Queues:         map[string]int{scheduler.QueueName: 1},
		RetryDelayFunc: scheduler.RetryDelay,
	})

	var exporter web.Exporter
	if a.cfg.SheetsConfigured() {
		e, err := export.NewSheetsExporter(ctx, repo,
			a.cfg.SheetsClientEmail, a.cfg.SheetsPrivateKey, a.cfg.SheetsSpreadsheetID, a.log)
		if err != nil {
			return fmt.Errorf("sheets exporter: %w", err)
		}
		exporter = e
	} else {
		a.log.Info("sheets export disabled, credentials not configured")
	}

	httpSrv := web.NewServer(web.Config{
		Addr:          a.cfg.HTTPAddr,
		PublicBaseURL: a.cfg.PublicBaseURL,
		AdminAPIKey:   a.cfg.AdminAPIKey,
		Bot:           machine,
		Store:         repo,
		Exporter:      exporter,
		Validator:     provider,
	}, a.log)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := asynqSrv.Start(worker.Mux()); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	go dispatcher.Run(ctx)
	go syncer.Run(ctx)
	go func() {
		if err := httpSrv.Start(); err != nil {
			a.log.Error("http server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	a.log.Info("shutdown signal received")

	shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shCtx); err != nil {
		a.log.Warn("http server shutdown error", zap.Error(err))
	}
	asynqSrv.Shutdown()
	return nil
}

// pingRedis fails fast when the queue backend is down instead of
// letting asynq retry forever.
func (a *App) pingRedis(ctx context.Context) error {
	rdb := redis.NewClient(&redis.Options{
		Addr:     a.cfg.RedisAddr,
		Password: a.cfg.RedisPassword,
		DB:       a.cfg.RedisDB,
	})
	defer rdb.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return rdb.Ping(pingCtx).Err()
}
