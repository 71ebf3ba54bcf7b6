package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"github.com/rutils/torrbot/internal/bot"
	"github.com/rutils/torrbot/internal/config"
	"github.com/rutils/torrbot/internal/domain/accounts"
	"github.com/rutils/torrbot/internal/domain/claims"
	"github.com/rutils/torrbot/internal/domain/trial"
	"github.com/rutils/torrbot/internal/domain/users"
	"github.com/rutils/torrbot/internal/engine"
	"github.com/rutils/torrbot/internal/infra/db"
	httpx "github.com/rutils/torrbot/internal/infra/http"
	"github.com/rutils/torrbot/internal/infra/logger"
	"github.com/rutils/torrbot/internal/scheduler"
	"github.com/rutils/torrbot/internal/torrserver"
)

func runMigrations(dsn string) error {
	sqlDB, err := goose.OpenDBWithDriver("postgres", dsn)
	if err != nil {
		return err
	}
	defer func() { _ = sqlDB.Close() }()
	return goose.Up(sqlDB, "migrations")
}

func main() {
	cfg, err := config.Load("config/example.yaml")
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg.App.Env)

	if err := runMigrations(cfg.Postgres.DSN); err != nil {
		log.Error("migrations failed", "err", err)
		return
	}
	log.Info("migrations applied")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.Postgres.DSN)
	if err != nil {
		log.Error("db connect failed", "err", err)
		return
	}
	defer pool.Close()
	log.Info("db connected")

	api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		log.Error("telegram auth failed", "err", err)
		return
	}
	log.Info("telegram authorized", "bot", api.Self.UserName)

	accountsRepo := accounts.NewRepo(pool)
	trialRepo := trial.NewRepo(pool)
	claimsRepo := claims.NewRepo(pool)
	usersRepo := users.NewRepo(pool)

	prov := torrserver.New(cfg.TorrServer.UsersFile, cfg.TorrServer.RestartCommand, log)
	sched := scheduler.New(log)
	sender := bot.NewSender(api, log)

	eng := engine.New(log, accountsRepo, trialRepo, claimsRepo, prov, sender, sched, cfg.Telegram.AdminID)
	sched.SetHandler(eng.HandleJob)

	// очередь задач — производная от базы, после рестарта пересобираем
	if err := eng.Rehydrate(ctx); err != nil {
		log.Error("rehydrate failed", "err", err)
		return
	}

	b := bot.New(sender, eng, usersRepo, bot.Config{
		AdminID:         cfg.Telegram.AdminID,
		SupportChatURL:  cfg.Telegram.SupportChatURL,
		SBPPhone:        cfg.Payments.SBPPhone,
		Wallet:          cfg.Payments.Wallet,
		ServerAddress:   cfg.TorrServer.Address,
		RateLimitPerSec: cfg.Telegram.RateLimitPerSec,
	})

	srv := httpx.New(cfg.HTTP.Addr, cfg.Metrics.Enabled)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", "err", err)
		}
	}()
	log.Info("HTTP server started", "addr", cfg.HTTP.Addr)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		sched.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		if err := b.Run(ctx, cfg.Telegram.PollTimeoutSec); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("bot stopped", "err", err)
		}
	}()
	log.Info("bot started", "admin_id", cfg.Telegram.AdminID)

	<-ctx.Done()
	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	log.Info("graceful shutdown complete")
}
