package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/coolkeypoint/mailblast/internal/mailer"
	"github.com/coolkeypoint/mailblast/internal/runner"
	"github.com/coolkeypoint/mailblast/internal/store"
	"github.com/coolkeypoint/mailblast/pkg/config"
	"github.com/coolkeypoint/mailblast/pkg/db"
	"github.com/coolkeypoint/mailblast/pkg/logx"
)

// Invoked by cron on a fixed interval. One invocation is one pass over the
// running campaigns; exit 0 covers "nothing to do".
func main() {
	_ = godotenv.Load()

	logx.Init()
	defer logx.Sync()

	config.MustLoadProcessor()
	cfg := config.Processor

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sqlDB, err := db.Open(ctx, cfg.DBDSN)
	if err != nil {
		logx.L().Fatalw("db_open_error", "error", err)
	}
	defer func() {
		if err := sqlDB.Close(); err != nil {
			logx.L().Warnw("db_close_error", "error", err)
		}
	}()

	st := store.New(sqlDB)

	m := mailer.New(mailer.Config{
		Host:        cfg.SMTPHost,
		Port:        cfg.SMTPPort,
		Username:    cfg.SMTPUser,
		Password:    cfg.SMTPPassword,
		SenderEmail: cfg.SenderEmail,
		SenderName:  cfg.SenderName,
		SendPause:   cfg.SendPause,
	})

	drv := &runner.Driver{
		Store:    st,
		Runner:   runner.New(st, m, cfg.MaxBatch, cfg.OpTimeout),
		UseLocks: cfg.AdvisoryLocks,
	}

	if err := drv.RunOnce(ctx); err != nil {
		logx.L().Errorw("run_failed", "error", err)
		logx.Sync()
		os.Exit(1)
	}
}
