package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gestionmatos-backend/internal/auth"
	"gestionmatos-backend/internal/config"
	"gestionmatos-backend/internal/database"
	"gestionmatos-backend/internal/logger"
	"gestionmatos-backend/internal/server"
	"gestionmatos-backend/internal/workflow"

	"github.com/redis/go-redis/v9"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Fatalf("env: %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logg := logger.New(cfg.Env)

	if err := run(cfg, logg); err != nil {
		logg.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *slog.Logger) error {
	db, err := database.Open(cfg, logg)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	var revoker auth.Revoker = auth.NewMemoryRevoker()
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer rdb.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := rdb.Ping(ctx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
		}
		revoker = auth.NewRedisRevoker(rdb, cfg.JWTTTL)
		logg.Info("token revocation backed by redis", "addr", cfg.RedisAddr)
	}

	wf := workflow.NewService(db)
	if drift, err := wf.Drift(context.Background()); err != nil {
		logg.Warn("drift check failed", "err", err)
	} else {
		for _, d := range drift {
			logg.Warn("material status disagrees with ledger",
				"material_id", d.MaterialID,
				"status", d.Status,
				"open_checkouts", d.OpenCheckouts,
			)
		}
	}

	app := server.New(server.Deps{
		Config:   cfg,
		DB:       db,
		Log:      logg,
		Revoker:  revoker,
		Workflow: wf,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logg.Error("shutdown", "err", err)
		}
	}()

	logg.Info("server listening", "port", cfg.HTTPPort, "env", cfg.Env, "db_driver", cfg.DBDriver)
	if err := app.Listen(":" + cfg.HTTPPort); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}
