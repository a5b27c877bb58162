package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/groupbuy-app/config"
	"github.com/yeremiapane/groupbuy-app/database"
	"github.com/yeremiapane/groupbuy-app/lifecycle"
	"github.com/yeremiapane/groupbuy-app/notify"
	"github.com/yeremiapane/groupbuy-app/router"
	"github.com/yeremiapane/groupbuy-app/services"
	"github.com/yeremiapane/groupbuy-app/utils"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		utils.ErrorLogger.Fatalf("Failed to load configuration: %v", err)
	}
	utils.InitLogger(cfg.Log.Level, cfg.Log.Format)
	utils.ConfigureJWT(cfg.JWT.Secret, cfg.JWT.TTL)

	if cfg.Release() {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := config.InitDB(cfg.DB)
	if err != nil {
		utils.ErrorLogger.Fatalf("Failed to connect to database: %v", err)
	}
	if cfg.DB.AutoMigrate {
		if err := database.Migrate(db); err != nil {
			utils.ErrorLogger.Fatalf("Failed to AutoMigrate: %v", err)
		}
	}

	registry := notify.NewRegistry()
	pipeline := notify.NewPipeline(db, registry)
	engine := lifecycle.NewEngine(db, pipeline, lifecycle.Options{
		AuctionDuration:    cfg.Lifecycle.AuctionDuration,
		VoteDuration:       cfg.Lifecycle.VoteDuration,
		VoteReminderWindow: cfg.Lifecycle.VoteReminderWindow,
		MaxActivePerUser:   cfg.Lifecycle.MaxActivePerUser,
	})

	sweeper := services.NewDeadlineSweeper(engine, cfg.Lifecycle.SweepSchedule)
	if err := sweeper.Start(); err != nil {
		utils.ErrorLogger.Fatalf("Failed to start deadline sweeper: %v", err)
	}
	defer sweeper.Stop()

	r := router.SetupRouter(router.Deps{
		DB:       db,
		Engine:   engine,
		Registry: registry,
		Sweeper:  sweeper,
		HTTP:     cfg.HTTP,
		WS:       cfg.WS,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTP.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		utils.InfoLogger.Printf("Listening on port %s", cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		utils.InfoLogger.Println("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		utils.ErrorLogger.Errorf("Server stopped with error: %v", err)
	}
}
