package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/utakatalp/matchday/internal/api"
	"github.com/utakatalp/matchday/internal/cache"
	"github.com/utakatalp/matchday/internal/config"
	"github.com/utakatalp/matchday/internal/feed"
	"github.com/utakatalp/matchday/internal/league"
	"github.com/utakatalp/matchday/internal/logger"
	"github.com/utakatalp/matchday/internal/realtime"
	"github.com/utakatalp/matchday/internal/service"
	"github.com/utakatalp/matchday/internal/store"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := store.NewStore(ctx, cfg.Database.URL)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		log.WithError(err).Fatal("Failed to migrate database")
	}

	opts := service.Options{
		Points:          cfg.League.Points,
		LeaderboardSize: cfg.League.LeaderboardSize,
		Log:             logrus.NewEntry(log),
	}

	if cfg.CacheEnabled() {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.URL,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		c := cache.New(redisClient, cfg.Redis.TTL)
		if err := c.Ping(ctx); err != nil {
			log.WithError(err).Warn("Redis unreachable, running without cache")
		} else {
			opts.Cache = c
			log.WithField("addr", cfg.Redis.URL).Info("Connected to Redis")
		}
	}

	if cfg.FeedEnabled() {
		pub, err := feed.Dial(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			log.WithError(err).Warn("AMQP unreachable, running without event feed")
		} else {
			defer pub.Close()
			opts.Publisher = pub
			log.WithField("exchange", cfg.AMQP.Exchange).Info("Publishing match events")
		}
	}

	hub := realtime.NewHub(logger.Component(log, "realtime"))
	go hub.Run(ctx)
	opts.Broadcaster = hub

	svc := service.New(db, league.NewEngine(), opts)
	server := api.NewServer(svc, api.Options{
		Addr:        cfg.Server.Addr,
		CORSOrigins: cfg.Server.CORSOrigins,
		WebSocket:   hub.ServeWS(ctx),
		Log:         logger.Component(log, "api"),
	})

	go func() {
		if err := server.Start(); err != nil {
			log.WithError(err).Fatal("HTTP server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server shutdown error")
	}
}
