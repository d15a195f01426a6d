package main

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"ajilpay/auth"
	"ajilpay/config"
	"ajilpay/db"
	"ajilpay/escrow"
	"ajilpay/httpapi"
	"ajilpay/listing"
	"ajilpay/wallet"
)

func main() {
	ctx := context.Background()
	cfg := config.Load()

	if cfg.IsProd {
		gin.SetMode(gin.ReleaseMode)
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}

	if cfg.JWTSecret == "" {
		logrus.Fatal("JWT_SECRET is required")
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logrus.WithError(err).Fatal("bootstrap database pool")
	}
	defer pool.Close()

	var cache *redis.Client
	if cfg.RedisAddr != "" {
		cache = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPass,
			DB:       cfg.RedisDB,
		})
		if err := cache.Ping(ctx).Err(); err != nil {
			logrus.WithError(err).Warn("redis unreachable, caching disabled")
			cache = nil
		}
	}

	authSvc := auth.NewService(auth.NewRepository(pool), cfg.JWTSecret)
	walletRepo := wallet.NewRepository(pool)
	walletSvc := wallet.NewService(pool, walletRepo)
	escrowSvc := escrow.NewService(pool, escrow.NewRepository(pool), walletRepo)
	listingSvc := listing.NewService(listing.NewRepository(pool))

	server := httpapi.NewServer(authSvc, walletSvc, escrowSvc, listingSvc, cache)

	logrus.WithField("port", cfg.AppPort).Info("starting api server")
	if err := server.Router().Run(":" + cfg.AppPort); err != nil {
		logrus.WithError(err).Fatal("api server exited")
	}
}
