package main

import (
	"context"
	"flag"

	"github.com/sirupsen/logrus"

	"ajilpay/config"
	"ajilpay/db"
)

func main() {
	dir := flag.String("dir", "migrations", "directory containing .sql migration files")
	flag.Parse()

	ctx := context.Background()
	cfg := config.Load()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logrus.WithError(err).Fatal("bootstrap database pool")
	}
	defer pool.Close()

	if err := db.RunMigrations(ctx, pool, *dir); err != nil {
		logrus.WithError(err).Fatal("apply migrations")
	}

	logrus.WithField("dir", *dir).Info("migrations applied")
}
