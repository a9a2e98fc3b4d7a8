package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"

	"github.com/Sarthakshelke9895/Cloud/setup"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("logger", "main")

func main() {
	os.Exit(run())
}

func run() int {
	if err := setup.LoadConfig(os.Args[1:]); err != nil {
		log.WithError(err).Error("Invalid configuration")
		return 2
	}

	app, err := setup.InitFromConfig()
	if err != nil {
		log.WithError(err).Error("Failed to start blob service")
		return 1
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.WithError(err).Error("Failed to close blob store")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil {
		log.WithError(err).Error("Blob server failed")
		return 1
	}
	return 0
}
