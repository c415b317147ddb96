// Command otp-mailer consumes OTP mail events published by the auth server
// and hands them to a Sender.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/warehouse-auth/internal/logs"
	"github.com/iliyamo/warehouse-auth/internal/queue"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logrus.WithError(err).Fatal("read .env")
	}
	log := logs.New(logs.Options{Level: os.Getenv("LOG_LEVEL"), Format: os.Getenv("LOG_FORMAT")})

	url := os.Getenv("RABBITMQ_URL")
	if url == "" {
		log.Fatal("missing required env var: RABBITMQ_URL")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := queue.NewConsumer(url, os.Getenv("OTP_QUEUE"), queue.LogSender{Log: log}, log)
	log.WithField("queue", c.Queue).Info("otp-mailer started")
	if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("consumer stopped")
	}
	log.Info("otp-mailer stopped")
}
