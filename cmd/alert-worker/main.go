package main

import (
	"context"
	"errors"
	"os"

	"budgetlist/internal/amqp"
	"budgetlist/internal/cli"
	"budgetlist/internal/config"
	"budgetlist/internal/log"
	"budgetlist/internal/worker"
)

func main() {
	cfg, logger := cli.LoadAndValidateConfig(log.ComponentWorker, (*config.Config).ValidateWorker)
	logger.Info("Starting alert-worker", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer client.Close()

	ctx, stop := cli.SignalContext()
	defer stop()

	w := worker.NewAlertWorker(client, logger)
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Alert consumption failed", log.FieldError, err)
		os.Exit(1)
	}

	stats := w.Stats()
	logger.Info("Worker shutdown complete", "handled", stats.Handled, "dropped", stats.Dropped)
}
