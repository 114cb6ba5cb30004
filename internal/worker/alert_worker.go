// Package worker consumes budget alerts published by the API server.
package worker

import (
	"context"
	"sync/atomic"

	"budgetlist/internal/amqp"
	"budgetlist/internal/core"
	"budgetlist/internal/log"
)

// Consumer delivers budget alerts to a handler until ctx is done.
// *amqp.Client implements it.
type Consumer interface {
	ConsumeBudgetAlerts(ctx context.Context, handler amqp.AlertHandler) error
}

// Stats counts what the worker did with the alerts it received.
type Stats struct {
	Handled int64
	Dropped int64
}

// AlertWorker records every budget alert in the structured log.
type AlertWorker struct {
	consumer Consumer
	logger   *log.Logger
	events   *log.StructuredLogger

	handled atomic.Int64
	dropped atomic.Int64
}

func NewAlertWorker(consumer Consumer, logger *log.Logger) *AlertWorker {
	if logger == nil {
		logger = log.Discard()
	}
	return &AlertWorker{
		consumer: consumer,
		logger:   logger.WithComponent(log.ComponentWorker),
		events:   log.NewStructuredLogger(logger),
	}
}

// Run consumes alerts until ctx is cancelled.
func (w *AlertWorker) Run(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Alert worker started")
	err := w.consumer.ConsumeBudgetAlerts(ctx, w.HandleAlert)
	w.logger.InfoContext(ctx, "Alert worker stopped",
		"handled", w.handled.Load(), "dropped", w.dropped.Load())
	return err
}

// HandleAlert logs one alert. Alerts that cannot be acted upon are dropped
// rather than requeued, since redelivery would not fix them.
func (w *AlertWorker) HandleAlert(ctx context.Context, msg *amqp.BudgetAlertMessage) error {
	status := core.BudgetStatus(msg.Status)
	if msg.ListID == "" || !status.Alerting() {
		w.dropped.Add(1)
		w.logger.WarnContext(ctx, "Dropping malformed budget alert",
			log.FieldListID, msg.ListID, log.FieldBudgetStatus, msg.Status)
		return nil
	}

	w.events.LogBudgetChange(ctx, msg.ListID, msg.OwnerID, msg.PreviousStatus, msg.Status,
		msg.Spent.Cents, msg.Budget.Cents)
	if status == core.StatusOverBudget {
		w.logger.WarnContext(ctx, "List is over budget",
			log.FieldListID, msg.ListID,
			log.FieldOwnerID, msg.OwnerID,
			"list_name", msg.ListName,
			"spent", msg.Spent.String(),
			"budget", msg.Budget.String())
	}
	w.handled.Add(1)
	return nil
}

func (w *AlertWorker) Stats() Stats {
	return Stats{Handled: w.handled.Load(), Dropped: w.dropped.Load()}
}
