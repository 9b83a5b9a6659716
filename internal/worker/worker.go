// Package worker provides async processing of report change events.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/expertise-auto/chiffrage/internal/domain"
	"github.com/expertise-auto/chiffrage/internal/report"
	"github.com/expertise-auto/chiffrage/internal/stats"
)

// Worker recomputes report totals when line items change and keeps the
// statistics cache in step with report writes. Tariff table updates are
// deliberately not handled here: a corrected tariff takes effect only
// when someone triggers a recompute.
type Worker struct {
	bus     domain.EventBus
	reports *report.Service
	stats   *stats.Service

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, reports *report.Service, statsSvc *stats.Service) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:     bus,
		reports: reports,
		stats:   statsSvc,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start subscribes to the report topics.
func (w *Worker) Start() error {
	subs := []struct {
		topic   string
		handler domain.MessageHandler
	}{
		{domain.TopicReportChanged, w.handleReportChanged},
		{domain.TopicReportCreated, w.handleReportWritten},
		{domain.TopicReportRecomputed, w.handleReportWritten},
	}

	for _, s := range subs {
		sub, err := w.bus.Subscribe(w.ctx, s.topic, s.handler)
		if err != nil {
			return err
		}
		w.subscriptions = append(w.subscriptions, sub)
	}

	slog.Info("worker started",
		"subscriptions", len(w.subscriptions),
	)

	return nil
}

// handleReportChanged refreshes the stored total of a changed report.
func (w *Worker) handleReportChanged(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var event report.ReportEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		slog.Error("failed to parse report event",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	if event.ReportID == "" {
		slog.Warn("report event without report id", "message_id", msg.ID)
		return nil
	}

	total, err := w.reports.Recompute(ctx, event.ReportID)
	if err != nil {
		slog.Error("async recompute failed",
			"report_id", event.ReportID,
			"error", err,
		)
		return err
	}

	slog.Info("report recomputed from event",
		"report_id", event.ReportID,
		"total", total,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// handleReportWritten drops the cached statistics snapshot so the next
// overview reflects the write.
func (w *Worker) handleReportWritten(ctx context.Context, msg *domain.Message) error {
	if w.stats != nil {
		w.stats.Invalidate(ctx)
	}
	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
