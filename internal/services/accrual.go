package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/investapk/investa-backend/internal/infrastructure/kafka"
	"github.com/investapk/investa-backend/internal/repository"
)

const earningsTopic = "earnings"

// AccrualWorker publishes one earning event per active investment on each
// tick. The Kafka consumer applies the credits, so a crashed worker never
// half-applies a day.
type AccrualWorker struct {
	investmentRepo repository.InvestmentRepository
	producer       kafka.KafkaProducer
	interval       time.Duration
}

func NewAccrualWorker(investmentRepo repository.InvestmentRepository, producer kafka.KafkaProducer, interval time.Duration) *AccrualWorker {
	return &AccrualWorker{
		investmentRepo: investmentRepo,
		producer:       producer,
		interval:       interval,
	}
}

func (w *AccrualWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	slog.Info("accrual worker started", "interval", w.interval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("accrual worker stopped")
			return
		case <-ticker.C:
			if err := w.Tick(ctx); err != nil {
				slog.Error("accrual tick failed", "error", err)
			}
		}
	}
}

// Tick lists accruable investments and publishes their daily credit events.
func (w *AccrualWorker) Tick(ctx context.Context) error {
	investments, err := w.investmentRepo.ListAccruable(ctx)
	if err != nil {
		return err
	}

	published := 0
	for _, inv := range investments {
		event := kafka.EarningEvent{
			InvestmentID: inv.ID,
			UserID:       inv.UserID,
			Amount:       inv.DailyIncome,
			DayNumber:    inv.DaysCompleted + 1,
			CreatedAt:    time.Now().UTC().Format(time.RFC3339),
		}
		eventBytes, err := json.Marshal(event)
		if err != nil {
			slog.Error("failed to marshal earning event", "investment_id", inv.ID, "error", err)
			continue
		}
		if err := w.producer.Send(ctx, earningsTopic, inv.ID, eventBytes); err != nil {
			slog.Error("failed to publish earning event", "investment_id", inv.ID, "error", err)
			continue
		}
		published++
	}

	slog.Info("accrual tick complete", "active_investments", len(investments), "published", published)
	return nil
}
