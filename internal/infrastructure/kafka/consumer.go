package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/investapk/investa-backend/internal/models"
	"github.com/investapk/investa-backend/internal/repository"
	"github.com/segmentio/kafka-go"
)

// EarningEvent is one day of simulated return for an active investment,
// published by the accrual worker and applied here.
type EarningEvent struct {
	InvestmentID int64   `json:"investment_id"`
	UserID       int64   `json:"user_id"`
	Amount       float64 `json:"amount"`
	DayNumber    int     `json:"day_number"`
	CreatedAt    string  `json:"created_at"`
}

type Consumer struct {
	reader         *kafka.Reader
	userRepo       repository.UserRepository
	investmentRepo repository.InvestmentRepository
	earningRepo    repository.EarningRepository
}

func NewConsumer(brokers []string, topic, groupID string, userRepo repository.UserRepository, investmentRepo repository.InvestmentRepository, earningRepo repository.EarningRepository) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 10e3,
			MaxBytes: 10e6,
		}),
		userRepo:       userRepo,
		investmentRepo: investmentRepo,
		earningRepo:    earningRepo,
	}
}

func (c *Consumer) Consume(ctx context.Context) {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("failed to read Kafka message", "topic", c.reader.Config().Topic, "error", err)
			continue
		}

		slog.Info("Kafka message received", "topic", msg.Topic, "key", string(msg.Key))

		var event EarningEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			slog.Error("failed to unmarshal earning event", "error", err)
			continue
		}
		if event.InvestmentID == 0 || event.UserID == 0 || event.Amount <= 0 {
			slog.Error("invalid earning event", "investment_id", event.InvestmentID, "user_id", event.UserID, "amount", event.Amount)
			continue
		}

		createdAt, err := time.Parse(time.RFC3339, event.CreatedAt)
		if err != nil {
			slog.Error("invalid created_at format", "value", event.CreatedAt, "error", err)
			continue
		}

		daysCompleted, completed, err := c.investmentRepo.RecordAccrual(ctx, event.InvestmentID)
		if err != nil {
			slog.Error("failed to record accrual", "investment_id", event.InvestmentID, "error", err)
			continue
		}

		if _, err := c.userRepo.ChangeBalance(ctx, event.UserID, event.Amount); err != nil {
			slog.Error("failed to credit daily income", "user_id", event.UserID, "investment_id", event.InvestmentID, "error", err)
			continue
		}

		earning := &models.DailyEarning{
			InvestmentID: event.InvestmentID,
			UserID:       event.UserID,
			Amount:       event.Amount,
			DayNumber:    daysCompleted,
			CreatedAt:    createdAt,
		}
		if _, err := c.earningRepo.Create(ctx, earning); err != nil {
			slog.Error("failed to record daily earning", "investment_id", event.InvestmentID, "error", err)
			continue
		}

		slog.Info("daily income credited",
			"investment_id", event.InvestmentID,
			"user_id", event.UserID,
			"amount", event.Amount,
			"day", daysCompleted,
			"completed", completed)
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
