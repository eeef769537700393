package repository

import (
	"context"

	"github.com/investapk/investa-backend/internal/models"
)

type EarningRepository interface {
	Create(ctx context.Context, e *models.DailyEarning) (int64, error)
	ListByUser(ctx context.Context, userID int64) ([]models.DailyEarning, error)
	TotalByUser(ctx context.Context, userID int64) (float64, error)
}
