package repository

import (
	"context"

	"github.com/investapk/investa-backend/internal/models"
)

type InvestmentRepository interface {
	Create(ctx context.Context, inv *models.Investment) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.Investment, error)
	ListByUser(ctx context.Context, userID int64) ([]models.Investment, error)
	ListByStatus(ctx context.Context, status models.InvestmentStatus, limit, offset int) ([]models.Investment, error)

	// Approve flips pending -> active and stamps approved_at; Reject flips
	// pending -> rejected. Both return ErrInvalidTransition when the row is
	// no longer pending.
	Approve(ctx context.Context, id int64) error
	Reject(ctx context.Context, id int64) error

	// ListAccruable returns active investments with days still remaining.
	ListAccruable(ctx context.Context) ([]models.Investment, error)

	// RecordAccrual advances days_completed by one and completes the
	// investment when the plan duration is reached.
	RecordAccrual(ctx context.Context, id int64) (daysCompleted int, completed bool, err error)
}
