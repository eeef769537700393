package repository

import (
	"context"

	"github.com/investapk/investa-backend/internal/models"
)

type WithdrawalRepository interface {
	// CreatePending debits the user's balance and inserts the pending row in
	// one database transaction. Returns ErrInsufficientFunds without state
	// change when the balance does not cover the amount.
	CreatePending(ctx context.Context, wd *models.Withdrawal) (newBalance float64, err error)

	GetByID(ctx context.Context, id int64) (*models.Withdrawal, error)
	ListByUser(ctx context.Context, userID int64) ([]models.Withdrawal, error)
	ListByStatus(ctx context.Context, status models.WithdrawalStatus, limit, offset int) ([]models.Withdrawal, error)

	// Approve stamps processed_at; the money already left the ledger at
	// submission time. Reject refunds the amount and stamps processed_at in
	// one transaction. Both return ErrInvalidTransition when the row is no
	// longer pending.
	Approve(ctx context.Context, id int64) error
	Reject(ctx context.Context, id int64) (refunded float64, err error)
}
