package repository

import (
	"context"

	"github.com/investapk/investa-backend/internal/models"
)

type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByReferralCode(ctx context.Context, code string) (*models.User, error)
	SetReferralCode(ctx context.Context, userID int64, code string) error
	ChangeBalance(ctx context.Context, userID int64, delta float64) (newBalance float64, err error)
	GetBalance(ctx context.Context, userID int64) (float64, error)
}
