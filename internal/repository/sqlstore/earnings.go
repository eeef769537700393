package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/investapk/investa-backend/internal/models"
)

type EarningStore struct {
	db      *sql.DB
	dialect Dialect
}

func NewEarningStore(db *sql.DB, dialect Dialect) *EarningStore {
	return &EarningStore{db: db, dialect: dialect}
}

func (s *EarningStore) Create(ctx context.Context, e *models.DailyEarning) (int64, error) {
	if e == nil {
		return 0, fmt.Errorf("earning is nil")
	}

	query := s.dialect.rebind(`
		INSERT INTO daily_earnings (investment_id, user_id, amount, day_number, created_at)
		VALUES ($1, $2, $3, $4, $5)`)
	args := []interface{}{e.InvestmentID, e.UserID, e.Amount, e.DayNumber, e.CreatedAt}

	if s.dialect.supportsReturning() {
		err := s.db.QueryRowContext(ctx, query+` RETURNING id`, args...).Scan(&e.ID)
		if err != nil {
			return 0, fmt.Errorf("failed to create earning: %w", err)
		}
		return e.ID, nil
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to create earning: %w", err)
	}
	e.ID, err = res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read new earning id: %w", err)
	}
	return e.ID, nil
}

func (s *EarningStore) ListByUser(ctx context.Context, userID int64) ([]models.DailyEarning, error) {
	query := s.dialect.rebind(`
		SELECT id, investment_id, user_id, amount, day_number, created_at
		FROM daily_earnings WHERE user_id = $1 ORDER BY created_at DESC`)
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list earnings: %w", err)
	}
	defer rows.Close()

	var earnings []models.DailyEarning
	for rows.Next() {
		var e models.DailyEarning
		if err := rows.Scan(&e.ID, &e.InvestmentID, &e.UserID, &e.Amount, &e.DayNumber, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan earning: %w", err)
		}
		earnings = append(earnings, e)
	}
	return earnings, rows.Err()
}

func (s *EarningStore) TotalByUser(ctx context.Context, userID int64) (float64, error) {
	var total float64
	query := s.dialect.rebind(`SELECT COALESCE(SUM(amount), 0) FROM daily_earnings WHERE user_id = $1`)
	if err := s.db.QueryRowContext(ctx, query, userID).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to total earnings: %w", err)
	}
	return total, nil
}
