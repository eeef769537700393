package sqlstore

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/investapk/investa-backend/internal/infrastructure/observability"
	"github.com/investapk/investa-backend/internal/models"
	pkgerrors "github.com/investapk/investa-backend/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type InvestmentStore struct {
	db      *sql.DB
	dialect Dialect
}

func NewInvestmentStore(db *sql.DB, dialect Dialect) *InvestmentStore {
	return &InvestmentStore{db: db, dialect: dialect}
}

func (s *InvestmentStore) Create(ctx context.Context, inv *models.Investment) (int64, error) {
	var err error
	tracer := otel.Tracer("investment-store")
	ctx, span := tracer.Start(ctx, "CreateInvestment")
	defer span.End()

	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.RepositoryCalls.WithLabelValues("CreateInvestment", status).Inc()
		observability.RepositoryDuration.WithLabelValues("CreateInvestment").Observe(time.Since(start).Seconds())
	}()

	if inv == nil {
		err = pkgerrors.ErrNilInvestment
		slog.Error("failed to create investment", "method", "Create", "error", err)
		return 0, err
	}
	if inv.Amount <= 0 || inv.DailyIncome <= 0 {
		err = fmt.Errorf("amount and daily_income must be positive")
		slog.Error("invalid investment", "method", "Create", "amount", inv.Amount, "daily_income", inv.DailyIncome, "error", err)
		return 0, err
	}
	if inv.Status != models.InvestmentPending {
		err = fmt.Errorf("new investments must be pending, got %q", inv.Status)
		slog.Error("invalid investment status", "method", "Create", "status", inv.Status, "error", err)
		return 0, err
	}

	span.SetAttributes(
		attribute.Int64("user_id", inv.UserID),
		attribute.String("plan_name", inv.PlanName),
		attribute.Float64("amount", inv.Amount),
	)

	query := s.dialect.rebind(`
		INSERT INTO investments (user_id, plan_name, amount, daily_income, total_return, days_completed, days_remaining, screenshot, whatsapp_number, order_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`)
	args := []interface{}{
		inv.UserID, inv.PlanName, inv.Amount, inv.DailyIncome, inv.TotalReturn,
		inv.DaysCompleted, inv.DaysRemaining, inv.Screenshot, inv.WhatsappNumber,
		inv.OrderID, inv.Status,
	}

	if s.dialect.supportsReturning() {
		err = s.db.QueryRowContext(ctx, query+` RETURNING id, created_at`, args...).Scan(&inv.ID, &inv.CreatedAt)
		if err != nil {
			err = fmt.Errorf("failed to create investment: %w", err)
			slog.Error("failed to create investment", "method", "Create", "user_id", inv.UserID, "error", err)
			return 0, err
		}
	} else {
		var res sql.Result
		res, err = s.db.ExecContext(ctx, query, args...)
		if err != nil {
			err = fmt.Errorf("failed to create investment: %w", err)
			slog.Error("failed to create investment", "method", "Create", "user_id", inv.UserID, "error", err)
			return 0, err
		}
		inv.ID, err = res.LastInsertId()
		if err != nil {
			err = fmt.Errorf("failed to read new investment id: %w", err)
			return 0, err
		}
		err = s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT created_at FROM investments WHERE id = $1`), inv.ID).Scan(&inv.CreatedAt)
		if err != nil {
			err = fmt.Errorf("failed to read new investment: %w", err)
			return 0, err
		}
	}

	slog.Info("investment created", "method", "Create", "id", inv.ID, "user_id", inv.UserID, "plan", inv.PlanName, "amount", inv.Amount)
	return inv.ID, nil
}

const investmentColumns = `id, user_id, plan_name, amount, daily_income, total_return,
	days_completed, days_remaining, screenshot, whatsapp_number, order_id, status, created_at, approved_at`

func scanInvestment(scan func(dest ...interface{}) error) (*models.Investment, error) {
	var inv models.Investment
	var approvedAt sql.NullTime
	err := scan(
		&inv.ID, &inv.UserID, &inv.PlanName, &inv.Amount, &inv.DailyIncome,
		&inv.TotalReturn, &inv.DaysCompleted, &inv.DaysRemaining, &inv.Screenshot,
		&inv.WhatsappNumber, &inv.OrderID, &inv.Status, &inv.CreatedAt, &approvedAt,
	)
	if err != nil {
		return nil, err
	}
	if approvedAt.Valid {
		inv.ApprovedAt = &approvedAt.Time
	}
	return &inv, nil
}

func (s *InvestmentStore) GetByID(ctx context.Context, id int64) (*models.Investment, error) {
	query := s.dialect.rebind(`SELECT ` + investmentColumns + ` FROM investments WHERE id = $1`)
	inv, err := scanInvestment(s.db.QueryRowContext(ctx, query, id).Scan)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrInvestmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get investment: %w", err)
	}
	return inv, nil
}

func (s *InvestmentStore) ListByUser(ctx context.Context, userID int64) ([]models.Investment, error) {
	query := s.dialect.rebind(`SELECT ` + investmentColumns + ` FROM investments WHERE user_id = $1 ORDER BY created_at DESC`)
	return s.list(ctx, query, userID)
}

func (s *InvestmentStore) ListByStatus(ctx context.Context, status models.InvestmentStatus, limit, offset int) ([]models.Investment, error) {
	query := s.dialect.rebind(`SELECT ` + investmentColumns + ` FROM investments WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`)
	return s.list(ctx, query, status, limit, offset)
}

func (s *InvestmentStore) ListAccruable(ctx context.Context) ([]models.Investment, error) {
	query := s.dialect.rebind(`SELECT ` + investmentColumns + ` FROM investments WHERE status = $1 AND days_remaining > 0 ORDER BY id`)
	return s.list(ctx, query, models.InvestmentActive)
}

func (s *InvestmentStore) list(ctx context.Context, query string, args ...interface{}) ([]models.Investment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list investments: %w", err)
	}
	defer rows.Close()

	var investments []models.Investment
	for rows.Next() {
		inv, err := scanInvestment(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan investment: %w", err)
		}
		investments = append(investments, *inv)
	}
	return investments, rows.Err()
}

// Approve flips pending -> active. The status guard in the WHERE clause is
// what makes the transition terminal: a second approve matches no row.
func (s *InvestmentStore) Approve(ctx context.Context, id int64) error {
	return s.transition(ctx, "ApproveInvestment", id, models.InvestmentActive, true)
}

func (s *InvestmentStore) Reject(ctx context.Context, id int64) error {
	return s.transition(ctx, "RejectInvestment", id, models.InvestmentRejected, false)
}

func (s *InvestmentStore) transition(ctx context.Context, name string, id int64, to models.InvestmentStatus, stampApproved bool) error {
	var err error
	tracer := otel.Tracer("investment-store")
	ctx, span := tracer.Start(ctx, name)
	span.SetAttributes(attribute.Int64("investment_id", id))
	defer span.End()

	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.RepositoryCalls.WithLabelValues(name, status).Inc()
		observability.RepositoryDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}()

	query := s.dialect.rebind(`UPDATE investments SET status = $1 WHERE id = $2 AND status = $3`)
	if stampApproved {
		query = s.dialect.rebind(`UPDATE investments SET status = $1, approved_at = CURRENT_TIMESTAMP WHERE id = $2 AND status = $3`)
	}

	res, execErr := s.db.ExecContext(ctx, query, to, id, models.InvestmentPending)
	if execErr != nil {
		err = fmt.Errorf("failed to update investment status: %w", execErr)
		slog.Error("failed to update investment status", "method", name, "investment_id", id, "error", err)
		return err
	}
	affected, execErr := res.RowsAffected()
	if execErr != nil {
		err = fmt.Errorf("failed to update investment status: %w", execErr)
		return err
	}
	if affected == 0 {
		err = pkgerrors.ErrInvalidTransition
		slog.Warn("investment is not pending", "method", name, "investment_id", id)
		return err
	}

	slog.Info("investment status updated", "method", name, "investment_id", id, "status", to)
	return nil
}

// RecordAccrual advances the day counters for an active investment and
// completes it when the last day is credited.
func (s *InvestmentStore) RecordAccrual(ctx context.Context, id int64) (int, bool, error) {
	query := s.dialect.rebind(`
		UPDATE investments
		SET days_completed = days_completed + 1,
		    days_remaining = days_remaining - 1
		WHERE id = $1 AND status = $2 AND days_remaining > 0`)
	res, err := s.db.ExecContext(ctx, query, id, models.InvestmentActive)
	if err != nil {
		return 0, false, fmt.Errorf("failed to record accrual: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("failed to record accrual: %w", err)
	}
	if affected == 0 {
		return 0, false, pkgerrors.ErrInvalidTransition
	}

	var daysCompleted, daysRemaining int
	err = s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT days_completed, days_remaining FROM investments WHERE id = $1`), id).
		Scan(&daysCompleted, &daysRemaining)
	if err != nil {
		return 0, false, fmt.Errorf("failed to read accrual counters: %w", err)
	}

	completed := daysRemaining <= 0
	if completed {
		complete := s.dialect.rebind(`UPDATE investments SET status = $1 WHERE id = $2 AND status = $3`)
		if _, err = s.db.ExecContext(ctx, complete, models.InvestmentCompleted, id, models.InvestmentActive); err != nil {
			return daysCompleted, false, fmt.Errorf("failed to complete investment: %w", err)
		}
		slog.Info("investment completed", "investment_id", id, "days_completed", daysCompleted)
	}
	return daysCompleted, completed, nil
}
