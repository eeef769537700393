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

type WithdrawalStore struct {
	db      *sql.DB
	dialect Dialect
}

func NewWithdrawalStore(db *sql.DB, dialect Dialect) *WithdrawalStore {
	return &WithdrawalStore{db: db, dialect: dialect}
}

// CreatePending debits the balance and inserts the pending row inside one
// transaction, so a crash between the two steps can no longer lose money.
func (s *WithdrawalStore) CreatePending(ctx context.Context, wd *models.Withdrawal) (float64, error) {
	var err error
	tracer := otel.Tracer("withdrawal-store")
	ctx, span := tracer.Start(ctx, "CreateWithdrawal")
	defer span.End()

	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.RepositoryCalls.WithLabelValues("CreateWithdrawal", status).Inc()
		observability.RepositoryDuration.WithLabelValues("CreateWithdrawal").Observe(time.Since(start).Seconds())
	}()

	if wd == nil {
		err = pkgerrors.ErrNilWithdrawal
		slog.Error("failed to create withdrawal", "method", "CreatePending", "error", err)
		return 0, err
	}
	if wd.Amount <= 0 {
		err = fmt.Errorf("amount must be positive")
		slog.Error("invalid withdrawal amount", "method", "CreatePending", "amount", wd.Amount, "error", err)
		return 0, err
	}
	if wd.PaymentMethod != models.MethodEasypaisa && wd.PaymentMethod != models.MethodJazzcash {
		err = pkgerrors.ErrInvalidPaymentMethod
		slog.Error("invalid payment method", "method", "CreatePending", "payment_method", wd.PaymentMethod, "error", err)
		return 0, err
	}

	span.SetAttributes(
		attribute.Int64("user_id", wd.UserID),
		attribute.Float64("amount", wd.Amount),
		attribute.String("payment_method", string(wd.PaymentMethod)),
	)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		err = fmt.Errorf("failed to begin transaction: %w", err)
		slog.Error("failed to begin transaction", "method", "CreatePending", "error", err)
		return 0, err
	}

	debit := s.dialect.rebind(`
		UPDATE users
		SET balance = balance - $1
		WHERE id = $2
		AND balance >= $1`)
	res, execErr := tx.ExecContext(ctx, debit, wd.Amount, wd.UserID)
	if execErr != nil {
		err = s.rollback(tx, fmt.Errorf("failed to debit balance: %w", execErr))
		return 0, err
	}
	affected, execErr := res.RowsAffected()
	if execErr != nil {
		err = s.rollback(tx, fmt.Errorf("failed to debit balance: %w", execErr))
		return 0, err
	}
	if affected == 0 {
		err = s.rollback(tx, pkgerrors.ErrInsufficientFunds)
		slog.Warn("withdrawal refused", "method", "CreatePending", "user_id", wd.UserID, "amount", wd.Amount)
		return 0, err
	}

	insert := s.dialect.rebind(`
		INSERT INTO withdrawals (user_id, amount, payment_method, account_number, order_id, status)
		VALUES ($1, $2, $3, $4, $5, $6)`)
	args := []interface{}{wd.UserID, wd.Amount, wd.PaymentMethod, wd.AccountNumber, wd.OrderID, models.WithdrawalPending}

	if s.dialect.supportsReturning() {
		execErr = tx.QueryRowContext(ctx, insert+` RETURNING id, created_at`, args...).Scan(&wd.ID, &wd.CreatedAt)
		if execErr != nil {
			err = s.rollback(tx, fmt.Errorf("failed to create withdrawal: %w", execErr))
			return 0, err
		}
	} else {
		var insRes sql.Result
		insRes, execErr = tx.ExecContext(ctx, insert, args...)
		if execErr != nil {
			err = s.rollback(tx, fmt.Errorf("failed to create withdrawal: %w", execErr))
			return 0, err
		}
		wd.ID, execErr = insRes.LastInsertId()
		if execErr != nil {
			err = s.rollback(tx, fmt.Errorf("failed to read new withdrawal id: %w", execErr))
			return 0, err
		}
		execErr = tx.QueryRowContext(ctx, s.dialect.rebind(`SELECT created_at FROM withdrawals WHERE id = $1`), wd.ID).Scan(&wd.CreatedAt)
		if execErr != nil {
			err = s.rollback(tx, fmt.Errorf("failed to read new withdrawal: %w", execErr))
			return 0, err
		}
	}

	var newBalance float64
	execErr = tx.QueryRowContext(ctx, s.dialect.rebind(`SELECT balance FROM users WHERE id = $1`), wd.UserID).Scan(&newBalance)
	if execErr != nil {
		err = s.rollback(tx, fmt.Errorf("failed to read new balance: %w", execErr))
		return 0, err
	}

	if err = tx.Commit(); err != nil {
		err = fmt.Errorf("failed to commit transaction: %w", err)
		slog.Error("failed to commit transaction", "method", "CreatePending", "error", err)
		return 0, err
	}

	wd.Status = models.WithdrawalPending
	slog.Info("withdrawal created", "method", "CreatePending", "id", wd.ID, "user_id", wd.UserID, "amount", wd.Amount, "new_balance", newBalance)
	return newBalance, nil
}

func (s *WithdrawalStore) rollback(tx *sql.Tx, cause error) error {
	if rbErr := tx.Rollback(); rbErr != nil {
		slog.Error("rollback failed", "error", rbErr)
		return fmt.Errorf("rollback failed: %v; original error: %w", rbErr, cause)
	}
	return cause
}

const withdrawalColumns = `id, user_id, amount, payment_method, account_number, order_id, status, created_at, processed_at`

func scanWithdrawal(scan func(dest ...interface{}) error) (*models.Withdrawal, error) {
	var wd models.Withdrawal
	var processedAt sql.NullTime
	err := scan(
		&wd.ID, &wd.UserID, &wd.Amount, &wd.PaymentMethod, &wd.AccountNumber,
		&wd.OrderID, &wd.Status, &wd.CreatedAt, &processedAt,
	)
	if err != nil {
		return nil, err
	}
	if processedAt.Valid {
		wd.ProcessedAt = &processedAt.Time
	}
	return &wd, nil
}

func (s *WithdrawalStore) GetByID(ctx context.Context, id int64) (*models.Withdrawal, error) {
	query := s.dialect.rebind(`SELECT ` + withdrawalColumns + ` FROM withdrawals WHERE id = $1`)
	wd, err := scanWithdrawal(s.db.QueryRowContext(ctx, query, id).Scan)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrWithdrawalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get withdrawal: %w", err)
	}
	return wd, nil
}

func (s *WithdrawalStore) ListByUser(ctx context.Context, userID int64) ([]models.Withdrawal, error) {
	query := s.dialect.rebind(`SELECT ` + withdrawalColumns + ` FROM withdrawals WHERE user_id = $1 ORDER BY created_at DESC`)
	return s.list(ctx, query, userID)
}

func (s *WithdrawalStore) ListByStatus(ctx context.Context, status models.WithdrawalStatus, limit, offset int) ([]models.Withdrawal, error) {
	query := s.dialect.rebind(`SELECT ` + withdrawalColumns + ` FROM withdrawals WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`)
	return s.list(ctx, query, status, limit, offset)
}

func (s *WithdrawalStore) list(ctx context.Context, query string, args ...interface{}) ([]models.Withdrawal, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list withdrawals: %w", err)
	}
	defer rows.Close()

	var withdrawals []models.Withdrawal
	for rows.Next() {
		wd, err := scanWithdrawal(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan withdrawal: %w", err)
		}
		withdrawals = append(withdrawals, *wd)
	}
	return withdrawals, rows.Err()
}

// Approve stamps processed_at. The money already left the balance when the
// withdrawal was submitted, so no further mutation happens here.
func (s *WithdrawalStore) Approve(ctx context.Context, id int64) error {
	query := s.dialect.rebind(`
		UPDATE withdrawals
		SET status = $1, processed_at = CURRENT_TIMESTAMP
		WHERE id = $2 AND status = $3`)
	res, err := s.db.ExecContext(ctx, query, models.WithdrawalApproved, id, models.WithdrawalPending)
	if err != nil {
		return fmt.Errorf("failed to approve withdrawal: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to approve withdrawal: %w", err)
	}
	if affected == 0 {
		return pkgerrors.ErrInvalidTransition
	}
	slog.Info("withdrawal approved", "withdrawal_id", id)
	return nil
}

// Reject refunds the held amount and flips the status in one transaction.
// The status guard makes the refund exactly-once.
func (s *WithdrawalStore) Reject(ctx context.Context, id int64) (float64, error) {
	var err error
	tracer := otel.Tracer("withdrawal-store")
	ctx, span := tracer.Start(ctx, "RejectWithdrawal")
	span.SetAttributes(attribute.Int64("withdrawal_id", id))
	defer span.End()

	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.RepositoryCalls.WithLabelValues("RejectWithdrawal", status).Inc()
		observability.RepositoryDuration.WithLabelValues("RejectWithdrawal").Observe(time.Since(start).Seconds())
	}()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		err = fmt.Errorf("failed to begin transaction: %w", err)
		return 0, err
	}

	flip := s.dialect.rebind(`
		UPDATE withdrawals
		SET status = $1, processed_at = CURRENT_TIMESTAMP
		WHERE id = $2 AND status = $3`)
	res, execErr := tx.ExecContext(ctx, flip, models.WithdrawalRejected, id, models.WithdrawalPending)
	if execErr != nil {
		err = s.rollback(tx, fmt.Errorf("failed to reject withdrawal: %w", execErr))
		return 0, err
	}
	affected, execErr := res.RowsAffected()
	if execErr != nil {
		err = s.rollback(tx, fmt.Errorf("failed to reject withdrawal: %w", execErr))
		return 0, err
	}
	if affected == 0 {
		err = s.rollback(tx, pkgerrors.ErrInvalidTransition)
		return 0, err
	}

	var userID int64
	var amount float64
	execErr = tx.QueryRowContext(ctx, s.dialect.rebind(`SELECT user_id, amount FROM withdrawals WHERE id = $1`), id).Scan(&userID, &amount)
	if execErr != nil {
		err = s.rollback(tx, fmt.Errorf("failed to read withdrawal: %w", execErr))
		return 0, err
	}

	refund := s.dialect.rebind(`UPDATE users SET balance = balance + $1 WHERE id = $2`)
	if _, execErr = tx.ExecContext(ctx, refund, amount, userID); execErr != nil {
		err = s.rollback(tx, fmt.Errorf("failed to refund balance: %w", execErr))
		return 0, err
	}

	if err = tx.Commit(); err != nil {
		err = fmt.Errorf("failed to commit transaction: %w", err)
		return 0, err
	}

	slog.Info("withdrawal rejected and refunded", "withdrawal_id", id, "user_id", userID, "amount", amount)
	return amount, nil
}
