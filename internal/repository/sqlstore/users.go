package sqlstore

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/investapk/investa-backend/internal/models"
	pkgerrors "github.com/investapk/investa-backend/pkg/errors"
	"github.com/lib/pq"
)

type UserStore struct {
	db      *sql.DB
	dialect Dialect
}

func NewUserStore(db *sql.DB, dialect Dialect) *UserStore {
	return &UserStore{db: db, dialect: dialect}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) && pqErr.Code == "23505" {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (s *UserStore) Create(ctx context.Context, user *models.User) error {
	if user == nil {
		return pkgerrors.ErrNilUser
	}
	if user.Username == "" {
		return fmt.Errorf("username is required")
	}
	if user.Email == "" {
		return fmt.Errorf("email is required")
	}
	if user.PasswordHash == "" {
		return fmt.Errorf("password_hash is required")
	}

	query := s.dialect.rebind(`
	INSERT INTO users (username, email, password_hash, balance, referred_by, whatsapp_number, easypaisa_number, jazzcash_number)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`)

	if s.dialect.supportsReturning() {
		err := s.db.QueryRowContext(ctx, query+` RETURNING id, created_at`,
			user.Username, user.Email, user.PasswordHash, user.Balance,
			user.ReferredBy, user.WhatsappNumber, user.EasypaisaNo, user.JazzcashNo,
		).Scan(&user.ID, &user.CreatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return pkgerrors.ErrUserAlreadyExists
			}
			return fmt.Errorf("failed to create user: %w", err)
		}
		return nil
	}

	res, err := s.db.ExecContext(ctx, query,
		user.Username, user.Email, user.PasswordHash, user.Balance,
		user.ReferredBy, user.WhatsappNumber, user.EasypaisaNo, user.JazzcashNo)
	if err != nil {
		if isUniqueViolation(err) {
			return pkgerrors.ErrUserAlreadyExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	user.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read new user id: %w", err)
	}
	return s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT created_at FROM users WHERE id = $1`), user.ID).Scan(&user.CreatedAt)
}

const userColumns = `id, username, email, password_hash, balance,
	COALESCE(referral_code, ''), COALESCE(referred_by, ''),
	whatsapp_number, easypaisa_number, jazzcash_number, created_at`

func (s *UserStore) scanUser(row *sql.Row) (*models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.Balance,
		&user.ReferralCode, &user.ReferredBy,
		&user.WhatsappNumber, &user.EasypaisaNo, &user.JazzcashNo, &user.CreatedAt,
	)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

func (s *UserStore) GetByID(ctx context.Context, id int64) (*models.User, error) {
	query := s.dialect.rebind(`SELECT ` + userColumns + ` FROM users WHERE id = $1`)
	return s.scanUser(s.db.QueryRowContext(ctx, query, id))
}

func (s *UserStore) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	if username == "" {
		return nil, fmt.Errorf("username cannot be empty")
	}
	query := s.dialect.rebind(`SELECT ` + userColumns + ` FROM users WHERE username = $1`)
	return s.scanUser(s.db.QueryRowContext(ctx, query, username))
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if email == "" {
		return nil, fmt.Errorf("email cannot be empty")
	}
	query := s.dialect.rebind(`SELECT ` + userColumns + ` FROM users WHERE email = $1`)
	return s.scanUser(s.db.QueryRowContext(ctx, query, email))
}

func (s *UserStore) GetByReferralCode(ctx context.Context, code string) (*models.User, error) {
	query := s.dialect.rebind(`SELECT ` + userColumns + ` FROM users WHERE referral_code = $1`)
	return s.scanUser(s.db.QueryRowContext(ctx, query, code))
}

func (s *UserStore) SetReferralCode(ctx context.Context, userID int64, code string) error {
	query := s.dialect.rebind(`UPDATE users SET referral_code = $1 WHERE id = $2`)
	res, err := s.db.ExecContext(ctx, query, code, userID)
	if err != nil {
		return fmt.Errorf("failed to set referral code: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to set referral code: %w", err)
	}
	if affected == 0 {
		return pkgerrors.ErrUserNotFound
	}
	return nil
}

// ChangeBalance applies a delta guarded so the balance can never go
// negative, whatever order concurrent requests land in.
func (s *UserStore) ChangeBalance(ctx context.Context, userID int64, delta float64) (float64, error) {
	query := s.dialect.rebind(`
		UPDATE users
		SET balance = balance + $1
		WHERE id = $2
		AND (balance + $1) >= 0`)

	res, err := s.db.ExecContext(ctx, query, delta, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to change balance: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to change balance: %w", err)
	}
	if affected == 0 {
		slog.Warn("balance change refused", "user_id", userID, "delta", delta)
		return 0, pkgerrors.ErrInsufficientFunds
	}
	return s.GetBalance(ctx, userID)
}

func (s *UserStore) GetBalance(ctx context.Context, userID int64) (float64, error) {
	var balance float64
	query := s.dialect.rebind(`SELECT balance FROM users WHERE id = $1`)
	err := s.db.QueryRowContext(ctx, query, userID).Scan(&balance)
	if stderrors.Is(err, sql.ErrNoRows) {
		return 0, pkgerrors.ErrUserNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}
