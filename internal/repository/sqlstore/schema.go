package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
)

// EnsureSchema creates the tables on first start and probes for columns
// added after the initial release. There is no migration tool; additive
// ALTER TABLE probing at startup is the whole story.
func EnsureSchema(ctx context.Context, db *sql.DB, dialect Dialect) error {
	serial := "BIGSERIAL PRIMARY KEY"
	if dialect == DialectSQLite {
		serial = "INTEGER PRIMARY KEY AUTOINCREMENT"
	}

	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS users (
			id %s,
			username TEXT UNIQUE NOT NULL,
			email TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			balance DOUBLE PRECISION NOT NULL DEFAULT 0,
			referral_code TEXT,
			referred_by TEXT,
			whatsapp_number TEXT NOT NULL DEFAULT '',
			easypaisa_number TEXT NOT NULL DEFAULT '',
			jazzcash_number TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`, serial),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS investments (
			id %s,
			user_id BIGINT NOT NULL,
			plan_name TEXT NOT NULL,
			amount DOUBLE PRECISION NOT NULL,
			daily_income DOUBLE PRECISION NOT NULL,
			total_return DOUBLE PRECISION NOT NULL,
			days_completed INTEGER NOT NULL DEFAULT 0,
			days_remaining INTEGER NOT NULL DEFAULT 30,
			screenshot TEXT NOT NULL,
			whatsapp_number TEXT NOT NULL DEFAULT '',
			order_id TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			approved_at TIMESTAMP
		)`, serial),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS withdrawals (
			id %s,
			user_id BIGINT NOT NULL,
			amount DOUBLE PRECISION NOT NULL,
			payment_method TEXT NOT NULL,
			account_number TEXT NOT NULL,
			order_id TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			processed_at TIMESTAMP
		)`, serial),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS daily_earnings (
			id %s,
			investment_id BIGINT NOT NULL,
			user_id BIGINT NOT NULL,
			amount DOUBLE PRECISION NOT NULL,
			day_number INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`, serial),
		// Not unique: referral code issuance is best effort and may assign a
		// colliding code after exhausting its retries.
		`CREATE INDEX IF NOT EXISTS idx_users_referral_code ON users (referral_code)`,
		`CREATE INDEX IF NOT EXISTS idx_investments_user ON investments (user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_investments_status ON investments (status)`,
		`CREATE INDEX IF NOT EXISTS idx_withdrawals_user ON withdrawals (user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_withdrawals_status ON withdrawals (status)`,
		`CREATE INDEX IF NOT EXISTS idx_daily_earnings_user ON daily_earnings (user_id)`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}

	// Columns that arrived after the first deployed schema.
	probes := map[string]string{
		"users":       `ALTER TABLE users ADD COLUMN referred_by TEXT`,
		"investments": `ALTER TABLE investments ADD COLUMN whatsapp_number TEXT NOT NULL DEFAULT ''`,
		"withdrawals": `ALTER TABLE withdrawals ADD COLUMN order_id TEXT NOT NULL DEFAULT ''`,
	}
	for table, stmt := range probes {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			if isDuplicateColumn(err) {
				continue
			}
			slog.Warn("column probe failed", "table", table, "error", err)
		}
	}

	slog.Info("database schema ensured", "dialect", dialect)
	return nil
}

func isDuplicateColumn(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate column") || strings.Contains(msg, "already exists")
}
