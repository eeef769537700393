package models

import "time"

type Withdrawal struct {
	ID            int64            `json:"id"`
	UserID        int64            `json:"user_id"`
	Amount        float64          `json:"amount"`
	PaymentMethod PaymentMethod    `json:"payment_method"`
	AccountNumber string           `json:"account_number"`
	OrderID       string           `json:"order_id"`
	Status        WithdrawalStatus `json:"status"`
	CreatedAt     time.Time        `json:"created_at"`
	ProcessedAt   *time.Time       `json:"processed_at,omitempty"`
}

type PaymentMethod string

const (
	MethodEasypaisa PaymentMethod = "easypaisa"
	MethodJazzcash  PaymentMethod = "jazzcash"
)

type WithdrawalStatus string

const (
	WithdrawalPending  WithdrawalStatus = "pending"
	WithdrawalApproved WithdrawalStatus = "approved"
	WithdrawalRejected WithdrawalStatus = "rejected"
)
