package models

import "time"

// PlanDurationDays is how long a plan pays out; total return is always
// daily income times this.
const PlanDurationDays = 30

type Investment struct {
	ID             int64            `json:"id"`
	UserID         int64            `json:"user_id"`
	PlanName       string           `json:"plan_name"`
	Amount         float64          `json:"amount"`
	DailyIncome    float64          `json:"daily_income"`
	TotalReturn    float64          `json:"total_return"`
	DaysCompleted  int              `json:"days_completed"`
	DaysRemaining  int              `json:"days_remaining"`
	Screenshot     string           `json:"screenshot"`
	WhatsappNumber string           `json:"whatsapp_number"`
	OrderID        string           `json:"order_id"`
	Status         InvestmentStatus `json:"status"`
	CreatedAt      time.Time        `json:"created_at"`
	ApprovedAt     *time.Time       `json:"approved_at,omitempty"`
}

type InvestmentStatus string

const (
	InvestmentPending   InvestmentStatus = "pending"
	InvestmentActive    InvestmentStatus = "active"
	InvestmentCompleted InvestmentStatus = "completed"
	InvestmentRejected  InvestmentStatus = "rejected"
)
