package models

import "time"

// DailyEarning is one credited day of an active investment.
type DailyEarning struct {
	ID           int64     `json:"id"`
	InvestmentID int64     `json:"investment_id"`
	UserID       int64     `json:"user_id"`
	Amount       float64   `json:"amount"`
	DayNumber    int       `json:"day_number"`
	CreatedAt    time.Time `json:"created_at"`
}
