package models

import "time"

type User struct {
	ID             int64     `json:"id"`
	Username       string    `json:"username"`
	Email          string    `json:"email"`
	PasswordHash   string    `json:"-"`
	Balance        float64   `json:"balance"`
	ReferralCode   string    `json:"referral_code,omitempty"`
	ReferredBy     string    `json:"referred_by,omitempty"`
	WhatsappNumber string    `json:"whatsapp_number,omitempty"`
	EasypaisaNo    string    `json:"easypaisa_number,omitempty"`
	JazzcashNo     string    `json:"jazzcash_number,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
