package errors

import "errors"

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserAlreadyExists  = errors.New("username or email already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNilUser            = errors.New("user is nil")

	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrBalanceLocked     = errors.New("balance is locked by another operation")

	ErrInvestmentNotFound     = errors.New("investment not found")
	ErrNilInvestment          = errors.New("investment is nil")
	ErrBelowMinimumInvestment = errors.New("investment amount is below the minimum of Rs 500")
	ErrInvalidContactNumber   = errors.New("contact number must be 11 digits")
	ErrScreenshotRequired     = errors.New("payment screenshot is required")
	ErrScreenshotTooLarge     = errors.New("screenshot exceeds the 5 MB limit")
	ErrScreenshotBadType      = errors.New("screenshot must be png, jpg, jpeg or gif")

	ErrWithdrawalNotFound     = errors.New("withdrawal not found")
	ErrNilWithdrawal          = errors.New("withdrawal is nil")
	ErrBelowMinimumWithdrawal = errors.New("withdrawal amount is below the minimum of Rs 250")
	ErrInvalidPaymentMethod   = errors.New("payment method must be easypaisa or jazzcash")
	ErrInvalidAccountNumber   = errors.New("account number must be at least 11 characters")

	ErrInvalidTransition       = errors.New("entity is not pending")
	ErrRequestAlreadyProcessed = errors.New("request already processed")

	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")
)
