package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path"
	"regexp"
	"strings"
	"time"

	stderrors "errors"

	"github.com/google/uuid"
	"github.com/investapk/investa-backend/internal/infrastructure/auth"
	"github.com/investapk/investa-backend/internal/infrastructure/kafka"
	"github.com/investapk/investa-backend/internal/infrastructure/observability"
	"github.com/investapk/investa-backend/internal/infrastructure/redis"
	"github.com/investapk/investa-backend/internal/infrastructure/storage"
	"github.com/investapk/investa-backend/internal/models"
	"github.com/investapk/investa-backend/internal/repository"
	pkgerrors "github.com/investapk/investa-backend/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/crypto/bcrypt"
)

const (
	MinInvestmentAmount = 500.0
	MinWithdrawalAmount = 250.0
	MaxScreenshotSize   = 5 << 20

	// adminUserID keys the admin session's token cache entry.
	adminUserID = 0

	auditTopic = "audit"
)

var contactNumberRe = regexp.MustCompile(`^\d{11}$`)

var allowedScreenshotExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
}

type RegisterInput struct {
	Username        string
	Email           string
	Password        string
	ConfirmPassword string
	WhatsappNumber  string
	ReferralCode    string
}

type SubmitInvestmentInput struct {
	PlanName       string
	Amount         float64
	DailyIncome    float64
	WhatsappNumber string
	ScreenshotName string
	ScreenshotSize int64
	Screenshot     io.Reader
}

type WithdrawalInput struct {
	Amount        float64
	PaymentMethod string
	AccountNumber string
}

type Dashboard struct {
	User          *models.User        `json:"user"`
	Balance       float64             `json:"balance"`
	Investments   []models.Investment `json:"investments"`
	Withdrawals   []models.Withdrawal `json:"withdrawals"`
	TotalEarnings float64             `json:"total_earnings"`
}

type InvestService interface {
	Register(ctx context.Context, in RegisterInput) (*models.User, error)
	Login(ctx context.Context, username, password string) (string, error)
	AdminLogin(ctx context.Context, username, password string) (string, error)
	Logout(ctx context.Context, userID int64) error

	GetDashboard(ctx context.Context, userID int64) (*Dashboard, error)
	ReferralCode(ctx context.Context, userID int64) (string, error)

	SubmitInvestment(ctx context.Context, userID int64, in SubmitInvestmentInput) (*models.Investment, error)
	RequestWithdrawal(ctx context.Context, userID int64, in WithdrawalInput) (*models.Withdrawal, error)
	ListWithdrawals(ctx context.Context, userID int64) ([]models.Withdrawal, error)

	ListInvestmentsByStatus(ctx context.Context, status models.InvestmentStatus, page, limit int) ([]models.Investment, error)
	ListWithdrawalsByStatus(ctx context.Context, status models.WithdrawalStatus, page, limit int) ([]models.Withdrawal, error)
	ApproveInvestment(ctx context.Context, id int64, requestID string) error
	RejectInvestment(ctx context.Context, id int64, requestID string) error
	ApproveWithdrawal(ctx context.Context, id int64, requestID string) error
	RejectWithdrawal(ctx context.Context, id int64, requestID string) error
}

type investService struct {
	userRepo       repository.UserRepository
	investmentRepo repository.InvestmentRepository
	withdrawalRepo repository.WithdrawalRepository
	earningRepo    repository.EarningRepository
	redisClient    redis.RedisClient
	producer       kafka.KafkaProducer
	store          storage.Storage
	jwtSecret      string
	adminUsername  string
	adminPassword  string
}

func NewInvestService(
	userRepo repository.UserRepository,
	investmentRepo repository.InvestmentRepository,
	withdrawalRepo repository.WithdrawalRepository,
	earningRepo repository.EarningRepository,
	redisClient redis.RedisClient,
	producer kafka.KafkaProducer,
	store storage.Storage,
	jwtSecret, adminUsername, adminPassword string,
) *investService {
	return &investService{
		userRepo:       userRepo,
		investmentRepo: investmentRepo,
		withdrawalRepo: withdrawalRepo,
		earningRepo:    earningRepo,
		redisClient:    redisClient,
		producer:       producer,
		store:          store,
		jwtSecret:      jwtSecret,
		adminUsername:  adminUsername,
		adminPassword:  adminPassword,
	}
}

func (s *investService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	tracer := otel.Tracer("invest-service")
	ctx, span := tracer.Start(ctx, "Register")
	defer span.End()

	if in.Username == "" || in.Email == "" || in.Password == "" {
		span.SetStatus(codes.Error, "empty username, email or password")
		return nil, pkgerrors.ErrInvalidInput
	}
	if in.Password != in.ConfirmPassword {
		span.SetStatus(codes.Error, "passwords do not match")
		return nil, fmt.Errorf("%w: passwords do not match", pkgerrors.ErrInvalidInput)
	}
	if in.WhatsappNumber != "" && !contactNumberRe.MatchString(in.WhatsappNumber) {
		span.SetStatus(codes.Error, "invalid contact number")
		return nil, pkgerrors.ErrInvalidContactNumber
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "password hashing failed")
		slog.Error("failed to hash password", "username", in.Username, "error", err)
		return nil, fmt.Errorf("%w: failed to hash password", pkgerrors.ErrInternal)
	}

	user := &models.User{
		Username:       in.Username,
		Email:          in.Email,
		PasswordHash:   string(hash),
		WhatsappNumber: in.WhatsappNumber,
	}

	// A referral code that does not resolve is dropped, not an error.
	if in.ReferralCode != "" {
		referrer, err := s.userRepo.GetByReferralCode(ctx, in.ReferralCode)
		if err == nil {
			user.ReferredBy = in.ReferralCode
			slog.Info("registration attributed to referrer", "username", in.Username, "referrer_id", referrer.ID)
		} else if !stderrors.Is(err, pkgerrors.ErrUserNotFound) {
			span.RecordError(err)
			slog.Error("failed to resolve referral code", "code", in.ReferralCode, "error", err)
		}
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if stderrors.Is(err, pkgerrors.ErrUserAlreadyExists) {
			span.SetStatus(codes.Error, "user already exists")
			slog.Warn("username or email already exists", "username", in.Username)
			return nil, pkgerrors.ErrUserAlreadyExists
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "user creation failed")
		slog.Error("failed to create user in DB", "username", in.Username, "error", err)
		return nil, fmt.Errorf("%w: failed to create user", pkgerrors.ErrInternal)
	}

	s.publishAudit(user.ID, map[string]interface{}{
		"event_type": "user_registered",
		"user_id":    user.ID,
		"username":   user.Username,
		"created_at": time.Now().UTC().Format(time.RFC3339),
	})

	slog.Info("user registered successfully", "user_id", user.ID, "username", user.Username)
	return user, nil
}

func (s *investService) Login(ctx context.Context, username, password string) (string, error) {
	tracer := otel.Tracer("invest-service")
	ctx, span := tracer.Start(ctx, "Login")
	defer span.End()

	user, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		slog.Error("failed to login", "username", username, "error", err)
		return "", pkgerrors.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		slog.Error("invalid password", "username", username)
		return "", pkgerrors.ErrInvalidCredentials
	}

	tokenString, err := auth.GenerateToken(user.ID, false, s.jwtSecret)
	if err != nil {
		slog.Error("failed to generate JWT", "error", err)
		return "", err
	}

	if err := s.redisClient.Set(ctx, fmt.Sprintf("user:%d:token", user.ID), tokenString, auth.TokenTTL); err != nil {
		slog.Error("failed to cache JWT", "user_id", user.ID, "error", err)
	}

	slog.Info("user logged in", "username", username, "user_id", user.ID)
	return tokenString, nil
}

func (s *investService) AdminLogin(ctx context.Context, username, password string) (string, error) {
	tracer := otel.Tracer("invest-service")
	ctx, span := tracer.Start(ctx, "AdminLogin")
	defer span.End()

	if username != s.adminUsername || password != s.adminPassword {
		slog.Warn("admin login refused", "username", username)
		span.SetStatus(codes.Error, "invalid admin credentials")
		return "", pkgerrors.ErrInvalidCredentials
	}

	tokenString, err := auth.GenerateToken(adminUserID, true, s.jwtSecret)
	if err != nil {
		slog.Error("failed to generate admin JWT", "error", err)
		return "", err
	}

	if err := s.redisClient.Set(ctx, fmt.Sprintf("user:%d:token", adminUserID), tokenString, auth.TokenTTL); err != nil {
		slog.Error("failed to cache admin JWT", "error", err)
	}

	slog.Info("admin logged in", "username", username)
	return tokenString, nil
}

func (s *investService) Logout(ctx context.Context, userID int64) error {
	if err := s.redisClient.Del(ctx, fmt.Sprintf("user:%d:token", userID)); err != nil {
		slog.Error("failed to revoke token", "user_id", userID, "error", err)
		return err
	}
	slog.Info("user logged out", "user_id", userID)
	return nil
}

func (s *investService) GetDashboard(ctx context.Context, userID int64) (*Dashboard, error) {
	tracer := otel.Tracer("invest-service")
	ctx, span := tracer.Start(ctx, "GetDashboard")
	defer span.End()

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		slog.Error("failed to get user", "user_id", userID, "error", err)
		return nil, err
	}

	balance, err := s.cachedBalance(ctx, userID)
	if err != nil {
		return nil, err
	}

	investments, err := s.investmentRepo.ListByUser(ctx, userID)
	if err != nil {
		slog.Error("failed to list investments", "user_id", userID, "error", err)
		return nil, err
	}

	withdrawals, err := s.withdrawalRepo.ListByUser(ctx, userID)
	if err != nil {
		slog.Error("failed to list withdrawals", "user_id", userID, "error", err)
		return nil, err
	}

	totalEarnings, err := s.earningRepo.TotalByUser(ctx, userID)
	if err != nil {
		slog.Error("failed to total earnings", "user_id", userID, "error", err)
		return nil, err
	}

	return &Dashboard{
		User:          user,
		Balance:       balance,
		Investments:   investments,
		Withdrawals:   withdrawals,
		TotalEarnings: totalEarnings,
	}, nil
}

// cachedBalance reads the balance through a short-lived Redis cache and
// falls back to the database.
func (s *investService) cachedBalance(ctx context.Context, userID int64) (float64, error) {
	balanceKey := fmt.Sprintf("user:%d:balance", userID)
	if balanceStr, err := s.redisClient.Get(ctx, balanceKey); err == nil {
		var balance float64
		if err := json.Unmarshal([]byte(balanceStr), &balance); err == nil {
			return balance, nil
		}
		slog.Error("failed to unmarshal cached balance", "user_id", userID)
	}

	balance, err := s.userRepo.GetBalance(ctx, userID)
	if err != nil {
		slog.Error("failed to get balance", "user_id", userID, "error", err)
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}

	if err := s.redisClient.Set(ctx, balanceKey, balance, 5*time.Minute); err != nil {
		slog.Error("failed to cache balance", "user_id", userID, "error", err)
	}
	return balance, nil
}

func (s *investService) SubmitInvestment(ctx context.Context, userID int64, in SubmitInvestmentInput) (*models.Investment, error) {
	tracer := otel.Tracer("invest-service")
	ctx, span := tracer.Start(ctx, "SubmitInvestment")
	defer span.End()

	if in.PlanName == "" || in.DailyIncome <= 0 {
		span.SetStatus(codes.Error, "missing plan fields")
		return nil, pkgerrors.ErrInvalidInput
	}
	if in.Amount < MinInvestmentAmount {
		span.SetStatus(codes.Error, "amount below minimum")
		return nil, pkgerrors.ErrBelowMinimumInvestment
	}
	if !contactNumberRe.MatchString(in.WhatsappNumber) {
		span.SetStatus(codes.Error, "invalid contact number")
		return nil, pkgerrors.ErrInvalidContactNumber
	}
	if in.Screenshot == nil || in.ScreenshotSize <= 0 {
		span.SetStatus(codes.Error, "screenshot missing")
		return nil, pkgerrors.ErrScreenshotRequired
	}
	if in.ScreenshotSize > MaxScreenshotSize {
		span.SetStatus(codes.Error, "screenshot too large")
		return nil, pkgerrors.ErrScreenshotTooLarge
	}
	ext := strings.ToLower(path.Ext(in.ScreenshotName))
	if !allowedScreenshotExts[ext] {
		span.SetStatus(codes.Error, "screenshot bad type")
		return nil, pkgerrors.ErrScreenshotBadType
	}

	objectName := fmt.Sprintf("screenshots/%d/%d%s", userID, time.Now().UnixNano(), ext)
	if err := s.store.Save(ctx, objectName, in.Screenshot, in.ScreenshotSize); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "screenshot storage failed")
		slog.Error("failed to store screenshot", "user_id", userID, "error", err)
		return nil, fmt.Errorf("%w: failed to store screenshot", pkgerrors.ErrInternal)
	}

	inv := &models.Investment{
		UserID:         userID,
		PlanName:       in.PlanName,
		Amount:         in.Amount,
		DailyIncome:    in.DailyIncome,
		TotalReturn:    in.DailyIncome * models.PlanDurationDays,
		DaysRemaining:  models.PlanDurationDays,
		Screenshot:     objectName,
		WhatsappNumber: in.WhatsappNumber,
		OrderID:        uuid.NewString(),
		Status:         models.InvestmentPending,
	}

	if _, err := s.investmentRepo.Create(ctx, inv); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "investment creation failed")
		return nil, err
	}

	s.publishAudit(userID, map[string]interface{}{
		"event_type":    "investment_submitted",
		"investment_id": inv.ID,
		"user_id":       userID,
		"plan_name":     inv.PlanName,
		"amount":        inv.Amount,
		"order_id":      inv.OrderID,
		"created_at":    time.Now().UTC().Format(time.RFC3339),
	})

	slog.Info("investment submitted", "investment_id", inv.ID, "user_id", userID, "plan", inv.PlanName, "amount", inv.Amount)
	return inv, nil
}

func (s *investService) RequestWithdrawal(ctx context.Context, userID int64, in WithdrawalInput) (*models.Withdrawal, error) {
	tracer := otel.Tracer("invest-service")
	ctx, span := tracer.Start(ctx, "RequestWithdrawal")
	defer span.End()

	if in.Amount < MinWithdrawalAmount {
		span.SetStatus(codes.Error, "amount below minimum")
		return nil, pkgerrors.ErrBelowMinimumWithdrawal
	}
	method := models.PaymentMethod(in.PaymentMethod)
	if method != models.MethodEasypaisa && method != models.MethodJazzcash {
		span.SetStatus(codes.Error, "invalid payment method")
		return nil, pkgerrors.ErrInvalidPaymentMethod
	}
	if len(in.AccountNumber) < 11 {
		span.SetStatus(codes.Error, "invalid account number")
		return nil, pkgerrors.ErrInvalidAccountNumber
	}

	lockKey := fmt.Sprintf("user:%d:lock", userID)
	ok, err := s.redisClient.SetNX(ctx, lockKey, "locked", 3*time.Second)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to acquire lock")
		slog.Error("failed to acquire balance lock", "user_id", userID, "error", err)
		return nil, pkgerrors.ErrBalanceLocked
	}
	if !ok {
		span.SetStatus(codes.Error, "balance is locked")
		slog.Error("balance is locked", "user_id", userID)
		return nil, pkgerrors.ErrBalanceLocked
	}
	defer s.redisClient.Del(ctx, lockKey)

	wd := &models.Withdrawal{
		UserID:        userID,
		Amount:        in.Amount,
		PaymentMethod: method,
		AccountNumber: in.AccountNumber,
		OrderID:       uuid.NewString(),
	}

	newBalance, err := s.withdrawalRepo.CreatePending(ctx, wd)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "withdrawal creation failed")
		return nil, err
	}

	s.redisClient.Del(ctx, fmt.Sprintf("user:%d:balance", userID))

	s.publishAudit(userID, map[string]interface{}{
		"event_type":     "withdrawal_requested",
		"withdrawal_id":  wd.ID,
		"user_id":        userID,
		"amount":         wd.Amount,
		"payment_method": string(wd.PaymentMethod),
		"order_id":       wd.OrderID,
		"new_balance":    newBalance,
		"created_at":     time.Now().UTC().Format(time.RFC3339),
	})

	slog.Info("withdrawal requested", "withdrawal_id", wd.ID, "user_id", userID, "amount", wd.Amount, "new_balance", newBalance)
	return wd, nil
}

func (s *investService) ListWithdrawals(ctx context.Context, userID int64) ([]models.Withdrawal, error) {
	return s.withdrawalRepo.ListByUser(ctx, userID)
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	return limit, (page - 1) * limit
}

func (s *investService) ListInvestmentsByStatus(ctx context.Context, status models.InvestmentStatus, page, limit int) ([]models.Investment, error) {
	if status == "" {
		status = models.InvestmentPending
	}
	limit, offset := normalizePage(page, limit)
	return s.investmentRepo.ListByStatus(ctx, status, limit, offset)
}

func (s *investService) ListWithdrawalsByStatus(ctx context.Context, status models.WithdrawalStatus, page, limit int) ([]models.Withdrawal, error) {
	if status == "" {
		status = models.WithdrawalPending
	}
	limit, offset := normalizePage(page, limit)
	return s.withdrawalRepo.ListByStatus(ctx, status, limit, offset)
}

// claimRequest is the idempotency gate for admin decisions: the first caller
// claims the request id, repeats are refused.
func (s *investService) claimRequest(ctx context.Context, requestID string) (string, error) {
	requestKey := fmt.Sprintf("request:%s", requestID)
	if val, err := s.redisClient.Get(ctx, requestKey); err == nil {
		slog.Error("request already processed", "request_id", requestID, "status", val)
		return "", pkgerrors.ErrRequestAlreadyProcessed
	}
	if err := s.redisClient.Set(ctx, requestKey, "pending", 24*time.Hour); err != nil {
		slog.Error("failed to set request key", "request_id", requestID, "error", err)
		return "", err
	}
	return requestKey, nil
}

func (s *investService) ApproveInvestment(ctx context.Context, id int64, requestID string) error {
	tracer := otel.Tracer("invest-service")
	ctx, span := tracer.Start(ctx, "ApproveInvestment")
	defer span.End()

	requestKey, err := s.claimRequest(ctx, requestID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if err := s.investmentRepo.Approve(ctx, id); err != nil {
		s.redisClient.Del(ctx, requestKey)
		span.RecordError(err)
		span.SetStatus(codes.Error, "approval failed")
		return err
	}

	observability.ApprovalDecisions.WithLabelValues("investment", "approve").Inc()
	s.publishAudit(id, map[string]interface{}{
		"event_type":    "investment_approved",
		"investment_id": id,
		"request_id":    requestID,
		"created_at":    time.Now().UTC().Format(time.RFC3339),
	})
	slog.Info("investment approved", "investment_id", id, "request_id", requestID)
	return nil
}

func (s *investService) RejectInvestment(ctx context.Context, id int64, requestID string) error {
	tracer := otel.Tracer("invest-service")
	ctx, span := tracer.Start(ctx, "RejectInvestment")
	defer span.End()

	requestKey, err := s.claimRequest(ctx, requestID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if err := s.investmentRepo.Reject(ctx, id); err != nil {
		s.redisClient.Del(ctx, requestKey)
		span.RecordError(err)
		span.SetStatus(codes.Error, "rejection failed")
		return err
	}

	observability.ApprovalDecisions.WithLabelValues("investment", "reject").Inc()
	s.publishAudit(id, map[string]interface{}{
		"event_type":    "investment_rejected",
		"investment_id": id,
		"request_id":    requestID,
		"created_at":    time.Now().UTC().Format(time.RFC3339),
	})
	slog.Info("investment rejected", "investment_id", id, "request_id", requestID)
	return nil
}

func (s *investService) ApproveWithdrawal(ctx context.Context, id int64, requestID string) error {
	tracer := otel.Tracer("invest-service")
	ctx, span := tracer.Start(ctx, "ApproveWithdrawal")
	defer span.End()

	requestKey, err := s.claimRequest(ctx, requestID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if err := s.withdrawalRepo.Approve(ctx, id); err != nil {
		s.redisClient.Del(ctx, requestKey)
		span.RecordError(err)
		span.SetStatus(codes.Error, "approval failed")
		return err
	}

	observability.ApprovalDecisions.WithLabelValues("withdrawal", "approve").Inc()
	s.publishAudit(id, map[string]interface{}{
		"event_type":    "withdrawal_approved",
		"withdrawal_id": id,
		"request_id":    requestID,
		"created_at":    time.Now().UTC().Format(time.RFC3339),
	})
	slog.Info("withdrawal approved", "withdrawal_id", id, "request_id", requestID)
	return nil
}

func (s *investService) RejectWithdrawal(ctx context.Context, id int64, requestID string) error {
	tracer := otel.Tracer("invest-service")
	ctx, span := tracer.Start(ctx, "RejectWithdrawal")
	defer span.End()

	requestKey, err := s.claimRequest(ctx, requestID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	wd, err := s.withdrawalRepo.GetByID(ctx, id)
	if err != nil {
		s.redisClient.Del(ctx, requestKey)
		span.RecordError(err)
		return err
	}

	refunded, err := s.withdrawalRepo.Reject(ctx, id)
	if err != nil {
		s.redisClient.Del(ctx, requestKey)
		span.RecordError(err)
		span.SetStatus(codes.Error, "rejection failed")
		return err
	}

	s.redisClient.Del(ctx, fmt.Sprintf("user:%d:balance", wd.UserID))

	observability.ApprovalDecisions.WithLabelValues("withdrawal", "reject").Inc()
	s.publishAudit(id, map[string]interface{}{
		"event_type":    "withdrawal_rejected",
		"withdrawal_id": id,
		"user_id":       wd.UserID,
		"refunded":      refunded,
		"request_id":    requestID,
		"created_at":    time.Now().UTC().Format(time.RFC3339),
	})
	slog.Info("withdrawal rejected", "withdrawal_id", id, "user_id", wd.UserID, "refunded", refunded)
	return nil
}

// publishAudit sends an audit event in the background, retrying a few times
// before giving up.
func (s *investService) publishAudit(key int64, event map[string]interface{}) {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to marshal audit event", "error", err)
		return
	}
	go func() {
		retries := 3
		for i := 0; i < retries; i++ {
			if err := s.producer.Send(context.Background(), auditTopic, key, eventBytes); err == nil {
				return
			}
			time.Sleep(time.Second * time.Duration(i+1))
		}
		slog.Error("failed to send audit event after retries", "event_type", event["event_type"])
	}()
}
