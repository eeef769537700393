package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/investapk/investa-backend/internal/infrastructure/redis"
	"github.com/investapk/investa-backend/internal/models"
	pkgerrors "github.com/investapk/investa-backend/pkg/errors"
	"github.com/stretchr/testify/assert"
	"golang.org/x/crypto/bcrypt"
)

// ---- fakes ----

type fakeUserRepo struct {
	mu              sync.Mutex
	users           map[int64]*models.User
	nextID          int64
	codeAlwaysTaken bool
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: map[int64]*models.User{}}
}

func (r *fakeUserRepo) addUser(u *models.User) *models.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	u.ID = r.nextID
	u.CreatedAt = time.Now()
	r.users[u.ID] = u
	return u
}

func (r *fakeUserRepo) Create(ctx context.Context, user *models.User) error {
	r.mu.Lock()
	for _, u := range r.users {
		if u.Username == user.Username || u.Email == user.Email {
			r.mu.Unlock()
			return pkgerrors.ErrUserAlreadyExists
		}
	}
	r.mu.Unlock()
	r.addUser(user)
	return nil
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id int64) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, pkgerrors.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *fakeUserRepo) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, pkgerrors.ErrUserNotFound
}

func (r *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, pkgerrors.ErrUserNotFound
}

func (r *fakeUserRepo) GetByReferralCode(ctx context.Context, code string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.codeAlwaysTaken {
		return &models.User{ID: 999, ReferralCode: code}, nil
	}
	for _, u := range r.users {
		if u.ReferralCode == code && code != "" {
			cp := *u
			return &cp, nil
		}
	}
	return nil, pkgerrors.ErrUserNotFound
}

func (r *fakeUserRepo) SetReferralCode(ctx context.Context, userID int64, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return pkgerrors.ErrUserNotFound
	}
	u.ReferralCode = code
	return nil
}

func (r *fakeUserRepo) ChangeBalance(ctx context.Context, userID int64, delta float64) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return 0, pkgerrors.ErrUserNotFound
	}
	if u.Balance+delta < 0 {
		return 0, pkgerrors.ErrInsufficientFunds
	}
	u.Balance += delta
	return u.Balance, nil
}

func (r *fakeUserRepo) GetBalance(ctx context.Context, userID int64) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return 0, pkgerrors.ErrUserNotFound
	}
	return u.Balance, nil
}

type fakeInvestmentRepo struct {
	mu          sync.Mutex
	investments map[int64]*models.Investment
	nextID      int64
}

func newFakeInvestmentRepo() *fakeInvestmentRepo {
	return &fakeInvestmentRepo{investments: map[int64]*models.Investment{}}
}

func (r *fakeInvestmentRepo) Create(ctx context.Context, inv *models.Investment) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	inv.ID = r.nextID
	inv.CreatedAt = time.Now()
	cp := *inv
	r.investments[inv.ID] = &cp
	return inv.ID, nil
}

func (r *fakeInvestmentRepo) GetByID(ctx context.Context, id int64) (*models.Investment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.investments[id]
	if !ok {
		return nil, pkgerrors.ErrInvestmentNotFound
	}
	cp := *inv
	return &cp, nil
}

func (r *fakeInvestmentRepo) ListByUser(ctx context.Context, userID int64) ([]models.Investment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Investment
	for _, inv := range r.investments {
		if inv.UserID == userID {
			out = append(out, *inv)
		}
	}
	return out, nil
}

func (r *fakeInvestmentRepo) ListByStatus(ctx context.Context, status models.InvestmentStatus, limit, offset int) ([]models.Investment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Investment
	for _, inv := range r.investments {
		if inv.Status == status {
			out = append(out, *inv)
		}
	}
	return out, nil
}

func (r *fakeInvestmentRepo) Approve(ctx context.Context, id int64) error {
	return r.transition(id, models.InvestmentActive)
}

func (r *fakeInvestmentRepo) Reject(ctx context.Context, id int64) error {
	return r.transition(id, models.InvestmentRejected)
}

func (r *fakeInvestmentRepo) transition(id int64, to models.InvestmentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.investments[id]
	if !ok {
		return pkgerrors.ErrInvestmentNotFound
	}
	if inv.Status != models.InvestmentPending {
		return pkgerrors.ErrInvalidTransition
	}
	inv.Status = to
	if to == models.InvestmentActive {
		now := time.Now()
		inv.ApprovedAt = &now
	}
	return nil
}

func (r *fakeInvestmentRepo) ListAccruable(ctx context.Context) ([]models.Investment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Investment
	for _, inv := range r.investments {
		if inv.Status == models.InvestmentActive && inv.DaysRemaining > 0 {
			out = append(out, *inv)
		}
	}
	return out, nil
}

func (r *fakeInvestmentRepo) RecordAccrual(ctx context.Context, id int64) (int, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.investments[id]
	if !ok || inv.Status != models.InvestmentActive || inv.DaysRemaining <= 0 {
		return 0, false, pkgerrors.ErrInvalidTransition
	}
	inv.DaysCompleted++
	inv.DaysRemaining--
	completed := inv.DaysRemaining <= 0
	if completed {
		inv.Status = models.InvestmentCompleted
	}
	return inv.DaysCompleted, completed, nil
}

type fakeWithdrawalRepo struct {
	mu          sync.Mutex
	withdrawals map[int64]*models.Withdrawal
	nextID      int64
	users       *fakeUserRepo
}

func newFakeWithdrawalRepo(users *fakeUserRepo) *fakeWithdrawalRepo {
	return &fakeWithdrawalRepo{withdrawals: map[int64]*models.Withdrawal{}, users: users}
}

func (r *fakeWithdrawalRepo) CreatePending(ctx context.Context, wd *models.Withdrawal) (float64, error) {
	newBalance, err := r.users.ChangeBalance(ctx, wd.UserID, -wd.Amount)
	if err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	wd.ID = r.nextID
	wd.Status = models.WithdrawalPending
	wd.CreatedAt = time.Now()
	cp := *wd
	r.withdrawals[wd.ID] = &cp
	return newBalance, nil
}

func (r *fakeWithdrawalRepo) GetByID(ctx context.Context, id int64) (*models.Withdrawal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wd, ok := r.withdrawals[id]
	if !ok {
		return nil, pkgerrors.ErrWithdrawalNotFound
	}
	cp := *wd
	return &cp, nil
}

func (r *fakeWithdrawalRepo) ListByUser(ctx context.Context, userID int64) ([]models.Withdrawal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Withdrawal
	for _, wd := range r.withdrawals {
		if wd.UserID == userID {
			out = append(out, *wd)
		}
	}
	return out, nil
}

func (r *fakeWithdrawalRepo) ListByStatus(ctx context.Context, status models.WithdrawalStatus, limit, offset int) ([]models.Withdrawal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Withdrawal
	for _, wd := range r.withdrawals {
		if wd.Status == status {
			out = append(out, *wd)
		}
	}
	return out, nil
}

func (r *fakeWithdrawalRepo) Approve(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	wd, ok := r.withdrawals[id]
	if !ok {
		return pkgerrors.ErrWithdrawalNotFound
	}
	if wd.Status != models.WithdrawalPending {
		return pkgerrors.ErrInvalidTransition
	}
	now := time.Now()
	wd.Status = models.WithdrawalApproved
	wd.ProcessedAt = &now
	return nil
}

func (r *fakeWithdrawalRepo) Reject(ctx context.Context, id int64) (float64, error) {
	r.mu.Lock()
	wd, ok := r.withdrawals[id]
	if !ok {
		r.mu.Unlock()
		return 0, pkgerrors.ErrWithdrawalNotFound
	}
	if wd.Status != models.WithdrawalPending {
		r.mu.Unlock()
		return 0, pkgerrors.ErrInvalidTransition
	}
	now := time.Now()
	wd.Status = models.WithdrawalRejected
	wd.ProcessedAt = &now
	amount := wd.Amount
	userID := wd.UserID
	r.mu.Unlock()

	if _, err := r.users.ChangeBalance(ctx, userID, amount); err != nil {
		return 0, err
	}
	return amount, nil
}

type fakeEarningRepo struct {
	mu       sync.Mutex
	earnings []models.DailyEarning
}

func (r *fakeEarningRepo) Create(ctx context.Context, e *models.DailyEarning) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.ID = int64(len(r.earnings) + 1)
	r.earnings = append(r.earnings, *e)
	return e.ID, nil
}

func (r *fakeEarningRepo) ListByUser(ctx context.Context, userID int64) ([]models.DailyEarning, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.DailyEarning
	for _, e := range r.earnings {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeEarningRepo) TotalByUser(ctx context.Context, userID int64) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total float64
	for _, e := range r.earnings {
		if e.UserID == userID {
			total += e.Amount
		}
	}
	return total, nil
}

type fakeRedis struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}}
}

func (r *fakeRedis) Get(ctx context.Context, key string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	val, ok := r.data[key]
	if !ok {
		return "", redis.ErrKeyNotFound
	}
	return val, nil
}

func (r *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[key] = fmt.Sprintf("%v", value)
	return nil
}

func (r *fakeRedis) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[key]; ok {
		return false, nil
	}
	r.data[key] = fmt.Sprintf("%v", value)
	return true, nil
}

func (r *fakeRedis) Del(ctx context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.data, key)
	return nil
}

func (r *fakeRedis) Close() error { return nil }

type fakeProducer struct {
	mu       sync.Mutex
	messages map[string][][]byte
}

func newFakeProducer() *fakeProducer {
	return &fakeProducer{messages: map[string][][]byte{}}
}

func (p *fakeProducer) Send(ctx context.Context, topic string, key int64, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages[topic] = append(p.messages[topic], value)
	return nil
}

func (p *fakeProducer) Close() error { return nil }

func (p *fakeProducer) count(topic string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.messages[topic])
}

type fakeStorage struct {
	mu    sync.Mutex
	saved []string
}

func (s *fakeStorage) Save(ctx context.Context, objectName string, r io.Reader, size int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, objectName)
	return nil
}

// ---- fixtures ----

type fixture struct {
	users       *fakeUserRepo
	investments *fakeInvestmentRepo
	withdrawals *fakeWithdrawalRepo
	earnings    *fakeEarningRepo
	redis       *fakeRedis
	producer    *fakeProducer
	storage     *fakeStorage
	svc         InvestService
}

func newFixture() *fixture {
	users := newFakeUserRepo()
	investments := newFakeInvestmentRepo()
	withdrawals := newFakeWithdrawalRepo(users)
	earnings := &fakeEarningRepo{}
	rds := newFakeRedis()
	producer := newFakeProducer()
	store := &fakeStorage{}
	svc := NewInvestService(users, investments, withdrawals, earnings, rds, producer, store,
		"secret", "admin", "admin123")
	return &fixture{
		users:       users,
		investments: investments,
		withdrawals: withdrawals,
		earnings:    earnings,
		redis:       rds,
		producer:    producer,
		storage:     store,
		svc:         svc,
	}
}

func (f *fixture) seedUser(t *testing.T, username string, balance float64) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.MinCost)
	assert.NoError(t, err)
	return f.users.addUser(&models.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: string(hash),
		Balance:      balance,
	})
}

func validInvestment() SubmitInvestmentInput {
	return SubmitInvestmentInput{
		PlanName:       "Silver",
		Amount:         500,
		DailyIncome:    50,
		WhatsappNumber: "03001234567",
		ScreenshotName: "proof.png",
		ScreenshotSize: 1024,
		Screenshot:     strings.NewReader("fake image bytes"),
	}
}

// ---- tests ----

func TestRegister(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		f := newFixture()
		user, err := f.svc.Register(ctx, RegisterInput{
			Username: "ali", Email: "ali@example.com",
			Password: "secret123", ConfirmPassword: "secret123",
		})
		assert.NoError(t, err)
		assert.NotZero(t, user.ID)
		assert.NotEqual(t, "secret123", user.PasswordHash)
	})

	t.Run("DuplicateUsername", func(t *testing.T) {
		f := newFixture()
		f.seedUser(t, "ali", 0)
		_, err := f.svc.Register(ctx, RegisterInput{
			Username: "ali", Email: "other@example.com",
			Password: "secret123", ConfirmPassword: "secret123",
		})
		assert.ErrorIs(t, err, pkgerrors.ErrUserAlreadyExists)
	})

	t.Run("DuplicateEmail", func(t *testing.T) {
		f := newFixture()
		f.seedUser(t, "ali", 0)
		_, err := f.svc.Register(ctx, RegisterInput{
			Username: "other", Email: "ali@example.com",
			Password: "secret123", ConfirmPassword: "secret123",
		})
		assert.ErrorIs(t, err, pkgerrors.ErrUserAlreadyExists)
	})

	t.Run("PasswordMismatch", func(t *testing.T) {
		f := newFixture()
		_, err := f.svc.Register(ctx, RegisterInput{
			Username: "ali", Email: "ali@example.com",
			Password: "secret123", ConfirmPassword: "different",
		})
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)
	})

	t.Run("ReferralAttribution", func(t *testing.T) {
		f := newFixture()
		referrer := f.seedUser(t, "referrer", 0)
		f.users.users[referrer.ID].ReferralCode = "REFR1234"

		user, err := f.svc.Register(ctx, RegisterInput{
			Username: "newbie", Email: "newbie@example.com",
			Password: "secret123", ConfirmPassword: "secret123",
			ReferralCode: "REFR1234",
		})
		assert.NoError(t, err)
		assert.Equal(t, "REFR1234", user.ReferredBy)
	})

	t.Run("UnknownReferralCodeDropped", func(t *testing.T) {
		f := newFixture()
		user, err := f.svc.Register(ctx, RegisterInput{
			Username: "newbie", Email: "newbie@example.com",
			Password: "secret123", ConfirmPassword: "secret123",
			ReferralCode: "NOPE0000",
		})
		assert.NoError(t, err)
		assert.Empty(t, user.ReferredBy)
	})
}

func TestLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		f := newFixture()
		f.seedUser(t, "ali", 0)
		token, err := f.svc.Login(ctx, "ali", "password")
		assert.NoError(t, err)
		assert.NotEmpty(t, token)

		cached, err := f.redis.Get(ctx, "user:1:token")
		assert.NoError(t, err)
		assert.Equal(t, token, cached)
	})

	t.Run("WrongPassword", func(t *testing.T) {
		f := newFixture()
		f.seedUser(t, "ali", 0)
		_, err := f.svc.Login(ctx, "ali", "wrong")
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidCredentials)
	})

	t.Run("UnknownUser", func(t *testing.T) {
		f := newFixture()
		_, err := f.svc.Login(ctx, "ghost", "password")
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidCredentials)
	})

	t.Run("LogoutRevokesToken", func(t *testing.T) {
		f := newFixture()
		user := f.seedUser(t, "ali", 0)
		_, err := f.svc.Login(ctx, "ali", "password")
		assert.NoError(t, err)

		assert.NoError(t, f.svc.Logout(ctx, user.ID))
		_, err = f.redis.Get(ctx, "user:1:token")
		assert.ErrorIs(t, err, redis.ErrKeyNotFound)
	})
}

func TestAdminLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		f := newFixture()
		token, err := f.svc.AdminLogin(ctx, "admin", "admin123")
		assert.NoError(t, err)
		assert.NotEmpty(t, token)
	})

	t.Run("WrongCredentials", func(t *testing.T) {
		f := newFixture()
		_, err := f.svc.AdminLogin(ctx, "admin", "wrong")
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidCredentials)
	})
}

func TestSubmitInvestment(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		f := newFixture()
		user := f.seedUser(t, "ali", 1000)

		inv, err := f.svc.SubmitInvestment(ctx, user.ID, validInvestment())
		assert.NoError(t, err)
		assert.Equal(t, models.InvestmentPending, inv.Status)
		assert.Equal(t, 1500.0, inv.TotalReturn) // daily income x 30
		assert.Equal(t, 30, inv.DaysRemaining)
		assert.Equal(t, 0, inv.DaysCompleted)
		assert.NotEmpty(t, inv.OrderID)
		assert.Len(t, f.storage.saved, 1)
		assert.Contains(t, f.storage.saved[0], fmt.Sprintf("screenshots/%d/", user.ID))
	})

	t.Run("BelowMinimum", func(t *testing.T) {
		f := newFixture()
		user := f.seedUser(t, "ali", 1000)

		in := validInvestment()
		in.Amount = 400
		_, err := f.svc.SubmitInvestment(ctx, user.ID, in)
		assert.ErrorIs(t, err, pkgerrors.ErrBelowMinimumInvestment)
		assert.Empty(t, f.investments.investments)
		assert.Empty(t, f.storage.saved)
	})

	t.Run("BadContactNumber", func(t *testing.T) {
		f := newFixture()
		user := f.seedUser(t, "ali", 1000)

		in := validInvestment()
		in.WhatsappNumber = "12345"
		_, err := f.svc.SubmitInvestment(ctx, user.ID, in)
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidContactNumber)
		assert.Empty(t, f.investments.investments)
	})

	t.Run("MissingScreenshot", func(t *testing.T) {
		f := newFixture()
		user := f.seedUser(t, "ali", 1000)

		in := validInvestment()
		in.Screenshot = nil
		in.ScreenshotSize = 0
		_, err := f.svc.SubmitInvestment(ctx, user.ID, in)
		assert.ErrorIs(t, err, pkgerrors.ErrScreenshotRequired)
	})

	t.Run("ScreenshotTooLarge", func(t *testing.T) {
		f := newFixture()
		user := f.seedUser(t, "ali", 1000)

		in := validInvestment()
		in.ScreenshotSize = MaxScreenshotSize + 1
		_, err := f.svc.SubmitInvestment(ctx, user.ID, in)
		assert.ErrorIs(t, err, pkgerrors.ErrScreenshotTooLarge)
	})

	t.Run("BadExtension", func(t *testing.T) {
		f := newFixture()
		user := f.seedUser(t, "ali", 1000)

		in := validInvestment()
		in.ScreenshotName = "proof.pdf"
		_, err := f.svc.SubmitInvestment(ctx, user.ID, in)
		assert.ErrorIs(t, err, pkgerrors.ErrScreenshotBadType)
		assert.Empty(t, f.storage.saved)
	})
}

func TestWithdrawalLifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("SubmitDebitsBalance", func(t *testing.T) {
		f := newFixture()
		user := f.seedUser(t, "ali", 1000)

		wd, err := f.svc.RequestWithdrawal(ctx, user.ID, WithdrawalInput{
			Amount: 250, PaymentMethod: "easypaisa", AccountNumber: "03001234567",
		})
		assert.NoError(t, err)
		assert.Equal(t, models.WithdrawalPending, wd.Status)

		balance, _ := f.users.GetBalance(ctx, user.ID)
		assert.Equal(t, 750.0, balance)
	})

	t.Run("RejectRefunds", func(t *testing.T) {
		f := newFixture()
		user := f.seedUser(t, "ali", 1000)
		wd, err := f.svc.RequestWithdrawal(ctx, user.ID, WithdrawalInput{
			Amount: 250, PaymentMethod: "easypaisa", AccountNumber: "03001234567",
		})
		assert.NoError(t, err)

		assert.NoError(t, f.svc.RejectWithdrawal(ctx, wd.ID, "req-1"))

		balance, _ := f.users.GetBalance(ctx, user.ID)
		assert.Equal(t, 1000.0, balance)

		stored, _ := f.withdrawals.GetByID(ctx, wd.ID)
		assert.Equal(t, models.WithdrawalRejected, stored.Status)
		assert.NotNil(t, stored.ProcessedAt)
	})

	t.Run("ApproveLeavesBalanceDebited", func(t *testing.T) {
		f := newFixture()
		user := f.seedUser(t, "ali", 1000)
		wd, err := f.svc.RequestWithdrawal(ctx, user.ID, WithdrawalInput{
			Amount: 250, PaymentMethod: "jazzcash", AccountNumber: "03001234567",
		})
		assert.NoError(t, err)

		assert.NoError(t, f.svc.ApproveWithdrawal(ctx, wd.ID, "req-1"))

		balance, _ := f.users.GetBalance(ctx, user.ID)
		assert.Equal(t, 750.0, balance)

		stored, _ := f.withdrawals.GetByID(ctx, wd.ID)
		assert.Equal(t, models.WithdrawalApproved, stored.Status)
	})

	t.Run("InsufficientBalance", func(t *testing.T) {
		f := newFixture()
		user := f.seedUser(t, "ali", 100)

		_, err := f.svc.RequestWithdrawal(ctx, user.ID, WithdrawalInput{
			Amount: 250, PaymentMethod: "easypaisa", AccountNumber: "03001234567",
		})
		assert.ErrorIs(t, err, pkgerrors.ErrInsufficientFunds)

		balance, _ := f.users.GetBalance(ctx, user.ID)
		assert.Equal(t, 100.0, balance)
	})

	t.Run("BelowMinimum", func(t *testing.T) {
		f := newFixture()
		user := f.seedUser(t, "ali", 1000)

		_, err := f.svc.RequestWithdrawal(ctx, user.ID, WithdrawalInput{
			Amount: 100, PaymentMethod: "easypaisa", AccountNumber: "03001234567",
		})
		assert.ErrorIs(t, err, pkgerrors.ErrBelowMinimumWithdrawal)
	})

	t.Run("InvalidMethod", func(t *testing.T) {
		f := newFixture()
		user := f.seedUser(t, "ali", 1000)

		_, err := f.svc.RequestWithdrawal(ctx, user.ID, WithdrawalInput{
			Amount: 250, PaymentMethod: "paypal", AccountNumber: "03001234567",
		})
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidPaymentMethod)
	})

	t.Run("ShortAccountNumber", func(t *testing.T) {
		f := newFixture()
		user := f.seedUser(t, "ali", 1000)

		_, err := f.svc.RequestWithdrawal(ctx, user.ID, WithdrawalInput{
			Amount: 250, PaymentMethod: "easypaisa", AccountNumber: "12345",
		})
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidAccountNumber)
	})
}

func TestApprovalWorkflow(t *testing.T) {
	ctx := context.Background()

	t.Run("ApproveInvestmentActivates", func(t *testing.T) {
		f := newFixture()
		user := f.seedUser(t, "ali", 1000)
		inv, err := f.svc.SubmitInvestment(ctx, user.ID, validInvestment())
		assert.NoError(t, err)

		balanceBefore, _ := f.users.GetBalance(ctx, user.ID)
		assert.NoError(t, f.svc.ApproveInvestment(ctx, inv.ID, "req-1"))

		stored, _ := f.investments.GetByID(ctx, inv.ID)
		assert.Equal(t, models.InvestmentActive, stored.Status)
		assert.NotNil(t, stored.ApprovedAt)

		// activation has no balance effect
		balanceAfter, _ := f.users.GetBalance(ctx, user.ID)
		assert.Equal(t, balanceBefore, balanceAfter)
	})

	t.Run("RejectInvestmentTerminal", func(t *testing.T) {
		f := newFixture()
		user := f.seedUser(t, "ali", 1000)
		inv, err := f.svc.SubmitInvestment(ctx, user.ID, validInvestment())
		assert.NoError(t, err)

		assert.NoError(t, f.svc.RejectInvestment(ctx, inv.ID, "req-1"))
		err = f.svc.ApproveInvestment(ctx, inv.ID, "req-2")
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidTransition)
	})

	t.Run("DuplicateRequestIDRefused", func(t *testing.T) {
		f := newFixture()
		user := f.seedUser(t, "ali", 1000)
		wd, err := f.svc.RequestWithdrawal(ctx, user.ID, WithdrawalInput{
			Amount: 250, PaymentMethod: "easypaisa", AccountNumber: "03001234567",
		})
		assert.NoError(t, err)

		assert.NoError(t, f.svc.ApproveWithdrawal(ctx, wd.ID, "req-dup"))
		err = f.svc.ApproveWithdrawal(ctx, wd.ID, "req-dup")
		assert.ErrorIs(t, err, pkgerrors.ErrRequestAlreadyProcessed)
	})

	t.Run("RejectAfterApproveRefused", func(t *testing.T) {
		f := newFixture()
		user := f.seedUser(t, "ali", 1000)
		wd, err := f.svc.RequestWithdrawal(ctx, user.ID, WithdrawalInput{
			Amount: 250, PaymentMethod: "easypaisa", AccountNumber: "03001234567",
		})
		assert.NoError(t, err)

		assert.NoError(t, f.svc.ApproveWithdrawal(ctx, wd.ID, "req-1"))
		err = f.svc.RejectWithdrawal(ctx, wd.ID, "req-2")
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidTransition)

		// no refund happened
		balance, _ := f.users.GetBalance(ctx, user.ID)
		assert.Equal(t, 750.0, balance)
	})
}

func TestReferralCode(t *testing.T) {
	ctx := context.Background()

	t.Run("LazyIssuance", func(t *testing.T) {
		f := newFixture()
		user := f.seedUser(t, "alibaba", 0)

		code, err := f.svc.ReferralCode(ctx, user.ID)
		assert.NoError(t, err)
		assert.Regexp(t, `^[A-Z]{4}\d{4}$`, code)
		assert.Equal(t, "ALIB", code[:4])

		// second call returns the stored code
		again, err := f.svc.ReferralCode(ctx, user.ID)
		assert.NoError(t, err)
		assert.Equal(t, code, again)
	})

	t.Run("ShortUsernamePadded", func(t *testing.T) {
		f := newFixture()
		user := f.seedUser(t, "al", 0)

		code, err := f.svc.ReferralCode(ctx, user.ID)
		assert.NoError(t, err)
		assert.Equal(t, "ALXX", code[:4])
	})

	t.Run("ExhaustedRetriesAssignLastCode", func(t *testing.T) {
		f := newFixture()
		user := f.seedUser(t, "ali", 0)
		f.users.codeAlwaysTaken = true

		// every candidate collides; after ten attempts the last one is
		// assigned anyway instead of failing
		code, err := f.svc.ReferralCode(ctx, user.ID)
		assert.NoError(t, err)
		assert.Regexp(t, `^[A-Z]{4}\d{4}$`, code)

		f.users.codeAlwaysTaken = false
		stored, _ := f.users.GetByID(ctx, user.ID)
		assert.Equal(t, code, stored.ReferralCode)
	})
}

func TestGetDashboard(t *testing.T) {
	ctx := context.Background()

	f := newFixture()
	user := f.seedUser(t, "ali", 1000)
	_, err := f.svc.SubmitInvestment(ctx, user.ID, validInvestment())
	assert.NoError(t, err)
	_, err = f.svc.RequestWithdrawal(ctx, user.ID, WithdrawalInput{
		Amount: 250, PaymentMethod: "easypaisa", AccountNumber: "03001234567",
	})
	assert.NoError(t, err)
	_, err = f.earnings.Create(ctx, &models.DailyEarning{InvestmentID: 1, UserID: user.ID, Amount: 50, DayNumber: 1})
	assert.NoError(t, err)

	dash, err := f.svc.GetDashboard(ctx, user.ID)
	assert.NoError(t, err)
	assert.Equal(t, 750.0, dash.Balance)
	assert.Len(t, dash.Investments, 1)
	assert.Len(t, dash.Withdrawals, 1)
	assert.Equal(t, 50.0, dash.TotalEarnings)
}
