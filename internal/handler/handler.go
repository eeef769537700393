package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/investapk/investa-backend/internal/infrastructure/auth"
	service "github.com/investapk/investa-backend/internal/services"
	pkgerrors "github.com/investapk/investa-backend/pkg/errors"
)

type Handler struct {
	service service.InvestService
}

func NewHandler(s service.InvestService) *Handler {
	return &Handler{service: s}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: err.Error()})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// statusFor maps sentinel errors to HTTP statuses. Validation failures are
// 400s, uniqueness and idempotency conflicts 409s.
func statusFor(err error) int {
	switch {
	case errors.Is(err, pkgerrors.ErrUserAlreadyExists),
		errors.Is(err, pkgerrors.ErrRequestAlreadyProcessed):
		return http.StatusConflict
	case errors.Is(err, pkgerrors.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, pkgerrors.ErrUserNotFound),
		errors.Is(err, pkgerrors.ErrInvestmentNotFound),
		errors.Is(err, pkgerrors.ErrWithdrawalNotFound):
		return http.StatusNotFound
	case errors.Is(err, pkgerrors.ErrInsufficientFunds),
		errors.Is(err, pkgerrors.ErrBelowMinimumInvestment),
		errors.Is(err, pkgerrors.ErrBelowMinimumWithdrawal),
		errors.Is(err, pkgerrors.ErrInvalidPaymentMethod),
		errors.Is(err, pkgerrors.ErrInvalidAccountNumber),
		errors.Is(err, pkgerrors.ErrInvalidContactNumber),
		errors.Is(err, pkgerrors.ErrScreenshotRequired),
		errors.Is(err, pkgerrors.ErrScreenshotTooLarge),
		errors.Is(err, pkgerrors.ErrScreenshotBadType),
		errors.Is(err, pkgerrors.ErrInvalidInput),
		errors.Is(err, pkgerrors.ErrInvalidTransition):
		return http.StatusBadRequest
	case errors.Is(err, pkgerrors.ErrBalanceLocked):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) RegisterPublicRoutes(r *mux.Router) {
	r.HandleFunc("/register", h.Register).Methods("POST")
	r.HandleFunc("/login", h.Login).Methods("POST")
	r.HandleFunc("/admin/login", h.AdminLogin).Methods("POST")
}

func (h *Handler) RegisterUserRoutes(r *mux.Router) {
	r.HandleFunc("/logout", h.Logout).Methods("POST")
	r.HandleFunc("/dashboard", h.Dashboard).Methods("GET")
	r.HandleFunc("/referral", h.Referral).Methods("GET")
	r.HandleFunc("/invest", h.Invest).Methods("POST")
	r.HandleFunc("/withdraw", h.Withdraw).Methods("POST")
	r.HandleFunc("/withdrawals", h.Withdrawals).Methods("GET")
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username        string `json:"username"`
		Email           string `json:"email"`
		Password        string `json:"password"`
		ConfirmPassword string `json:"confirm_password"`
		WhatsappNumber  string `json:"whatsapp_number"`
		ReferralCode    string `json:"referral_code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	user, err := h.service.Register(r.Context(), service.RegisterInput{
		Username:        req.Username,
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
		WhatsappNumber:  req.WhatsappNumber,
		ReferralCode:    req.ReferralCode,
	})
	if err != nil {
		h.writeError(w, statusFor(err), err)
		return
	}

	h.writeJSON(w, http.StatusCreated, user)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	token, err := h.service.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeError(w, statusFor(err), err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (h *Handler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	token, err := h.service.AdminLogin(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeError(w, statusFor(err), err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, errors.New("user not authenticated"))
		return
	}
	if err := h.service.Logout(r.Context(), userID); err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, errors.New("user not authenticated"))
		return
	}

	dashboard, err := h.service.GetDashboard(r.Context(), userID)
	if err != nil {
		h.writeError(w, statusFor(err), err)
		return
	}
	h.writeJSON(w, http.StatusOK, dashboard)
}

func (h *Handler) Referral(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, errors.New("user not authenticated"))
		return
	}

	code, err := h.service.ReferralCode(r.Context(), userID)
	if err != nil {
		h.writeError(w, statusFor(err), err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"referral_code": code})
}

func (h *Handler) Invest(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, errors.New("user not authenticated"))
		return
	}

	if err := r.ParseMultipartForm(service.MaxScreenshotSize + 1<<20); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	amount, _ := strconv.ParseFloat(r.FormValue("amount"), 64)
	dailyIncome, _ := strconv.ParseFloat(r.FormValue("daily_income"), 64)

	in := service.SubmitInvestmentInput{
		PlanName:       r.FormValue("plan_name"),
		Amount:         amount,
		DailyIncome:    dailyIncome,
		WhatsappNumber: r.FormValue("whatsapp_number"),
	}

	file, header, err := r.FormFile("screenshot")
	if err == nil {
		defer file.Close()
		in.Screenshot = file
		in.ScreenshotName = header.Filename
		in.ScreenshotSize = header.Size
	}

	inv, err := h.service.SubmitInvestment(r.Context(), userID, in)
	if err != nil {
		h.writeError(w, statusFor(err), err)
		return
	}
	h.writeJSON(w, http.StatusCreated, inv)
}

func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, errors.New("user not authenticated"))
		return
	}

	var req struct {
		Amount        float64 `json:"amount"`
		PaymentMethod string  `json:"payment_method"`
		AccountNumber string  `json:"account_number"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	wd, err := h.service.RequestWithdrawal(r.Context(), userID, service.WithdrawalInput{
		Amount:        req.Amount,
		PaymentMethod: req.PaymentMethod,
		AccountNumber: req.AccountNumber,
	})
	if err != nil {
		h.writeError(w, statusFor(err), err)
		return
	}
	h.writeJSON(w, http.StatusCreated, wd)
}

func (h *Handler) Withdrawals(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, errors.New("user not authenticated"))
		return
	}

	withdrawals, err := h.service.ListWithdrawals(r.Context(), userID)
	if err != nil {
		h.writeError(w, statusFor(err), err)
		return
	}
	h.writeJSON(w, http.StatusOK, withdrawals)
}
