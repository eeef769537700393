package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/investapk/investa-backend/internal/models"
)

func (h *Handler) RegisterAdminRoutes(r *mux.Router) {
	r.HandleFunc("/investments", h.AdminInvestments).Methods("GET")
	r.HandleFunc("/withdrawals", h.AdminWithdrawals).Methods("GET")
	r.HandleFunc("/investments/{id:[0-9]+}/approve", h.ApproveInvestment).Methods("POST")
	r.HandleFunc("/investments/{id:[0-9]+}/reject", h.RejectInvestment).Methods("POST")
	r.HandleFunc("/withdrawals/{id:[0-9]+}/approve", h.ApproveWithdrawal).Methods("POST")
	r.HandleFunc("/withdrawals/{id:[0-9]+}/reject", h.RejectWithdrawal).Methods("POST")
}

func listParams(r *http.Request) (status string, page, limit int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	return r.URL.Query().Get("status"), page, limit
}

func (h *Handler) AdminInvestments(w http.ResponseWriter, r *http.Request) {
	status, page, limit := listParams(r)
	investments, err := h.service.ListInvestmentsByStatus(r.Context(), models.InvestmentStatus(status), page, limit)
	if err != nil {
		h.writeError(w, statusFor(err), err)
		return
	}
	h.writeJSON(w, http.StatusOK, investments)
}

func (h *Handler) AdminWithdrawals(w http.ResponseWriter, r *http.Request) {
	status, page, limit := listParams(r)
	withdrawals, err := h.service.ListWithdrawalsByStatus(r.Context(), models.WithdrawalStatus(status), page, limit)
	if err != nil {
		h.writeError(w, statusFor(err), err)
		return
	}
	h.writeJSON(w, http.StatusOK, withdrawals)
}

// decisionRequest carries the idempotency key for an approve/reject call.
type decisionRequest struct {
	RequestID string `json:"request_id"`
}

func (h *Handler) decision(w http.ResponseWriter, r *http.Request, apply func(id int64, requestID string) error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.RequestID == "" {
		h.writeError(w, http.StatusBadRequest, errors.New("request_id is required"))
		return
	}

	if err := apply(id, req.RequestID); err != nil {
		h.writeError(w, statusFor(err), err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) ApproveInvestment(w http.ResponseWriter, r *http.Request) {
	h.decision(w, r, func(id int64, requestID string) error {
		return h.service.ApproveInvestment(r.Context(), id, requestID)
	})
}

func (h *Handler) RejectInvestment(w http.ResponseWriter, r *http.Request) {
	h.decision(w, r, func(id int64, requestID string) error {
		return h.service.RejectInvestment(r.Context(), id, requestID)
	})
}

func (h *Handler) ApproveWithdrawal(w http.ResponseWriter, r *http.Request) {
	h.decision(w, r, func(id int64, requestID string) error {
		return h.service.ApproveWithdrawal(r.Context(), id, requestID)
	})
}

func (h *Handler) RejectWithdrawal(w http.ResponseWriter, r *http.Request) {
	h.decision(w, r, func(id int64, requestID string) error {
		return h.service.RejectWithdrawal(r.Context(), id, requestID)
	})
}
