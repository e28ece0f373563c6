package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/heritagebank/ledgercore/internal/domain"
)

type decisionRequest struct {
	Notes string `json:"notes"`
}

func (h *Handler) ListApprovals(w http.ResponseWriter, r *http.Request) {
	status := domain.ApprovalStatus(r.URL.Query().Get("status"))
	items, err := h.approvals.List(r.Context(), status)
	if err != nil {
		h.respondMapped(w, err, "GET", "/admin/approvals")
		return
	}
	if items == nil {
		items = []domain.ApprovalItem{}
	}
	h.respondJSON(w, http.StatusOK, items, "GET", "/admin/approvals")
}

func (h *Handler) ApproveItem(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req decisionRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}
	item, err := h.approvals.Approve(r.Context(), id, req.Notes)
	if err != nil {
		h.respondMapped(w, err, "POST", "/admin/approvals/{id}/approve")
		return
	}
	h.respondJSON(w, http.StatusOK, item, "POST", "/admin/approvals/{id}/approve")
}

func (h *Handler) RejectItem(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req decisionRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}
	item, err := h.approvals.Reject(r.Context(), id, req.Notes)
	if err != nil {
		h.respondMapped(w, err, "POST", "/admin/approvals/{id}/reject")
		return
	}
	h.respondJSON(w, http.StatusOK, item, "POST", "/admin/approvals/{id}/reject")
}

type setStatusRequest struct {
	Status domain.AccountStatus `json:"status"`
}

func (h *Handler) SetAccountStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req setStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "POST", "/admin/accounts/{id}/status")
		return
	}
	if req.Status != domain.AccountActive && req.Status != domain.AccountBlocked {
		h.respondError(w, http.StatusUnprocessableEntity, "Status must be active or blocked", "POST", "/admin/accounts/{id}/status")
		return
	}
	if err := h.store.SetAccountStatus(r.Context(), id, req.Status); err != nil {
		h.respondMapped(w, err, "POST", "/admin/accounts/{id}/status")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(req.Status)}, "POST", "/admin/accounts/{id}/status")
}

type manualTransactionRequest struct {
	AccountID   string           `json:"account_id"`
	Direction   domain.Direction `json:"direction"`
	Amount      decimal.Decimal  `json:"amount"`
	Description string           `json:"description"`
}

// ManualTransaction lets an admin credit or debit an account directly.
// Like every other mutation path it pairs the balance change with a
// ledger record atomically.
func (h *Handler) ManualTransaction(w http.ResponseWriter, r *http.Request) {
	var req manualTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "POST", "/admin/transactions")
		return
	}
	if req.Direction != domain.DirectionCredit && req.Direction != domain.DirectionDebit {
		h.respondError(w, http.StatusUnprocessableEntity, "Direction must be credit or debit", "POST", "/admin/transactions")
		return
	}

	txType := domain.TxDeposit
	if req.Direction == domain.DirectionDebit {
		txType = domain.TxWithdrawal
	}
	record := h.recorder.Prepare(domain.Transaction{
		AccountID:   req.AccountID,
		Direction:   req.Direction,
		Type:        txType,
		Amount:      req.Amount,
		Description: req.Description,
		Status:      domain.TxCompleted,
	})

	var (
		stored *domain.Transaction
		err    error
	)
	if req.Direction == domain.DirectionDebit {
		stored, _, err = h.ledger.DebitWithRecord(r.Context(), req.AccountID, req.Amount, record)
	} else {
		stored, _, err = h.ledger.CreditWithRecord(r.Context(), req.AccountID, req.Amount, record)
	}
	if err != nil {
		h.respondMapped(w, err, "POST", "/admin/transactions")
		return
	}
	h.respondJSON(w, http.StatusCreated, stored, "POST", "/admin/transactions")
}
