package api

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/heritagebank/ledgercore/internal/authgate"
	"github.com/heritagebank/ledgercore/internal/domain"
	"github.com/heritagebank/ledgercore/internal/workflow"
)

type createAccountRequest struct {
	OwnerName      string          `json:"owner_name"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
}

func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "POST", "/accounts")
		return
	}
	if req.OpeningBalance.IsNegative() {
		h.respondError(w, http.StatusUnprocessableEntity, "Opening balance cannot be negative", "POST", "/accounts")
		return
	}

	acct, err := h.store.CreateAccount(r.Context(), domain.Account{
		Number:    fmt.Sprintf("2030%06d", rand.Intn(1000000)),
		OwnerName: req.OwnerName,
		Balance:   req.OpeningBalance,
		Status:    domain.AccountActive,
	})
	if err != nil {
		h.respondMapped(w, err, "POST", "/accounts")
		return
	}
	h.respondJSON(w, http.StatusCreated, acct, "POST", "/accounts")
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	acct, err := h.ledger.Account(r.Context(), id)
	if err != nil {
		h.respondMapped(w, err, "GET", "/accounts/{id}")
		return
	}
	h.respondJSON(w, http.StatusOK, acct, "GET", "/accounts/{id}")
}

type setPINRequest struct {
	NewPIN     string `json:"new_pin"`
	CurrentPIN string `json:"current_pin,omitempty"`
}

// SetPIN configures the transaction PIN. First-time setup needs no
// authorization; changing an existing PIN requires passing a challenge
// with the current one.
func (h *Handler) SetPIN(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req setPINRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "POST", "/accounts/{id}/pin")
		return
	}

	acct, err := h.ledger.Account(r.Context(), id)
	if err != nil {
		h.respondMapped(w, err, "POST", "/accounts/{id}/pin")
		return
	}

	if acct.HasPIN() {
		challengeID, err := h.gate.BeginChallenge(r.Context(), id)
		if err != nil {
			h.respondMapped(w, err, "POST", "/accounts/{id}/pin")
			return
		}
		res, err := h.gate.Verify(r.Context(), challengeID, req.CurrentPIN)
		if err != nil {
			h.respondMapped(w, err, "POST", "/accounts/{id}/pin")
			return
		}
		if res.Verdict != authgate.VerdictAuthorized {
			h.respondError(w, http.StatusForbidden, "Current PIN is incorrect", "POST", "/accounts/{id}/pin")
			return
		}
	}

	hash, err := authgate.HashPIN(req.NewPIN)
	if err != nil {
		h.respondMapped(w, err, "POST", "/accounts/{id}/pin")
		return
	}
	if err := h.store.SetPINHash(r.Context(), id, hash); err != nil {
		h.respondMapped(w, err, "POST", "/accounts/{id}/pin")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"message": "PIN configured"}, "POST", "/accounts/{id}/pin")
}

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	filter := domain.TxFilter(r.URL.Query().Get("type"))

	if _, err := h.ledger.Account(r.Context(), id); err != nil {
		h.respondMapped(w, err, "GET", "/accounts/{id}/transactions")
		return
	}
	txs, err := h.recorder.ListFor(r.Context(), id, filter)
	if err != nil {
		h.respondMapped(w, err, "GET", "/accounts/{id}/transactions")
		return
	}
	if txs == nil {
		txs = []domain.Transaction{}
	}
	h.respondJSON(w, http.StatusOK, txs, "GET", "/accounts/{id}/transactions")
}

type startTransferRequest struct {
	AccountID string               `json:"account_id"`
	Class     domain.TransferClass `json:"class"`
	Amount    decimal.Decimal      `json:"amount"`

	RecipientName string `json:"recipient_name"`
	BankName      string `json:"bank_name"`
	AccountNumber string `json:"account_number"`
	Narration     string `json:"narration"`
	SwiftCode     string `json:"swift_code"`
	IBAN          string `json:"iban"`
	Country       string `json:"country"`
	Purpose       string `json:"purpose"`
}

func (r startTransferRequest) details() domain.RecipientDetails {
	if r.Class == domain.TransferInternational {
		return domain.InternationalDetails{
			Recipient: r.RecipientName,
			BankName:  r.BankName,
			SwiftCode: r.SwiftCode,
			IBAN:      r.IBAN,
			Country:   r.Country,
			Purpose:   r.Purpose,
		}
	}
	return domain.LocalDetails{
		Recipient:     r.RecipientName,
		BankName:      r.BankName,
		AccountNumber: r.AccountNumber,
		Narration:     r.Narration,
	}
}

type transferView struct {
	ID      string              `json:"id"`
	State   workflow.State      `json:"state"`
	Message string              `json:"message,omitempty"`
	Record  *domain.Transaction `json:"transaction,omitempty"`
}

// StartTransfer walks a new workflow through type selection and detail
// capture, leaving it awaiting PIN authorization.
func (h *Handler) StartTransfer(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpLatency.WithLabelValues("POST", "/transfers"))
	defer timer.ObserveDuration()

	var req startTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "POST", "/transfers")
		return
	}

	wf, err := h.workflows.Start(r.Context(), req.AccountID)
	if err != nil {
		h.respondMapped(w, err, "POST", "/transfers")
		return
	}
	if err := wf.SelectClass(req.Class); err != nil {
		h.respondMapped(w, err, "POST", "/transfers")
		return
	}
	if err := wf.SubmitDetails(r.Context(), req.details(), req.Amount); err != nil {
		// The workflow stays in CapturingDetails; the client may
		// resubmit against the same id after correcting the form.
		h.respondMapped(w, err, "POST", "/transfers")
		return
	}

	h.respondJSON(w, http.StatusCreated, transferView{
		ID:      wf.ID,
		State:   wf.State(),
		Message: "Enter your PIN to authorize this transfer",
	}, "POST", "/transfers")
}

type verifyPINRequest struct {
	PIN string `json:"pin"`
}

type verifyPINResponse struct {
	ID                string              `json:"id"`
	State             workflow.State      `json:"state"`
	RemainingAttempts int                 `json:"remaining_attempts,omitempty"`
	Record            *domain.Transaction `json:"transaction,omitempty"`
}

func (h *Handler) VerifyTransferPIN(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpLatency.WithLabelValues("POST", "/transfers/{id}/verify"))
	defer timer.ObserveDuration()

	id := mux.Vars(r)["id"]
	var req verifyPINRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "POST", "/transfers/{id}/verify")
		return
	}

	wf, err := h.workflows.Get(id)
	if err != nil {
		h.respondMapped(w, err, "POST", "/transfers/{id}/verify")
		return
	}

	res, err := wf.VerifyPIN(r.Context(), req.PIN)
	if err != nil {
		h.respondMapped(w, err, "POST", "/transfers/{id}/verify")
		return
	}
	if res.Verdict == authgate.VerdictRetry {
		h.respondJSON(w, http.StatusUnauthorized, verifyPINResponse{
			ID:                wf.ID,
			State:             wf.State(),
			RemainingAttempts: res.Remaining,
		}, "POST", "/transfers/{id}/verify")
		return
	}

	transfersCommitted.Inc()
	h.respondJSON(w, http.StatusOK, verifyPINResponse{
		ID:     wf.ID,
		State:  wf.State(),
		Record: wf.Result(),
	}, "POST", "/transfers/{id}/verify")
}

func (h *Handler) CancelTransfer(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	wf, err := h.workflows.Get(id)
	if err != nil {
		h.respondMapped(w, err, "POST", "/transfers/{id}/cancel")
		return
	}
	if err := wf.Cancel(); err != nil {
		h.respondMapped(w, err, "POST", "/transfers/{id}/cancel")
		return
	}
	h.respondJSON(w, http.StatusOK, transferView{ID: wf.ID, State: wf.State()}, "POST", "/transfers/{id}/cancel")
}

type submitFundingRequest struct {
	AccountID string          `json:"account_id"`
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method"`
}

func (h *Handler) SubmitDeposit(w http.ResponseWriter, r *http.Request) {
	var req submitFundingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "POST", "/deposits")
		return
	}
	item, err := h.approvals.SubmitDeposit(r.Context(), req.AccountID, req.Amount, req.Method)
	if err != nil {
		h.respondMapped(w, err, "POST", "/deposits")
		return
	}
	h.respondJSON(w, http.StatusCreated, item, "POST", "/deposits")
}

// SubmitWithdrawal serves the approval-routed withdrawal model; the
// self-service path commits through /transfers instead.
func (h *Handler) SubmitWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req submitFundingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "POST", "/withdrawals")
		return
	}
	item, err := h.approvals.SubmitWithdrawal(r.Context(), req.AccountID, req.Amount, req.Method)
	if err != nil {
		h.respondMapped(w, err, "POST", "/withdrawals")
		return
	}
	h.respondJSON(w, http.StatusCreated, item, "POST", "/withdrawals")
}
