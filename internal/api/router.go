package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires every endpoint. Kept out of main so handler tests can
// exercise the exact production routing.
func NewRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()

	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	apiV1 := r.PathPrefix("/api/v1").Subrouter()
	apiV1.HandleFunc("/accounts", h.CreateAccount).Methods("POST")
	apiV1.HandleFunc("/accounts/{id}", h.GetAccount).Methods("GET")
	apiV1.HandleFunc("/accounts/{id}/pin", h.SetPIN).Methods("POST")
	apiV1.HandleFunc("/accounts/{id}/transactions", h.ListTransactions).Methods("GET")
	apiV1.HandleFunc("/accounts/{id}/statement.xlsx", h.ExportStatement).Methods("GET")

	apiV1.HandleFunc("/transfers", h.StartTransfer).Methods("POST")
	apiV1.HandleFunc("/transfers/{id}/verify", h.VerifyTransferPIN).Methods("POST")
	apiV1.HandleFunc("/transfers/{id}/cancel", h.CancelTransfer).Methods("POST")

	apiV1.HandleFunc("/deposits", h.SubmitDeposit).Methods("POST")
	apiV1.HandleFunc("/withdrawals", h.SubmitWithdrawal).Methods("POST")

	admin := apiV1.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/approvals", h.ListApprovals).Methods("GET")
	admin.HandleFunc("/approvals/{id}/approve", h.ApproveItem).Methods("POST")
	admin.HandleFunc("/approvals/{id}/reject", h.RejectItem).Methods("POST")
	admin.HandleFunc("/accounts/{id}/status", h.SetAccountStatus).Methods("POST")
	admin.HandleFunc("/transactions", h.ManualTransaction).Methods("POST")

	return r
}
