package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/heritagebank/ledgercore/internal/approval"
	"github.com/heritagebank/ledgercore/internal/authgate"
	"github.com/heritagebank/ledgercore/internal/domain"
	"github.com/heritagebank/ledgercore/internal/ledger"
	"github.com/heritagebank/ledgercore/internal/recorder"
	"github.com/heritagebank/ledgercore/internal/store"
	"github.com/heritagebank/ledgercore/internal/workflow"
)

type testEnv struct {
	srv *httptest.Server
	st  *store.MemoryStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st := store.NewMemoryStore()
	l := ledger.New(st)
	g := authgate.New(st)
	rec := recorder.New(st)
	h := NewHandler(st, l, g, rec, workflow.NewManager(l, g, rec, nil), approval.New(st, rec))
	srv := httptest.NewServer(NewRouter(h))
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, st: st}
}

func (e *testEnv) post(t *testing.T, path string, body any) (*http.Response, map[string]json.RawMessage) {
	t.Helper()
	buf, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal %s: %v", path, err)
	}
	resp, err := http.Post(e.srv.URL+path, "application/json", bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	out := make(map[string]json.RawMessage)
	json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func (e *testEnv) get(t *testing.T, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(e.srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	return resp, buf.Bytes()
}

func unmarshalField[T any](t *testing.T, m map[string]json.RawMessage, key string) T {
	t.Helper()
	var v T
	raw, ok := m[key]
	if !ok {
		t.Fatalf("response missing field %q: %v", key, m)
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatalf("unmarshal field %q: %v", key, err)
	}
	return v
}

func (e *testEnv) createAccount(t *testing.T, balance string) string {
	t.Helper()
	resp, body := e.post(t, "/api/v1/accounts", map[string]any{
		"owner_name":      "Test Owner",
		"opening_balance": balance,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create account: status %d", resp.StatusCode)
	}
	return unmarshalField[string](t, body, "id")
}

func (e *testEnv) setPIN(t *testing.T, accountID, pin string) {
	t.Helper()
	resp, _ := e.post(t, "/api/v1/accounts/"+accountID+"/pin", map[string]string{"new_pin": pin})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set pin: status %d", resp.StatusCode)
	}
}

func localTransferBody(accountID, amount string) map[string]any {
	return map[string]any{
		"account_id":     accountID,
		"class":          "local",
		"amount":         amount,
		"recipient_name": "Jane Doe",
		"bank_name":      "First Bank",
		"account_number": "0123456789",
		"narration":      "rent",
	}
}

func TestHealthEndpoint(t *testing.T) {
	e := newTestEnv(t)
	resp, body := e.get(t, "/health")
	if resp.StatusCode != http.StatusOK || !bytes.Contains(body, []byte("ok")) {
		t.Fatalf("health: %d %s", resp.StatusCode, body)
	}
}

func TestCreateAndGetAccount(t *testing.T) {
	e := newTestEnv(t)
	id := e.createAccount(t, "250.00")

	resp, body := e.get(t, "/api/v1/accounts/"+id)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get account: status %d", resp.StatusCode)
	}
	if bytes.Contains(body, []byte("pin_hash")) {
		t.Fatal("account payload leaks the PIN hash")
	}

	resp, _ = e.get(t, "/api/v1/accounts/no-such-id")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown account: status %d", resp.StatusCode)
	}
}

func TestCreateAccountNegativeBalance(t *testing.T) {
	e := newTestEnv(t)
	resp, _ := e.post(t, "/api/v1/accounts", map[string]any{
		"owner_name":      "X",
		"opening_balance": "-1.00",
	})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status %d, want 422", resp.StatusCode)
	}
}

func TestTransferEndToEnd(t *testing.T) {
	e := newTestEnv(t)
	id := e.createAccount(t, "100.00")
	e.setPIN(t, id, "1234")

	resp, body := e.post(t, "/api/v1/transfers", localTransferBody(id, "40.00"))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("start transfer: status %d body %v", resp.StatusCode, body)
	}
	wfID := unmarshalField[string](t, body, "id")
	if state := unmarshalField[string](t, body, "state"); state != "awaiting_authorization" {
		t.Fatalf("state %s after start", state)
	}

	resp, body = e.post(t, "/api/v1/transfers/"+wfID+"/verify", map[string]string{"pin": "1234"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verify: status %d body %v", resp.StatusCode, body)
	}
	if state := unmarshalField[string](t, body, "state"); state != "committed" {
		t.Fatalf("state %s after verify", state)
	}
	var rec domain.Transaction
	if err := json.Unmarshal(body["transaction"], &rec); err != nil {
		t.Fatalf("committed record: %v", err)
	}
	if rec.Reference == "" || !rec.Amount.Equal(decimal.RequireFromString("40.00")) {
		t.Fatalf("record %+v", rec)
	}

	acct, _ := e.st.GetAccount(context.Background(), id)
	if !acct.Balance.Equal(decimal.RequireFromString("60.00")) {
		t.Fatalf("balance %s, want 60.00", acct.Balance)
	}

	resp, txBody := e.get(t, "/api/v1/accounts/"+id+"/transactions?type=transfer")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list transactions: %d", resp.StatusCode)
	}
	var txs []domain.Transaction
	if err := json.Unmarshal(txBody, &txs); err != nil || len(txs) != 1 {
		t.Fatalf("history: err=%v n=%d", err, len(txs))
	}
}

func TestTransferInsufficientFunds(t *testing.T) {
	e := newTestEnv(t)
	id := e.createAccount(t, "50.00")
	e.setPIN(t, id, "1234")

	resp, _ := e.post(t, "/api/v1/transfers", localTransferBody(id, "75.00"))
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status %d, want 422", resp.StatusCode)
	}
	acct, _ := e.st.GetAccount(context.Background(), id)
	if !acct.Balance.Equal(decimal.RequireFromString("50.00")) {
		t.Fatalf("balance moved: %s", acct.Balance)
	}
}

func TestTransferWithoutPINSetup(t *testing.T) {
	e := newTestEnv(t)
	id := e.createAccount(t, "100.00")

	resp, _ := e.post(t, "/api/v1/transfers", localTransferBody(id, "10.00"))
	if resp.StatusCode != http.StatusPreconditionFailed {
		t.Fatalf("status %d, want 412", resp.StatusCode)
	}
}

func TestTransferRetryThenLockout(t *testing.T) {
	e := newTestEnv(t)
	id := e.createAccount(t, "100.00")
	e.setPIN(t, id, "1234")

	_, body := e.post(t, "/api/v1/transfers", localTransferBody(id, "40.00"))
	wfID := unmarshalField[string](t, body, "id")

	for want := 2; want >= 1; want-- {
		resp, body := e.post(t, "/api/v1/transfers/"+wfID+"/verify", map[string]string{"pin": "0000"})
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("retry: status %d", resp.StatusCode)
		}
		if got := unmarshalField[int](t, body, "remaining_attempts"); got != want {
			t.Fatalf("remaining %d, want %d", got, want)
		}
	}

	resp, _ := e.post(t, "/api/v1/transfers/"+wfID+"/verify", map[string]string{"pin": "0000"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("lockout: status %d, want 403", resp.StatusCode)
	}

	// The workflow is dead; even the right PIN now conflicts.
	resp, _ = e.post(t, "/api/v1/transfers/"+wfID+"/verify", map[string]string{"pin": "1234"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("post-lockout: status %d, want 409", resp.StatusCode)
	}
	acct, _ := e.st.GetAccount(context.Background(), id)
	if !acct.Balance.Equal(decimal.RequireFromString("100.00")) {
		t.Fatalf("balance %s after lockout", acct.Balance)
	}
}

func TestCancelTransfer(t *testing.T) {
	e := newTestEnv(t)
	id := e.createAccount(t, "100.00")
	e.setPIN(t, id, "1234")

	_, body := e.post(t, "/api/v1/transfers", localTransferBody(id, "40.00"))
	wfID := unmarshalField[string](t, body, "id")

	resp, body := e.post(t, "/api/v1/transfers/"+wfID+"/cancel", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cancel: status %d", resp.StatusCode)
	}
	if state := unmarshalField[string](t, body, "state"); state != "cancelled" {
		t.Fatalf("state %s", state)
	}
	resp, _ = e.post(t, "/api/v1/transfers/"+wfID+"/verify", map[string]string{"pin": "1234"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("verify after cancel: status %d", resp.StatusCode)
	}
}

func TestChangePINRequiresCurrent(t *testing.T) {
	e := newTestEnv(t)
	id := e.createAccount(t, "10.00")
	e.setPIN(t, id, "1234")

	resp, _ := e.post(t, "/api/v1/accounts/"+id+"/pin", map[string]string{
		"new_pin":     "5678",
		"current_pin": "9999",
	})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("wrong current pin: status %d", resp.StatusCode)
	}

	resp, _ = e.post(t, "/api/v1/accounts/"+id+"/pin", map[string]string{
		"new_pin":     "5678",
		"current_pin": "1234",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("change pin: status %d", resp.StatusCode)
	}
}

func TestDepositApprovalFlow(t *testing.T) {
	e := newTestEnv(t)
	id := e.createAccount(t, "0.00")

	resp, body := e.post(t, "/api/v1/deposits", map[string]any{
		"account_id": id,
		"amount":     "500.00",
		"method":     "bank_transfer",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("submit deposit: status %d", resp.StatusCode)
	}
	itemID := unmarshalField[string](t, body, "id")

	resp, listBody := e.get(t, "/api/v1/admin/approvals?status=pending")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list approvals: %d", resp.StatusCode)
	}
	var items []domain.ApprovalItem
	if err := json.Unmarshal(listBody, &items); err != nil || len(items) != 1 {
		t.Fatalf("pending list: err=%v n=%d", err, len(items))
	}

	resp, _ = e.post(t, "/api/v1/admin/approvals/"+itemID+"/approve", map[string]string{"notes": "ok"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("approve: status %d", resp.StatusCode)
	}
	acct, _ := e.st.GetAccount(context.Background(), id)
	if !acct.Balance.Equal(decimal.RequireFromString("500.00")) {
		t.Fatalf("balance %s after approval", acct.Balance)
	}

	resp, _ = e.post(t, "/api/v1/admin/approvals/"+itemID+"/approve", map[string]string{"notes": "again"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("double approve: status %d, want 409", resp.StatusCode)
	}
}

func TestWithdrawalRejectFlow(t *testing.T) {
	e := newTestEnv(t)
	id := e.createAccount(t, "100.00")

	_, body := e.post(t, "/api/v1/withdrawals", map[string]any{
		"account_id": id,
		"amount":     "60.00",
		"method":     "counter",
	})
	itemID := unmarshalField[string](t, body, "id")

	resp, _ := e.post(t, "/api/v1/admin/approvals/"+itemID+"/reject", map[string]string{"notes": "no"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reject: status %d", resp.StatusCode)
	}
	acct, _ := e.st.GetAccount(context.Background(), id)
	if !acct.Balance.Equal(decimal.RequireFromString("100.00")) {
		t.Fatalf("reject moved money: %s", acct.Balance)
	}
}

func TestAdminBlockStopsTransfers(t *testing.T) {
	e := newTestEnv(t)
	id := e.createAccount(t, "100.00")
	e.setPIN(t, id, "1234")

	resp, _ := e.post(t, "/api/v1/admin/accounts/"+id+"/status", map[string]string{"status": "blocked"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("block: status %d", resp.StatusCode)
	}

	resp, _ = e.post(t, "/api/v1/transfers", localTransferBody(id, "10.00"))
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("transfer on blocked account: status %d, want 403", resp.StatusCode)
	}

	resp, _ = e.post(t, "/api/v1/admin/accounts/"+id+"/status", map[string]string{"status": "frozen"})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("bad status value: %d, want 422", resp.StatusCode)
	}
}

func TestAdminManualTransaction(t *testing.T) {
	e := newTestEnv(t)
	id := e.createAccount(t, "20.00")

	resp, body := e.post(t, "/api/v1/admin/transactions", map[string]any{
		"account_id":  id,
		"direction":   "credit",
		"amount":      "30.00",
		"description": "correction",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("manual credit: status %d body %v", resp.StatusCode, body)
	}
	acct, _ := e.st.GetAccount(context.Background(), id)
	if !acct.Balance.Equal(decimal.RequireFromString("50.00")) {
		t.Fatalf("balance %s after manual credit", acct.Balance)
	}

	resp, _ = e.post(t, "/api/v1/admin/transactions", map[string]any{
		"account_id": id,
		"direction":  "sideways",
		"amount":     "1.00",
	})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("bad direction: status %d", resp.StatusCode)
	}
}

func TestStatementExport(t *testing.T) {
	e := newTestEnv(t)
	id := e.createAccount(t, "100.00")

	if _, err := e.st.InsertTransaction(context.Background(), domain.Transaction{
		AccountID: id,
		Direction: domain.DirectionCredit,
		Type:      domain.TxDeposit,
		Amount:    decimal.NewFromInt(100),
		Reference: fmt.Sprintf("TXN-stmt-%s", id[:8]),
		Status:    domain.TxCompleted,
	}); err != nil {
		t.Fatalf("seed tx: %v", err)
	}

	resp, body := e.get(t, "/api/v1/accounts/"+id+"/statement.xlsx")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("export: status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
		t.Fatalf("content type %q", ct)
	}
	if len(body) == 0 {
		t.Fatal("empty statement body")
	}
	if cd := resp.Header.Get("Content-Disposition"); cd == "" {
		t.Fatal("missing Content-Disposition")
	}
}
