package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"token_ledger/internal/api"
	"token_ledger/internal/billing"
	"token_ledger/internal/calls"
	"token_ledger/internal/domain"
	"token_ledger/internal/id"
	"token_ledger/internal/notify"
	"token_ledger/internal/store/memory"
	"token_ledger/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

type testServer struct {
	t      *testing.T
	store  *memory.Store
	engine *billing.Engine
	router *gin.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	st := memory.New()
	engine := billing.NewEngine(st)
	router := api.NewRouter(api.Deps{
		Engine:         engine,
		Events:         billing.NewEvents(engine, notify.Nop{}),
		Ledger:         billing.NewLedger(st, 0),
		Auditor:        billing.NewAuditor(st, notify.Nop{}),
		Calls:          calls.NewService(st, 30*time.Second, 90*time.Second),
		JWTSecret:      testSecret,
		RateLimitRPS:   1000,
		RateLimitBurst: 1000,
	})
	return &testServer{t: t, store: st, engine: engine, router: router}
}

func (s *testServer) fund(walletID string, amount int64) {
	s.t.Helper()
	_, err := s.engine.Credit(context.Background(), walletID, amount, domain.KindTokenPurchase, domain.EntryContext{})
	require.NoError(s.t, err)
}

func (s *testServer) token(userID, role string) string {
	s.t.Helper()
	tok, err := utils.GenerateJWT(userID, role, testSecret, time.Hour)
	require.NoError(s.t, err)
	return tok
}

// do sends a request as userID ("" for anonymous) and decodes the JSON body.
func (s *testServer) do(method, path, userID string, body any) (int, map[string]any) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	switch userID {
	case "":
	case "ops":
		req.Header.Set("Authorization", "Bearer "+s.token(userID, utils.RoleAdmin))
	default:
		req.Header.Set("Authorization", "Bearer "+s.token(userID, ""))
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	out := map[string]any{}
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &out)
	}
	return w.Code, out
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	code, body := s.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestRequiresAuth(t *testing.T) {
	s := newTestServer(t)
	code, _ := s.do(http.MethodGet, "/wallet", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestTip(t *testing.T) {
	s := newTestServer(t)
	s.fund("alice", 1000)

	code, body := s.do(http.MethodPost, "/tips", "alice", map[string]any{"to_wallet_id": "bob", "amount": 300})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(700), body["from_balance"])
	assert.Equal(t, float64(300), body["to_balance"])

	code, body = s.do(http.MethodGet, "/wallet", "bob", nil)
	require.Equal(t, http.StatusOK, code)
	wallet := body["wallet"].(map[string]any)
	assert.Equal(t, float64(300), wallet["balance"])
	assert.Equal(t, false, body["cached"])
}

func TestTip_InsufficientFunds(t *testing.T) {
	s := newTestServer(t)
	s.fund("alice", 100)

	code, body := s.do(http.MethodPost, "/tips", "alice", map[string]any{"to_wallet_id": "bob", "amount": 300})
	assert.Equal(t, http.StatusPaymentRequired, code)
	assert.Equal(t, api.CodeInsufficientTokens, body["error"])
	assert.Equal(t, float64(300), body["required"])
	assert.Equal(t, float64(100), body["current"])
	assert.Equal(t, float64(200), body["shortfall"])
}

func TestTip_Validation(t *testing.T) {
	s := newTestServer(t)
	tests := []struct {
		name string
		body map[string]any
	}{
		{"zero amount", map[string]any{"to_wallet_id": "bob", "amount": 0}},
		{"negative amount", map[string]any{"to_wallet_id": "bob", "amount": -5}},
		{"missing recipient", map[string]any{"amount": 5}},
		{"recipient with spaces", map[string]any{"to_wallet_id": "b ob", "amount": 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := s.do(http.MethodPost, "/tips", "alice", tt.body)
			assert.Equal(t, http.StatusBadRequest, code)
			assert.Equal(t, api.CodeInvalidRequest, body["error"])
			assert.NotEmpty(t, body["details"])
		})
	}

	code, body := s.do(http.MethodPost, "/tips", "alice", map[string]any{"to_wallet_id": "alice", "amount": 5})
	assert.Equal(t, http.StatusBadRequest, code, "self transfer")
	assert.Equal(t, api.CodeInvalidRequest, body["error"])
}

func TestTip_FrozenWallet(t *testing.T) {
	s := newTestServer(t)
	s.fund("alice", 1000)
	require.NoError(t, s.store.SetFrozen(context.Background(), "alice", true, "review"))

	code, body := s.do(http.MethodPost, "/tips", "alice", map[string]any{"to_wallet_id": "bob", "amount": 10})
	assert.Equal(t, http.StatusLocked, code)
	assert.Equal(t, api.CodeWalletFrozen, body["error"])
}

func TestTicket_DuplicatePurchase(t *testing.T) {
	s := newTestServer(t)
	s.fund("fan", 1000)
	req := map[string]any{"seller_wallet_id": "creator", "event_id": "show-1", "price": 200}

	code, body := s.do(http.MethodPost, "/tickets", "fan", req)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["success"])

	code, body = s.do(http.MethodPost, "/tickets", "fan", req)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, true, body["already_purchased"])

	code, body = s.do(http.MethodGet, "/tickets/show-1", "fan", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["has_ticket"])
	_, body = s.do(http.MethodGet, "/tickets/show-2", "fan", nil)
	assert.Equal(t, false, body["has_ticket"])

	_, body = s.do(http.MethodGet, "/wallet", "fan", nil)
	assert.Equal(t, float64(800), body["wallet"].(map[string]any)["balance"], "charged once")
}

func TestTransfer_Kinds(t *testing.T) {
	s := newTestServer(t)
	s.fund("fan", 1000)

	code, _ := s.do(http.MethodPost, "/transfers", "fan", map[string]any{"to_wallet_id": "creator", "amount": 10, "kind": "tip"})
	assert.Equal(t, http.StatusOK, code)

	code, _ = s.do(http.MethodPost, "/transfers", "fan", map[string]any{"to_wallet_id": "creator", "amount": 10, "kind": "ticket_purchase"})
	assert.Equal(t, http.StatusBadRequest, code, "ticket purchase needs an event")

	code, _ = s.do(http.MethodPost, "/transfers", "fan", map[string]any{"to_wallet_id": "creator", "amount": 10, "kind": "call_block"})
	assert.Equal(t, http.StatusBadRequest, code, "call blocks are system initiated")

	code, body := s.do(http.MethodPost, "/transfers", "fan", map[string]any{"to_wallet_id": "creator", "amount": 10, "kind": "ticket_purchase", "event_id": "show"})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["success"])
}

func TestLedgerHistory(t *testing.T) {
	s := newTestServer(t)
	s.fund("alice", 1000)
	for i := 0; i < 3; i++ {
		code, _ := s.do(http.MethodPost, "/tips", "alice", map[string]any{"to_wallet_id": "bob", "amount": 10})
		require.Equal(t, http.StatusOK, code)
	}

	code, body := s.do(http.MethodGet, "/wallet/ledger?page_size=2", "alice", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(4), body["total"])
	assert.Equal(t, float64(2), body["total_pages"])
	assert.Len(t, body["entries"], 2)

	_, body = s.do(http.MethodGet, "/wallet/ledger?kind=tip", "alice", nil)
	assert.Equal(t, float64(3), body["total"])

	code, _ = s.do(http.MethodGet, "/wallet/ledger?kind=bogus", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = s.do(http.MethodGet, "/wallet/ledger?from=yesterday", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = s.do(http.MethodGet, "/wallet/earnings", "bob", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(30), body["total_earned"])
}

func TestCallFlow(t *testing.T) {
	s := newTestServer(t)
	s.fund("fan", 1000)

	code, body := s.do(http.MethodPost, "/calls", "fan", map[string]any{"creator_wallet_id": "creator", "rate_per_minute": 100})
	require.Equal(t, http.StatusCreated, code)
	call := body["call"].(map[string]any)
	callID := call["id"].(string)
	assert.Equal(t, "ringing", call["status"])

	code, _ = s.do(http.MethodGet, "/calls/"+callID, "stranger", nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, body = s.do(http.MethodPost, "/calls/"+callID+"/accept", "fan", nil)
	assert.Equal(t, http.StatusForbidden, code, "the caller cannot accept their own call")
	assert.Equal(t, api.CodeForbidden, body["error"])
	_, body = s.do(http.MethodGet, "/calls/"+callID, "fan", nil)
	assert.Equal(t, "ringing", body["call"].(map[string]any)["status"])

	code, body = s.do(http.MethodPost, "/calls/"+callID+"/accept", "creator", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "active", body["call"].(map[string]any)["status"])

	code, _ = s.do(http.MethodPost, "/calls/"+callID+"/pause", "fan", nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = s.do(http.MethodPost, "/calls/"+callID+"/resume", "fan", nil)
	assert.Equal(t, http.StatusOK, code)

	code, body = s.do(http.MethodPost, "/calls/"+callID+"/end", "fan", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "hangup", body["call"].(map[string]any)["end_reason"])

	code, body = s.do(http.MethodPost, "/calls/"+callID+"/end", "fan", nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, api.CodeInvalidTransition, body["error"])

	code, _ = s.do(http.MethodGet, "/calls/call_missing", "fan", nil)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = s.do(http.MethodGet, "/calls/"+id.NewCall(), "fan", nil)
	assert.Equal(t, http.StatusNotFound, code, "well-formed but unknown")
	code, _ = s.do(http.MethodPost, "/calls/"+id.NewTransfer()+"/end", "fan", nil)
	assert.Equal(t, http.StatusNotFound, code, "transfer id on a call route")
}

func TestCallAccept_InsufficientFunds(t *testing.T) {
	s := newTestServer(t)
	s.fund("fan", 10)

	_, body := s.do(http.MethodPost, "/calls", "fan", map[string]any{"creator_wallet_id": "creator", "rate_per_minute": 100})
	callID := body["call"].(map[string]any)["id"].(string)

	code, body := s.do(http.MethodPost, "/calls/"+callID+"/accept", "creator", nil)
	assert.Equal(t, http.StatusPaymentRequired, code)
	assert.Equal(t, float64(50), body["required"])
}

func TestAdmin_RequiresRole(t *testing.T) {
	s := newTestServer(t)
	code, _ := s.do(http.MethodPost, "/admin/wallets/alice/credit", "alice", map[string]any{"amount": 1000})
	assert.Equal(t, http.StatusForbidden, code)
}

func TestAdmin_CreditPayoutRefund(t *testing.T) {
	s := newTestServer(t)

	code, body := s.do(http.MethodPost, "/admin/wallets/fan/credit", "ops", map[string]any{"amount": 1000})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1000), body["balance"])

	code, body = s.do(http.MethodPost, "/tips", "fan", map[string]any{"to_wallet_id": "creator", "amount": 400})
	require.Equal(t, http.StatusOK, code)
	tipID := body["transfer_id"].(string)

	code, body = s.do(http.MethodPost, "/admin/wallets/creator/payout", "ops", map[string]any{"amount": 500})
	assert.Equal(t, http.StatusPaymentRequired, code)
	assert.Equal(t, float64(400), body["current"])

	code, body = s.do(http.MethodPost, "/admin/transfers/"+tipID+"/refund", "ops", map[string]any{"note": "chargeback"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(0), body["from_balance"])
	assert.Equal(t, float64(1000), body["to_balance"])

	code, body = s.do(http.MethodPost, "/admin/transfers/"+tipID+"/refund", "ops", nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, api.CodeAlreadyRefunded, body["error"])

	code, _ = s.do(http.MethodPost, "/tips", "fan", map[string]any{"to_wallet_id": "creator", "amount": 200})
	require.Equal(t, http.StatusOK, code)
	code, body = s.do(http.MethodPost, "/admin/wallets/creator/payout", "ops", map[string]any{"amount": 150})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(50), body["balance"])

	code, _ = s.do(http.MethodPost, "/admin/transfers/tr_missing/refund", "ops", nil)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = s.do(http.MethodPost, "/admin/transfers/"+id.NewTransfer()+"/refund", "ops", nil)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = s.do(http.MethodPost, "/admin/transfers/"+id.NewCall()+"/refund", "ops", nil)
	assert.Equal(t, http.StatusNotFound, code, "call id on a refund route")
}

func TestAdmin_AuditAndLedger(t *testing.T) {
	s := newTestServer(t)
	s.fund("alice", 500)

	code, body := s.do(http.MethodPost, "/admin/audit", "ops", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["checked"])
	assert.Empty(t, body["mismatches"])

	code, _ = s.do(http.MethodGet, "/admin/ledger", "ops", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = s.do(http.MethodGet, "/admin/ledger?wallet_id=alice", "ops", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["total"])

	code, _ = s.do(http.MethodPost, "/admin/wallets/ghost/unfreeze", "ops", nil)
	assert.Equal(t, http.StatusNotFound, code)
}
