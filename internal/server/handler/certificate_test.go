package handler_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/decertify/decertify/internal/certificate"
	"github.com/decertify/decertify/internal/identity"
	"github.com/decertify/decertify/internal/ledger"
	"github.com/decertify/decertify/internal/server/handler"
)

// ── Ledger fake ──────────────────────────────────────────────────────────

// confirmedLedger wraps the stub so receipts claim a confirmed anchor, as a
// healthy gateway would.
type confirmedLedger struct{ stub *ledger.StubClient }

func newConfirmedLedger() *confirmedLedger {
	return &confirmedLedger{stub: ledger.NewStub()}
}

func (l *confirmedLedger) Submit(ctx context.Context, sub ledger.Submission) (*ledger.Receipt, error) {
	receipt, err := l.stub.Submit(ctx, sub)
	if err != nil {
		return nil, err
	}
	receipt.Anchored = true
	return receipt, nil
}

func (l *confirmedLedger) Query(ctx context.Context, fingerprint string) (*ledger.AnchorInfo, error) {
	info, err := l.stub.Query(ctx, fingerprint)
	if err != nil {
		return nil, err
	}
	info.Assumed = false
	return info, nil
}

// ── Helpers ──────────────────────────────────────────────────────────────

func testTokens(t *testing.T) *identity.TokenIssuer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return identity.NewTokenIssuer(key, "http://test", time.Hour)
}

func setupTestRouter(t *testing.T) (*gin.Engine, *identity.TokenIssuer, certificate.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()

	store := certificate.NewMemoryStore()
	lc := newConfirmedLedger()
	tokens := testTokens(t)

	anchor := certificate.NewAnchorService(store, lc, zap.NewNop())
	resolver := certificate.NewVerificationResolver(store, lc, zap.NewNop())

	h := handler.NewCertificateHandler(anchor, resolver, tokens, zap.NewNop())
	v1 := r.Group("/api/v1")
	h.Register(v1)
	return r, tokens, store
}

func sessionToken(t *testing.T, tokens *identity.TokenIssuer, wallet string) string {
	t.Helper()
	tok, err := tokens.Issue("11111111-2222-3333-4444-555555555555", "ada@example.com", wallet)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return tok
}

const issueBody = `{
	"recipient_name":"Ada Lovelace",
	"recipient_email":"ada@example.com",
	"title":"Go Fundamentals",
	"description":"Completed the course with distinction",
	"issuer_name":"Acme Institute"
}`

func issueCertificate(t *testing.T, router *gin.Engine, token string) map[string]any {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/certificates", strings.NewReader(issueBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("issue certificate: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var result map[string]any
	json.Unmarshal(w.Body.Bytes(), &result)
	return result
}

// ── Tests ────────────────────────────────────────────────────────────────

func TestIssueCertificate_201(t *testing.T) {
	router, tokens, _ := setupTestRouter(t)
	token := sessionToken(t, tokens, "0xabc123")

	result := issueCertificate(t, router, token)

	cert, ok := result["certificate"].(map[string]any)
	if !ok {
		t.Fatalf("expected certificate object, got %v", result)
	}
	if cert["issuer_address"] != "0xabc123" {
		t.Errorf("issuer address must come from the session, got %v", cert["issuer_address"])
	}
	if cert["status"] != "valid" {
		t.Errorf("expected valid status, got %v", cert["status"])
	}
	if result["transaction_id"] == "" || result["transaction_id"] == nil {
		t.Error("expected a transaction id")
	}
	fp, _ := cert["fingerprint"].(string)
	if !strings.HasPrefix(fp, "0x") || len(fp) != 66 {
		t.Errorf("unexpected fingerprint shape: %q", fp)
	}
}

func TestIssueCertificate_401_withoutToken(t *testing.T) {
	router, _, _ := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/certificates", strings.NewReader(issueBody))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestIssueCertificate_400_missingFields(t *testing.T) {
	router, tokens, _ := setupTestRouter(t)
	token := sessionToken(t, tokens, "0xabc123")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/certificates",
		strings.NewReader(`{"recipient_name":"Ada Lovelace"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestVerifyCertificate_200_byID(t *testing.T) {
	router, tokens, _ := setupTestRouter(t)
	result := issueCertificate(t, router, sessionToken(t, tokens, "0xabc123"))
	cert := result["certificate"].(map[string]any)

	body := `{"certificate_id":"` + cert["id"].(string) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/certificates/verify", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var verdict map[string]any
	json.Unmarshal(w.Body.Bytes(), &verdict)
	if verdict["found"] != true {
		t.Error("expected found verdict")
	}
	if verdict["status"] != "valid" {
		t.Errorf("expected valid verdict, got %v", verdict["status"])
	}
	if verdict["match_mode"] != "record_id" {
		t.Errorf("expected record_id match mode, got %v", verdict["match_mode"])
	}
}

func TestVerifyCertificate_200_byRecipient(t *testing.T) {
	router, tokens, _ := setupTestRouter(t)
	issueCertificate(t, router, sessionToken(t, tokens, "0xabc123"))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/certificates/verify",
		strings.NewReader(`{"recipient_name":"ada"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var verdict map[string]any
	json.Unmarshal(w.Body.Bytes(), &verdict)
	if verdict["match_mode"] != "recipient_name" {
		t.Errorf("expected recipient_name match mode, got %v", verdict["match_mode"])
	}
}

func TestVerifyCertificate_404_unknown(t *testing.T) {
	router, _, _ := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/certificates/verify",
		strings.NewReader(`{"certificate_id":"11111111-2222-3333-4444-555555555555"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", w.Code, w.Body.String())
	}

	var verdict map[string]any
	json.Unmarshal(w.Body.Bytes(), &verdict)
	if verdict["found"] != false {
		t.Error("expected found=false body on 404")
	}
}

func TestVerifyCertificate_400_emptyCriteria(t *testing.T) {
	router, _, _ := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/certificates/verify", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestGetCertificate_200(t *testing.T) {
	router, tokens, _ := setupTestRouter(t)
	result := issueCertificate(t, router, sessionToken(t, tokens, "0xabc123"))
	cert := result["certificate"].(map[string]any)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/certificates/"+cert["id"].(string), nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestGetCertificate_400_badID(t *testing.T) {
	router, _, _ := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/certificates/not-a-uuid", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestListIssued_200(t *testing.T) {
	router, tokens, _ := setupTestRouter(t)
	token := sessionToken(t, tokens, "0xabc123")
	issueCertificate(t, router, token)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/certificates/issued", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var result map[string]any
	json.Unmarshal(w.Body.Bytes(), &result)
	if result["count"] != float64(1) {
		t.Errorf("expected 1 certificate, got %v", result["count"])
	}
}

func TestListIssued_excludesOtherIssuers(t *testing.T) {
	router, tokens, _ := setupTestRouter(t)
	issueCertificate(t, router, sessionToken(t, tokens, "0xabc123"))

	other := sessionToken(t, tokens, "0xother")
	req := httptest.NewRequest(http.MethodGet, "/api/v1/certificates/issued", nil)
	req.Header.Set("Authorization", "Bearer "+other)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var result map[string]any
	json.Unmarshal(w.Body.Bytes(), &result)
	if result["count"] != float64(0) {
		t.Errorf("expected no certificates for a different wallet, got %v", result["count"])
	}
}

func TestRevokeCertificate_200(t *testing.T) {
	router, tokens, store := setupTestRouter(t)
	token := sessionToken(t, tokens, "0xabc123")
	result := issueCertificate(t, router, token)
	cert := result["certificate"].(map[string]any)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/certificates/"+cert["id"].(string)+"/revoke", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	recs, err := store.ListByIssuer(context.Background(), "0xabc123", 10, 0)
	if err != nil || len(recs) != 1 {
		t.Fatalf("ListByIssuer: %v (%d records)", err, len(recs))
	}
	if recs[0].Status != certificate.StatusRevoked {
		t.Errorf("expected revoked, got %s", recs[0].Status)
	}
}

func TestRevokeCertificate_403_foreignIssuer(t *testing.T) {
	router, tokens, _ := setupTestRouter(t)
	result := issueCertificate(t, router, sessionToken(t, tokens, "0xabc123"))
	cert := result["certificate"].(map[string]any)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/certificates/"+cert["id"].(string)+"/revoke", nil)
	req.Header.Set("Authorization", "Bearer "+sessionToken(t, tokens, "0xother"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", w.Code, w.Body.String())
	}
}

func TestVerifyAfterRevoke_reportsRevoked(t *testing.T) {
	router, tokens, _ := setupTestRouter(t)
	token := sessionToken(t, tokens, "0xabc123")
	result := issueCertificate(t, router, token)
	cert := result["certificate"].(map[string]any)
	id := cert["id"].(string)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/certificates/"+id+"/revoke", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("revoke: expected 200, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/certificates/verify",
		strings.NewReader(`{"certificate_id":"`+id+`"}`))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("verify: expected 200, got %d", w.Code)
	}
	var verdict map[string]any
	json.Unmarshal(w.Body.Bytes(), &verdict)
	if verdict["status"] != "revoked" {
		t.Errorf("expected revoked verdict, got %v", verdict["status"])
	}
}
