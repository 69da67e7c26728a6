package certificate_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/decertify/decertify/internal/certificate"
	"github.com/decertify/decertify/internal/ledger"
)

// ── Ledger fakes ──────────────────────────────────────────────────────────

// failingLedger refuses every call with a fixed error.
type failingLedger struct{ err error }

func (f *failingLedger) Submit(context.Context, ledger.Submission) (*ledger.Receipt, error) {
	return nil, f.err
}

func (f *failingLedger) Query(context.Context, string) (*ledger.AnchorInfo, error) {
	return nil, f.err
}

// anchoringLedger is a StubClient whose receipts claim Anchored=true, standing
// in for a healthy gateway in service tests.
type anchoringLedger struct{ stub *ledger.StubClient }

func newAnchoringLedger() *anchoringLedger {
	return &anchoringLedger{stub: ledger.NewStub()}
}

func (a *anchoringLedger) Submit(ctx context.Context, sub ledger.Submission) (*ledger.Receipt, error) {
	receipt, err := a.stub.Submit(ctx, sub)
	if err != nil {
		return nil, err
	}
	receipt.Anchored = true
	return receipt, nil
}

func (a *anchoringLedger) Query(ctx context.Context, fingerprint string) (*ledger.AnchorInfo, error) {
	info, err := a.stub.Query(ctx, fingerprint)
	if err != nil {
		return nil, err
	}
	info.Assumed = false
	return info, nil
}

// ── Helpers ───────────────────────────────────────────────────────────────

func validIssueRequest() certificate.IssueRequest {
	exp := time.Now().UTC().AddDate(2, 0, 0)
	return certificate.IssueRequest{
		RecipientName:  "Ada Lovelace",
		RecipientEmail: "ada@example.com",
		Title:          "Go Fundamentals",
		Description:    "Completed the course with distinction",
		IssuerName:     "Acme Institute",
		IssuerAddress:  "0xabc123",
		ExpiryDate:     &exp,
	}
}

func countRecords(t *testing.T, store certificate.Store, issuer string) int {
	t.Helper()
	recs, err := store.ListByIssuer(context.Background(), issuer, 100, 0)
	if err != nil {
		t.Fatalf("ListByIssuer: %v", err)
	}
	return len(recs)
}

// ── Tests ─────────────────────────────────────────────────────────────────

func TestIssue_success(t *testing.T) {
	store := certificate.NewMemoryStore()
	svc := certificate.NewAnchorService(store, newAnchoringLedger(), zap.NewNop())

	rec, err := svc.Issue(context.Background(), validIssueRequest())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if rec.Fingerprint == "" {
		t.Error("expected a fingerprint")
	}
	if rec.TransactionID == "" {
		t.Error("expected a transaction id")
	}
	if !rec.Anchored {
		t.Error("expected anchored record from a healthy ledger")
	}
	if rec.Status != certificate.StatusValid {
		t.Errorf("expected status valid, got %s", rec.Status)
	}

	got, err := store.GetByID(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("GetByID after issue: %v", err)
	}
	if got.Fingerprint != rec.Fingerprint || got.TransactionID != rec.TransactionID {
		t.Error("persisted record does not match returned record")
	}
}

func TestIssue_defaultsIssueDate(t *testing.T) {
	store := certificate.NewMemoryStore()
	svc := certificate.NewAnchorService(store, newAnchoringLedger(), zap.NewNop())

	req := validIssueRequest()
	req.IssueDate = nil

	before := time.Now().UTC()
	rec, err := svc.Issue(context.Background(), req)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if rec.IssueDate.Before(before.Add(-time.Second)) || rec.IssueDate.After(time.Now().UTC().Add(time.Second)) {
		t.Errorf("issue date not defaulted to now: %v", rec.IssueDate)
	}
}

func TestIssue_validationFailureHasNoSideEffects(t *testing.T) {
	store := certificate.NewMemoryStore()
	lc := newAnchoringLedger()
	svc := certificate.NewAnchorService(store, lc, zap.NewNop())

	req := validIssueRequest()
	req.RecipientName = "   "

	_, err := svc.Issue(context.Background(), req)
	var verr *certificate.ErrValidation
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ErrValidation, got %v", err)
	}
	if n := countRecords(t, store, req.IssuerAddress); n != 0 {
		t.Errorf("expected empty store after validation failure, got %d records", n)
	}
}

func TestIssue_rejectsExpiryBeforeIssue(t *testing.T) {
	svc := certificate.NewAnchorService(certificate.NewMemoryStore(), newAnchoringLedger(), zap.NewNop())

	req := validIssueRequest()
	issue := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	expiry := issue.AddDate(0, -1, 0)
	req.IssueDate = &issue
	req.ExpiryDate = &expiry

	_, err := svc.Issue(context.Background(), req)
	var verr *certificate.ErrValidation
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ErrValidation for expiry before issue, got %v", err)
	}
}

func TestIssue_ledgerFailureLeavesNoRecord(t *testing.T) {
	store := certificate.NewMemoryStore()
	boom := errors.New("gateway exploded")
	svc := certificate.NewAnchorService(store, &failingLedger{err: boom}, zap.NewNop())

	req := validIssueRequest()
	_, err := svc.Issue(context.Background(), req)
	if !errors.Is(err, certificate.ErrIssuanceFailed) {
		t.Fatalf("expected ErrIssuanceFailed, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Error("expected the underlying ledger error in the chain")
	}
	if n := countRecords(t, store, req.IssuerAddress); n != 0 {
		t.Errorf("ledger failure must not persist a record, got %d", n)
	}
}

func TestIssue_identicalContentSharesFingerprintNotTransaction(t *testing.T) {
	store := certificate.NewMemoryStore()
	svc := certificate.NewAnchorService(store, newAnchoringLedger(), zap.NewNop())

	issue := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	req := validIssueRequest()
	req.IssueDate = &issue

	a, err := svc.Issue(context.Background(), req)
	if err != nil {
		t.Fatalf("first issue: %v", err)
	}
	b, err := svc.Issue(context.Background(), req)
	if err != nil {
		t.Fatalf("second issue: %v", err)
	}
	if a.Fingerprint != b.Fingerprint {
		t.Error("identical content should share a fingerprint")
	}
	if a.ID == b.ID {
		t.Error("re-issuance should create a distinct record")
	}
}

func TestRevoke_success(t *testing.T) {
	store := certificate.NewMemoryStore()
	svc := certificate.NewAnchorService(store, newAnchoringLedger(), zap.NewNop())

	rec, err := svc.Issue(context.Background(), validIssueRequest())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if err := svc.Revoke(context.Background(), rec.ID, rec.IssuerAddress); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	got, _ := store.GetByID(context.Background(), rec.ID)
	if got.Status != certificate.StatusRevoked {
		t.Errorf("expected revoked, got %s", got.Status)
	}
}

func TestRevoke_wrongIssuer(t *testing.T) {
	store := certificate.NewMemoryStore()
	svc := certificate.NewAnchorService(store, newAnchoringLedger(), zap.NewNop())

	rec, _ := svc.Issue(context.Background(), validIssueRequest())

	err := svc.Revoke(context.Background(), rec.ID, "0xsomeoneelse")
	var verr *certificate.ErrValidation
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ErrValidation for foreign issuer, got %v", err)
	}
	got, _ := store.GetByID(context.Background(), rec.ID)
	if got.Status != certificate.StatusValid {
		t.Error("foreign revoke attempt must not change status")
	}
}

func TestRevoke_terminalStatesStay(t *testing.T) {
	store := certificate.NewMemoryStore()
	svc := certificate.NewAnchorService(store, newAnchoringLedger(), zap.NewNop())

	rec, _ := svc.Issue(context.Background(), validIssueRequest())
	if err := svc.Revoke(context.Background(), rec.ID, rec.IssuerAddress); err != nil {
		t.Fatalf("first revoke: %v", err)
	}

	err := svc.Revoke(context.Background(), rec.ID, rec.IssuerAddress)
	var verr *certificate.ErrValidation
	if !errors.As(err, &verr) {
		t.Errorf("expected *ErrValidation for double revoke, got %v", err)
	}
}

func TestExpireOverdue_sweep(t *testing.T) {
	store := certificate.NewMemoryStore()
	svc := certificate.NewAnchorService(store, newAnchoringLedger(), zap.NewNop())

	issue := time.Now().UTC().AddDate(-2, 0, 0)
	pastExpiry := time.Now().UTC().AddDate(-1, 0, 0)
	req := validIssueRequest()
	req.IssueDate = &issue
	req.ExpiryDate = &pastExpiry

	rec, err := svc.Issue(context.Background(), req)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	n, err := svc.ExpireOverdue(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("ExpireOverdue: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 expired record, got %d", n)
	}
	got, _ := store.GetByID(context.Background(), rec.ID)
	if got.Status != certificate.StatusExpired {
		t.Errorf("expected expired, got %s", got.Status)
	}
}
