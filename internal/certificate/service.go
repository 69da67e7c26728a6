// Package certificate implements the certificate anchoring and verification
// engine: deterministic content hashing, issuance against an external
// append-only ledger, and reconciliation of locally persisted records with
// the ledger's authoritative state.
package certificate

import (
	"context"
	"fmt"
	"time"

	"github.com/decertify/decertify/internal/ledger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AnchorService orchestrates certificate issuance: it validates the request,
// computes the content fingerprint, anchors it on the ledger, and persists
// the resulting record. Issuance is atomic from the caller's perspective —
// either a record exists with both fingerprint and transaction id bound, or
// no record exists at all.
type AnchorService struct {
	store  Store
	ledger ledger.Client
	logger *zap.Logger
}

// NewAnchorService creates a new AnchorService.
func NewAnchorService(store Store, lc ledger.Client, logger *zap.Logger) *AnchorService {
	return &AnchorService{store: store, ledger: lc, logger: logger}
}

// Issue validates the candidate, anchors its fingerprint on the ledger, and
// persists the resulting record with status "valid".
//
// The ledger submission blocks until the anchoring transaction is confirmed.
// If it fails, nothing is persisted and the error is wrapped in
// ErrIssuanceFailed; validation errors surface as *ErrValidation with no
// side effects. Concurrent issuances of identical content are not
// deduplicated — each is anchored independently with its own transaction id.
func (s *AnchorService) Issue(ctx context.Context, req IssueRequest) (*Record, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	issueDate := time.Now().UTC()
	if req.IssueDate != nil {
		issueDate = req.IssueDate.UTC()
	}

	fingerprint := Fingerprint(
		req.RecipientName, req.Title, req.Description, req.IssuerName,
		issueDate, req.ExpiryDate,
	)

	var expiryEpoch int64
	if req.ExpiryDate != nil {
		expiryEpoch = req.ExpiryDate.UTC().Unix()
	}

	receipt, err := s.ledger.Submit(ctx, ledger.Submission{
		Fingerprint:   fingerprint,
		RecipientName: req.RecipientName,
		IssuerName:    req.IssuerName,
		IssuerAddress: req.IssuerAddress,
		IssueEpoch:    issueDate.Unix(),
		ExpiryEpoch:   expiryEpoch,
	})
	if err != nil {
		s.logger.Error("ledger submission failed",
			zap.String("fingerprint", fingerprint),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %w", ErrIssuanceFailed, err)
	}

	rec := &Record{
		RecipientName:  req.RecipientName,
		RecipientEmail: req.RecipientEmail,
		Title:          req.Title,
		Description:    req.Description,
		IssuerName:     req.IssuerName,
		IssuerAddress:  req.IssuerAddress,
		IssueDate:      issueDate,
		ExpiryDate:     req.ExpiryDate,
		Fingerprint:    fingerprint,
		TransactionID:  receipt.TransactionID,
		Anchored:       receipt.Anchored,
		Status:         StatusValid,
	}

	if err := s.store.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("persist certificate: %w", err)
	}

	s.logger.Info("certificate issued",
		zap.String("id", rec.ID.String()),
		zap.String("fingerprint", fingerprint),
		zap.String("transaction_id", receipt.TransactionID),
		zap.Bool("anchored", receipt.Anchored),
	)
	return rec, nil
}

// Get retrieves a record by its store-assigned identifier.
func (s *AnchorService) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	return s.store.GetByID(ctx, id)
}

// ListIssuedBy returns certificates issued by the given ledger address.
func (s *AnchorService) ListIssuedBy(ctx context.Context, issuerAddress string, limit, offset int) ([]*Record, error) {
	return s.store.ListByIssuer(ctx, issuerAddress, limit, offset)
}

// Revoke transitions a record from valid to revoked. Only the issuing
// address may revoke, and revoked/expired are terminal.
func (s *AnchorService) Revoke(ctx context.Context, id uuid.UUID, issuerAddress string) error {
	rec, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if rec.IssuerAddress != issuerAddress {
		return &ErrValidation{Msg: "only the issuing address may revoke a certificate"}
	}
	if rec.Status != StatusValid {
		return &ErrValidation{Msg: fmt.Sprintf("certificate is %s; cannot revoke", rec.Status)}
	}

	if err := s.store.UpdateStatus(ctx, id, StatusRevoked); err != nil {
		return err
	}

	s.logger.Info("certificate revoked",
		zap.String("id", id.String()),
		zap.String("issuer_address", issuerAddress),
	)
	return nil
}

// ExpireOverdue runs the time-driven valid→expired sweep. Intended to be
// called periodically from a background ticker.
func (s *AnchorService) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	n, err := s.store.ExpireOverdue(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("expire sweep: %w", err)
	}
	if n > 0 {
		s.logger.Info("expired overdue certificates", zap.Int64("count", n))
	}
	return n, nil
}
