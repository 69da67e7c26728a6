package certificate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/decertify/decertify/internal/ledger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// VerificationResolver reconciles a locally persisted record with the
// ledger's authoritative anchor state to produce a trust verdict.
// Resolution is read-only and safe under unbounded concurrency.
type VerificationResolver struct {
	store  Store
	ledger ledger.Client
	logger *zap.Logger

	// now is swappable for expiry re-derivation tests.
	now func() time.Time
}

// NewVerificationResolver creates a new VerificationResolver.
func NewVerificationResolver(store Store, lc ledger.Client, logger *zap.Logger) *VerificationResolver {
	return &VerificationResolver{store: store, ledger: lc, logger: logger, now: time.Now}
}

// Resolve looks up a record by one of the supported criteria, re-queries the
// ledger for the fingerprint's anchor state, and reconciles the two.
//
// Lookup precedence is record id, then fingerprint, then recipient-name
// substring (case-insensitive, best-effort). No match yields
// Verdict{Found:false} with a nil error — a negative result, not a failure.
// Ledger unreachability surfaces as ErrVerificationUnavailable; a
// degraded-mode composition absorbs it upstream via the ledger Fallback.
func (r *VerificationResolver) Resolve(ctx context.Context, c Criteria) (*Verdict, error) {
	if c.Empty() {
		return nil, &ErrValidation{Msg: "provide certificate_id, fingerprint, or recipient_name"}
	}

	rec, mode, err := r.lookup(ctx, c)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return &Verdict{Found: false}, nil
		}
		return nil, err
	}

	info, err := r.ledger.Query(ctx, rec.Fingerprint)
	if err != nil {
		if errors.Is(err, ledger.ErrUnavailable) {
			return nil, fmt.Errorf("%w: %w", ErrVerificationUnavailable, err)
		}
		return nil, fmt.Errorf("ledger query: %w", err)
	}

	verdict := &Verdict{
		Found:  true,
		Record: rec,
		Mode:   mode,
		Ledger: &LedgerCheck{
			Anchored:      info.Anchored,
			IssuerAddress: info.IssuerAddress,
			RecipientName: info.RecipientName,
			IssueEpoch:    info.IssueEpoch,
			ExpiryEpoch:   info.ExpiryEpoch,
			Assumed:       info.Assumed,
		},
	}
	verdict.Status = r.reconcile(rec, info)

	r.logger.Info("certificate resolved",
		zap.String("id", rec.ID.String()),
		zap.String("match_mode", string(mode)),
		zap.String("status", string(verdict.Status)),
		zap.Bool("ledger_assumed", info.Assumed),
	)
	return verdict, nil
}

// lookup applies the criteria precedence and returns the matched record and
// the mode that found it.
func (r *VerificationResolver) lookup(ctx context.Context, c Criteria) (*Record, MatchMode, error) {
	switch {
	case c.RecordID != "":
		id, err := uuid.Parse(c.RecordID)
		if err != nil {
			// A malformed id cannot match any record.
			return nil, "", ErrNotFound
		}
		rec, err := r.store.GetByID(ctx, id)
		return rec, MatchByID, err

	case c.Fingerprint != "":
		rec, err := r.store.GetByFingerprint(ctx, c.Fingerprint)
		return rec, MatchByFingerprint, err

	default:
		rec, err := r.store.SearchByRecipient(ctx, c.RecipientQuery)
		return rec, MatchByRecipient, err
	}
}

// reconcile derives the verdict status from the stored record and the
// ledger's anchor state.
//
// An unanchored fingerprint, or an issuer/recipient that diverges from the
// stored record, makes the verdict invalid regardless of the stored status:
// the local record does not match ledger truth. Otherwise the record's
// lifecycle status applies, with expiry re-derived at verification time.
// Assumed (fallback) anchor info skips the divergence check for fields the
// stub could not know.
func (r *VerificationResolver) reconcile(rec *Record, info *ledger.AnchorInfo) VerdictStatus {
	if !info.Anchored {
		return VerdictInvalid
	}
	if info.IssuerAddress != "" && info.IssuerAddress != rec.IssuerAddress {
		return VerdictInvalid
	}
	if info.RecipientName != "" && info.RecipientName != rec.RecipientName {
		return VerdictInvalid
	}

	switch rec.EffectiveStatus(r.now()) {
	case StatusExpired:
		return VerdictExpired
	case StatusRevoked:
		return VerdictRevoked
	default:
		return VerdictValid
	}
}
