package ledger

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// Fallback wraps a primary Client and degrades to a StubClient whenever the
// primary reports ErrUnavailable. It exists so that development environments
// without ledger connectivity keep working; the services above it never
// branch on environment — the choice between a bare HTTPClient (production)
// and this wrapper (non-production) is made once at composition time.
//
// Permanent failures (ErrRejected) still propagate: the fallback masks
// unreachability, never refusal.
type Fallback struct {
	primary Client
	stub    *StubClient
	logger  *zap.Logger
}

// NewFallback creates a Fallback around primary. A nil primary degrades
// every call straight to the stub.
func NewFallback(primary Client, logger *zap.Logger) *Fallback {
	return &Fallback{primary: primary, stub: NewStub(), logger: logger}
}

// Submit implements Client.
func (f *Fallback) Submit(ctx context.Context, sub Submission) (*Receipt, error) {
	if f.primary != nil {
		receipt, err := f.primary.Submit(ctx, sub)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ErrUnavailable) {
			return nil, err
		}
		f.logger.Warn("ledger unreachable, anchoring via stub fallback",
			zap.String("fingerprint", sub.Fingerprint),
			zap.Error(err),
		)
	}
	return f.stub.Submit(ctx, sub)
}

// Query implements Client. When the primary is unreachable the stub answers;
// for fingerprints the stub has never seen, it synthesizes an assumed-anchored
// result so that demonstration verifications do not hard-fail.
func (f *Fallback) Query(ctx context.Context, fingerprint string) (*AnchorInfo, error) {
	if f.primary != nil {
		info, err := f.primary.Query(ctx, fingerprint)
		if err == nil {
			return info, nil
		}
		if !errors.Is(err, ErrUnavailable) {
			return nil, err
		}
		f.logger.Warn("ledger unreachable, answering query via stub fallback",
			zap.String("fingerprint", fingerprint),
			zap.Error(err),
		)
	}

	info, err := f.stub.Query(ctx, fingerprint)
	if err != nil {
		return nil, err
	}
	if !info.Anchored {
		// Unknown to the stub as well — assume anchored for demo purposes.
		return &AnchorInfo{Anchored: true, Assumed: true}, nil
	}
	return info, nil
}

var _ Client = (*Fallback)(nil)
