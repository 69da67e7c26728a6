package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sync"
)

// StubClient is an in-memory, thread-safe Client for deployments without
// ledger connectivity (local development, CI). Transaction identifiers are
// derived deterministically from the fingerprint so repeated runs produce
// stable output, and submissions remain queryable for reconciliation.
//
// Receipts carry Anchored=false: a record issued through the stub is marked
// as such and can never be mistaken for a genuinely anchored one.
type StubClient struct {
	mu      sync.RWMutex
	anchors map[string]Submission
}

// NewStub creates an empty StubClient.
func NewStub() *StubClient {
	return &StubClient{anchors: make(map[string]Submission)}
}

// Submit implements Client. It never fails.
func (s *StubClient) Submit(_ context.Context, sub Submission) (*Receipt, error) {
	s.mu.Lock()
	s.anchors[sub.Fingerprint] = sub
	s.mu.Unlock()

	return &Receipt{
		TransactionID: stubTransactionID(sub.Fingerprint),
		BlockNumber:   stubBlockNumber(sub.Fingerprint),
		Anchored:      false,
	}, nil
}

// Query implements Client. Fingerprints submitted through this stub are
// reported as anchored (with Assumed=true); anything else as not anchored.
func (s *StubClient) Query(_ context.Context, fingerprint string) (*AnchorInfo, error) {
	s.mu.RLock()
	sub, ok := s.anchors[fingerprint]
	s.mu.RUnlock()

	if !ok {
		return &AnchorInfo{Anchored: false}, nil
	}
	return &AnchorInfo{
		Anchored:      true,
		IssuerAddress: sub.IssuerAddress,
		RecipientName: sub.RecipientName,
		IssueEpoch:    sub.IssueEpoch,
		ExpiryEpoch:   sub.ExpiryEpoch,
		Assumed:       true,
	}, nil
}

// stubTransactionID derives a stable pseudo transaction hash from the
// fingerprint. The "stub-tx|" domain separator keeps it distinct from the
// fingerprint itself.
func stubTransactionID(fingerprint string) string {
	h := sha256.Sum256([]byte("stub-tx|" + fingerprint))
	return "0x" + hex.EncodeToString(h[:])
}

// stubBlockNumber derives a stable pseudo block number from the fingerprint.
func stubBlockNumber(fingerprint string) int64 {
	h := sha256.Sum256([]byte("stub-block|" + fingerprint))
	n := binary.BigEndian.Uint64(h[:8]) % 10_000_000
	return int64(n)
}

var _ Client = (*StubClient)(nil)
