// Package ledger is the sole boundary to the external anchoring ledger.
//
// The ledger is treated as an opaque transactional append-only store
// reachable through a submit/query contract. Three implementations of the
// Client interface are provided:
//   - HTTPClient: talks to a real anchor gateway over JSON/HTTP.
//   - StubClient: deterministic in-memory ledger for development and tests.
//   - Fallback: wraps a primary client and degrades to a stub when the
//     primary is unreachable. Never compose this into a production deployment.
package ledger

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable indicates the ledger network could not be reached or the
// submission timed out. Transient; the caller may retry.
var ErrUnavailable = errors.New("ledger unavailable")

// ErrRejected indicates the ledger node refused the transaction (malformed
// payload, insufficient signing authority). Permanent; do not retry.
var ErrRejected = errors.New("ledger rejected transaction")

// Submission is the minimal metadata anchored alongside a fingerprint.
type Submission struct {
	Fingerprint   string `json:"fingerprint"`
	RecipientName string `json:"recipient_name"`
	IssuerName    string `json:"issuer_name"`
	IssuerAddress string `json:"issuer_address"`
	IssueEpoch    int64  `json:"issue_epoch"`
	// ExpiryEpoch is 0 when the certificate does not expire.
	ExpiryEpoch int64 `json:"expiry_epoch"`
}

// Receipt is the result of a confirmed submission.
type Receipt struct {
	TransactionID string `json:"transaction_id"`
	BlockNumber   int64  `json:"block_number"`
	// Anchored is false when the receipt was produced by the degraded-mode
	// fallback rather than the real ledger.
	Anchored bool `json:"anchored"`
}

// AnchorInfo is the ledger's authoritative view of a fingerprint.
// A fingerprint that was never anchored yields Anchored=false, not an error.
type AnchorInfo struct {
	Anchored      bool   `json:"anchored"`
	IssuerAddress string `json:"issuer_address,omitempty"`
	RecipientName string `json:"recipient_name,omitempty"`
	IssueEpoch    int64  `json:"issue_epoch,omitempty"`
	ExpiryEpoch   int64  `json:"expiry_epoch,omitempty"`
	// Assumed is true when the ledger was unreachable and the fallback
	// synthesized this result.
	Assumed bool `json:"assumed,omitempty"`
}

// Client is the submit/query contract to the ledger.
type Client interface {
	// Submit anchors a fingerprint and blocks until the transaction is
	// confirmed, not merely accepted into a queue. Once submitted, a ledger
	// transaction cannot be withdrawn.
	Submit(ctx context.Context, sub Submission) (*Receipt, error)

	// Query is a side-effect-free lookup of a fingerprint's anchor state.
	Query(ctx context.Context, fingerprint string) (*AnchorInfo, error)
}

// Config holds the process-wide ledger connection settings. It is resolved
// once at startup from configuration and must not be mutated afterwards.
type Config struct {
	// Network is the target ledger network identifier (e.g. "polygon-amoy").
	Network string
	// Endpoint is the anchor gateway base URL.
	Endpoint string
	// SigningKey authorizes submissions; queries work without it.
	SigningKey string
	// ContractAddress identifies the anchoring contract on the network.
	ContractAddress string
	// Timeout bounds each submit/query call, including confirmation wait.
	// Expiry surfaces as ErrUnavailable.
	Timeout time.Duration
}
