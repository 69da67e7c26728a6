package certificate

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle state of an issued certificate.
type Status string

const (
	StatusValid   Status = "valid"
	StatusExpired Status = "expired"
	StatusRevoked Status = "revoked"
)

// VerdictStatus is the reconciled outcome of a verification request.
// It extends Status with "invalid", which is never stored — it only arises
// when the local record and the ledger disagree.
type VerdictStatus string

const (
	VerdictValid   VerdictStatus = "valid"
	VerdictExpired VerdictStatus = "expired"
	VerdictRevoked VerdictStatus = "revoked"
	VerdictInvalid VerdictStatus = "invalid"
)

// MatchMode indicates which lookup path located a record during verification.
// Recipient-name search is substring-based and may over- or under-match, so
// callers should treat it as a lower-confidence result than the other two.
type MatchMode string

const (
	MatchByID          MatchMode = "record_id"
	MatchByFingerprint MatchMode = "fingerprint"
	MatchByRecipient   MatchMode = "recipient_name"
)

// ErrNotFound is returned when a certificate lookup finds no matching record.
var ErrNotFound = errors.New("certificate not found")

// ErrIssuanceFailed wraps any non-fallback ledger submission failure.
// When this is returned, no record has been persisted.
var ErrIssuanceFailed = errors.New("certificate issuance failed")

// ErrVerificationUnavailable is returned when the ledger cannot be queried
// during verification. It indicates an infrastructure fault, not a negative
// verification result.
var ErrVerificationUnavailable = errors.New("verification temporarily unavailable")

// ErrValidation is returned when the caller supplies invalid certificate data.
// Handlers map it to HTTP 400.
type ErrValidation struct{ Msg string }

func (e *ErrValidation) Error() string { return e.Msg }

// Record is the persisted certificate entity. It is constructed once by the
// AnchorService on successful issuance and never deleted; only Status is
// mutated afterwards (revocation or expiry sweep).
type Record struct {
	ID             uuid.UUID  `json:"id"              db:"id"`
	RecipientName  string     `json:"recipient_name"  db:"recipient_name"`
	RecipientEmail string     `json:"recipient_email" db:"recipient_email"`
	Title          string     `json:"title"           db:"title"`
	Description    string     `json:"description"     db:"description"`
	IssuerName     string     `json:"issuer_name"     db:"issuer_name"`
	IssuerAddress  string     `json:"issuer_address"  db:"issuer_address"`
	IssueDate      time.Time  `json:"issue_date"      db:"issue_date"`
	ExpiryDate     *time.Time `json:"expiry_date,omitempty" db:"expiry_date"`
	// Fingerprint is the deterministic SHA-256 of the semantic fields.
	// Immutable once set; it is the identity anchored on the ledger.
	Fingerprint   string `json:"fingerprint"    db:"fingerprint"`
	TransactionID string `json:"transaction_id" db:"transaction_id"`
	// Anchored is false for records issued through the degraded-mode ledger
	// fallback. Such records cannot be re-verified against the real ledger.
	Anchored  bool      `json:"anchored"   db:"anchored"`
	Status    Status    `json:"status"     db:"status"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Expired reports whether the record's expiry date has passed at the given
// instant. Records without an expiry date never expire.
func (r *Record) Expired(now time.Time) bool {
	return r.ExpiryDate != nil && r.ExpiryDate.Before(now)
}

// EffectiveStatus re-derives the lifecycle status at the given instant.
// A stored "valid" with a past expiry date is reported as expired; the stored
// field is corrected separately by the expiry sweep.
func (r *Record) EffectiveStatus(now time.Time) Status {
	if r.Status == StatusValid && r.Expired(now) {
		return StatusExpired
	}
	return r.Status
}

// IssueRequest is the payload for issuing a new certificate.
// IssuerAddress is set by the handler from the caller's session, never from
// the client body.
type IssueRequest struct {
	RecipientName  string     `json:"recipient_name"  binding:"required"`
	RecipientEmail string     `json:"recipient_email" binding:"required,email"`
	Title          string     `json:"title"           binding:"required"`
	Description    string     `json:"description"     binding:"required"`
	IssuerName     string     `json:"issuer_name"`
	IssueDate      *time.Time `json:"issue_date,omitempty"`
	ExpiryDate     *time.Time `json:"expiry_date,omitempty"`

	IssuerAddress string `json:"-"`
}

// validate checks the request and normalizes whitespace-only fields to empty.
func (req *IssueRequest) validate() error {
	required := map[string]string{
		"recipient_name":  req.RecipientName,
		"recipient_email": req.RecipientEmail,
		"title":           req.Title,
		"description":     req.Description,
		"issuer_address":  req.IssuerAddress,
	}
	for field, value := range required {
		if strings.TrimSpace(value) == "" {
			return &ErrValidation{Msg: field + " is required"}
		}
	}
	if req.ExpiryDate != nil {
		issue := time.Now().UTC()
		if req.IssueDate != nil {
			issue = *req.IssueDate
		}
		if !req.ExpiryDate.After(issue) {
			return &ErrValidation{Msg: "expiry_date must be after issue_date"}
		}
	}
	return nil
}

// Criteria selects a record for verification. Exactly one field should be
// set; when several are, RecordID wins over Fingerprint wins over
// RecipientQuery.
type Criteria struct {
	RecordID       string `json:"certificate_id,omitempty"`
	Fingerprint    string `json:"fingerprint,omitempty"`
	RecipientQuery string `json:"recipient_name,omitempty"`
}

// Empty reports whether no lookup criterion was supplied.
func (c Criteria) Empty() bool {
	return c.RecordID == "" && c.Fingerprint == "" && c.RecipientQuery == ""
}

// LedgerCheck is the ledger's side of a verification verdict.
type LedgerCheck struct {
	Anchored      bool   `json:"anchored"`
	IssuerAddress string `json:"issuer_address,omitempty"`
	RecipientName string `json:"recipient_name,omitempty"`
	IssueEpoch    int64  `json:"issue_epoch,omitempty"`
	ExpiryEpoch   int64  `json:"expiry_epoch,omitempty"`
	// Assumed is true when the ledger was unreachable and a degraded-mode
	// fallback supplied this result. It carries no cryptographic weight.
	Assumed bool `json:"assumed,omitempty"`
}

// Verdict is the outcome of a verification request. Found=false is a
// reportable negative result, not an error.
type Verdict struct {
	Found  bool          `json:"found"`
	Record *Record       `json:"certificate,omitempty"`
	Ledger *LedgerCheck  `json:"ledger,omitempty"`
	Status VerdictStatus `json:"status,omitempty"`
	Mode   MatchMode     `json:"match_mode,omitempty"`
}
