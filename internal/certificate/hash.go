package certificate

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Fingerprint computes the deterministic content hash that identifies a
// certificate on the ledger.
//
// Canonical encoding: the six semantic fields joined with "|" in the fixed
// order recipientName, title, description, issuerName, issueDate, expiryDate.
// Dates are encoded as Unix epoch seconds in UTC; an absent expiry date is
// encoded as 0. The digest is SHA-256, rendered as "0x" + 64 lowercase hex
// characters.
//
// This encoding is part of the public contract: changing it would change the
// fingerprint of every existing certificate and break ledger reconciliation.
func Fingerprint(recipientName, title, description, issuerName string, issueDate time.Time, expiryDate *time.Time) string {
	var expiry int64
	if expiryDate != nil {
		expiry = expiryDate.UTC().Unix()
	}

	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|%d|%d",
		recipientName, title, description, issuerName,
		issueDate.UTC().Unix(), expiry,
	)
	return "0x" + hex.EncodeToString(h.Sum(nil))
}
