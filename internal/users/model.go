package users

import (
	"time"

	"github.com/google/uuid"
)

// User represents an issuer account. WalletAddress is the ledger account
// identifier stamped onto certificates as issuerAddress.
type User struct {
	ID            uuid.UUID `json:"id"             db:"id"`
	Name          string    `json:"name"           db:"name"`
	Email         string    `json:"email"          db:"email"`
	PasswordHash  string    `json:"-"              db:"password_hash"`
	WalletAddress string    `json:"wallet_address" db:"wallet_address"`
	CreatedAt     time.Time `json:"created_at"     db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"     db:"updated_at"`
}
