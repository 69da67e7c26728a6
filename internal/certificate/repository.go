package certificate

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the persistence interface consumed by AnchorService and the
// VerificationResolver. Records are append-only: there is no delete.
// Both *Repository and *MemoryStore satisfy this interface.
type Store interface {
	Create(ctx context.Context, rec *Record) error
	GetByID(ctx context.Context, id uuid.UUID) (*Record, error)
	// GetByFingerprint returns the most recently created record with the
	// given fingerprint. Duplicates are possible: fingerprint uniqueness is
	// deliberately not enforced, so structurally identical certificates can
	// be re-issued under independent authorizations.
	GetByFingerprint(ctx context.Context, fingerprint string) (*Record, error)
	// SearchByRecipient performs a case-insensitive substring match on the
	// recipient name and returns the first match in store order.
	SearchByRecipient(ctx context.Context, query string) (*Record, error)
	ListByIssuer(ctx context.Context, issuerAddress string, limit, offset int) ([]*Record, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error
	// ExpireOverdue transitions every valid record whose expiry date is
	// before now to expired, returning the number affected.
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)
}

// Repository provides certificate persistence against PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new Repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const recordColumns = `
	id, recipient_name, recipient_email, title, description,
	issuer_name, issuer_address, issue_date, expiry_date,
	fingerprint, transaction_id, anchored, status, created_at, updated_at`

// Create inserts a new certificate record. Sets ID, CreatedAt, UpdatedAt.
func (r *Repository) Create(ctx context.Context, rec *Record) error {
	rec.ID = uuid.New()
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	q := `
		INSERT INTO certificates (
			id, recipient_name, recipient_email, title, description,
			issuer_name, issuer_address, issue_date, expiry_date,
			fingerprint, transaction_id, anchored, status, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, $12, $13, $14, $15
		)`
	_, err := r.db.Exec(ctx, q,
		rec.ID, rec.RecipientName, rec.RecipientEmail, rec.Title, rec.Description,
		rec.IssuerName, rec.IssuerAddress, rec.IssueDate, rec.ExpiryDate,
		rec.Fingerprint, rec.TransactionID, rec.Anchored, rec.Status,
		rec.CreatedAt, rec.UpdatedAt,
	)
	return err
}

// GetByID retrieves a record by its store-assigned identifier.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Record, error) {
	q := `SELECT` + recordColumns + ` FROM certificates WHERE id = $1`
	return r.scanOne(ctx, q, id)
}

// GetByFingerprint retrieves the most recent record with the given fingerprint.
func (r *Repository) GetByFingerprint(ctx context.Context, fingerprint string) (*Record, error) {
	q := `SELECT` + recordColumns + `
		FROM certificates
		WHERE fingerprint = $1
		ORDER BY created_at DESC
		LIMIT 1`
	return r.scanOne(ctx, q, fingerprint)
}

// SearchByRecipient returns the oldest record whose recipient name contains
// the query, case-insensitively. Best-effort lookup mode.
func (r *Repository) SearchByRecipient(ctx context.Context, query string) (*Record, error) {
	q := `SELECT` + recordColumns + `
		FROM certificates
		WHERE recipient_name ILIKE '%' || $1 || '%'
		ORDER BY created_at ASC
		LIMIT 1`
	return r.scanOne(ctx, q, query)
}

// ListByIssuer returns records issued by the given ledger address, newest first.
func (r *Repository) ListByIssuer(ctx context.Context, issuerAddress string, limit, offset int) ([]*Record, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT` + recordColumns + `
		FROM certificates
		WHERE issuer_address = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(ctx, q, issuerAddress, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// UpdateStatus sets the lifecycle status of a record.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE certificates SET status = $1, updated_at = $2 WHERE id = $3`,
		status, time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ExpireOverdue marks valid records whose expiry has passed as expired.
func (r *Repository) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE certificates
		SET status = 'expired', updated_at = $1
		WHERE status = 'valid'
		  AND expiry_date IS NOT NULL
		  AND expiry_date < $1`,
		now.UTC(),
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *Repository) scanOne(ctx context.Context, query string, args ...any) (*Record, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	return scanRecord(rows)
}

func scanRecord(row pgx.Row) (*Record, error) {
	var rec Record
	err := row.Scan(
		&rec.ID, &rec.RecipientName, &rec.RecipientEmail, &rec.Title, &rec.Description,
		&rec.IssuerName, &rec.IssuerAddress, &rec.IssueDate, &rec.ExpiryDate,
		&rec.Fingerprint, &rec.TransactionID, &rec.Anchored, &rec.Status,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

var _ Store = (*Repository)(nil)
