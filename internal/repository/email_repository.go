package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/probekit/mailtrace/internal/headers"
	"github.com/probekit/mailtrace/internal/trace"
)

// Email repository errors
var (
	ErrEmailNotFound = errors.New("email not found")
)

// EmailRepositoryInterface defines the interface for email repository operations
type EmailRepositoryInterface interface {
	Upsert(ctx context.Context, email *Email) error
	LatestBySubject(ctx context.Context, subject string) (*Email, error)
	ListRecent(ctx context.Context, limit int) ([]Email, error)
}

// EmailRepo implements EmailRepositoryInterface using PostgreSQL
type EmailRepo struct {
	db *sqlx.DB
}

// NewEmailRepo creates a new EmailRepo instance
func NewEmailRepo(db *sqlx.DB) *EmailRepo {
	return &EmailRepo{db: db}
}

// Upsert inserts the record, or overwrites every field of the existing row
// that carries the same message id. Last write wins; nothing is merged.
// The store-managed id and timestamps are written back into email.
func (r *EmailRepo) Upsert(ctx context.Context, email *Email) error {
	chainJSON, err := json.Marshal(email.ReceivingChain)
	if err != nil {
		return fmt.Errorf("failed to marshal receiving chain: %w", err)
	}
	headersJSON, err := json.Marshal(email.RawHeaders)
	if err != nil {
		return fmt.Errorf("failed to marshal raw headers: %w", err)
	}

	query := `
		INSERT INTO emails (message_id, subject, from_address, to_address, esp, receiving_chain, raw_headers, raw)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (message_id) DO UPDATE SET
			subject = EXCLUDED.subject,
			from_address = EXCLUDED.from_address,
			to_address = EXCLUDED.to_address,
			esp = EXCLUDED.esp,
			receiving_chain = EXCLUDED.receiving_chain,
			raw_headers = EXCLUDED.raw_headers,
			raw = EXCLUDED.raw,
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`

	row := r.db.QueryRowContext(ctx, query,
		email.MessageID,
		email.Subject,
		email.FromAddress,
		email.ToAddress,
		email.ESP,
		chainJSON,
		headersJSON,
		email.Raw,
	)
	if err := row.Scan(&email.ID, &email.CreatedAt, &email.UpdatedAt); err != nil {
		return fmt.Errorf("failed to upsert email: %w", err)
	}

	return nil
}

// LatestBySubject returns the most recently ingested record whose subject
// matches exactly, or ErrEmailNotFound.
func (r *EmailRepo) LatestBySubject(ctx context.Context, subject string) (*Email, error) {
	query := selectColumns + `
		FROM emails
		WHERE subject = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	email, err := r.scanEmail(r.db.QueryRowContext(ctx, query, subject))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEmailNotFound
		}
		return nil, fmt.Errorf("failed to get latest email by subject: %w", err)
	}

	return email, nil
}

// ListRecent returns at most limit records, newest first. The limit is
// clamped to 1..100 with a default of 50.
func (r *EmailRepo) ListRecent(ctx context.Context, limit int) ([]Email, error) {
	if limit < 1 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}

	query := selectColumns + `
		FROM emails
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list emails: %w", err)
	}
	defer rows.Close()

	var emails []Email
	for rows.Next() {
		email, err := r.scanEmail(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan email: %w", err)
		}
		emails = append(emails, *email)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating emails: %w", err)
	}

	return emails, nil
}

const selectColumns = `
		SELECT id, message_id, subject, from_address, to_address, esp,
		       receiving_chain, raw_headers, raw, created_at, updated_at
`

// rowScanner is satisfied by both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *EmailRepo) scanEmail(row rowScanner) (*Email, error) {
	var (
		email       Email
		chainJSON   []byte
		headersJSON []byte
	)

	err := row.Scan(
		&email.ID,
		&email.MessageID,
		&email.Subject,
		&email.FromAddress,
		&email.ToAddress,
		&email.ESP,
		&chainJSON,
		&headersJSON,
		&email.Raw,
		&email.CreatedAt,
		&email.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(chainJSON) > 0 {
		if err := json.Unmarshal(chainJSON, &email.ReceivingChain); err != nil {
			email.ReceivingChain = []trace.Hop{}
		}
	} else {
		email.ReceivingChain = []trace.Hop{}
	}

	if len(headersJSON) > 0 {
		if err := json.Unmarshal(headersJSON, &email.RawHeaders); err != nil {
			email.RawHeaders = headers.Map{}
		}
	} else {
		email.RawHeaders = headers.Map{}
	}

	return &email, nil
}
