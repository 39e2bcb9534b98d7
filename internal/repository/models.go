package repository

import (
	"time"

	"github.com/google/uuid"

	"github.com/probekit/mailtrace/internal/headers"
	"github.com/probekit/mailtrace/internal/trace"
)

// Email is one stored provenance record. MessageID is the business key:
// at most one row exists per message id, and re-ingestion overwrites every
// field rather than merging.
type Email struct {
	ID             uuid.UUID   `db:"id" json:"id"`
	MessageID      string      `db:"message_id" json:"message_id"`
	Subject        string      `db:"subject" json:"subject"`
	FromAddress    string      `db:"from_address" json:"from"`
	ToAddress      *string     `db:"to_address" json:"to,omitempty"`
	ESP            *string     `db:"esp" json:"esp,omitempty"`
	ReceivingChain []trace.Hop `db:"-" json:"receiving_chain"`
	RawHeaders     headers.Map `db:"-" json:"raw_headers"`
	Raw            string      `db:"raw" json:"-"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at" json:"updated_at"`
}
