// Package ingest turns fetched probe messages into stored provenance
// records and schedules the mailbox polling that feeds it.
package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/probekit/mailtrace/internal/esp"
	"github.com/probekit/mailtrace/internal/headers"
	"github.com/probekit/mailtrace/internal/imapx"
	"github.com/probekit/mailtrace/internal/metrics"
	"github.com/probekit/mailtrace/internal/parser"
	"github.com/probekit/mailtrace/internal/repository"
	"github.com/probekit/mailtrace/internal/trace"
)

// Store is the persistence surface the pipeline writes to.
type Store interface {
	Upsert(ctx context.Context, email *repository.Email) error
}

// Pipeline processes one decoded message end to end: normalize headers,
// extract the receiving chain, classify the sending platform, persist.
type Pipeline struct {
	decoder *parser.Decoder
	store   Store
	logger  *slog.Logger
}

// NewPipeline creates a new Pipeline instance
func NewPipeline(store Store, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		decoder: parser.NewDecoder(),
		store:   store,
		logger:  logger,
	}
}

// Process ingests one fetched message. Exactly one store write happens per
// call; the analysis stages cannot fail, so the only error sources are the
// decode step and the persistence call itself.
func (p *Pipeline) Process(ctx context.Context, msg imapx.Fetched) error {
	decoded, err := p.decoder.Decode(msg.Source)
	if err != nil {
		return fmt.Errorf("decode message: %w", err)
	}

	// A missing message id must never block ingestion; fall back to the
	// envelope's id and finally to a generated placeholder.
	messageID := decoded.MessageID
	if messageID == "" {
		messageID = parser.CanonicalMessageID(msg.MessageID)
	}
	if messageID == "" {
		messageID = "generated-" + uuid.NewString()
	}

	subject := msg.Subject
	if subject == "" {
		subject = decoded.Subject
	}
	from := decoded.From
	if from == "" {
		from = msg.From
	}
	to := decoded.To
	if to == "" {
		to = msg.To
	}

	hdrs := headers.Normalize(decoded.Headers)
	chain := trace.ExtractChain(hdrs.Get("received"))

	email := &repository.Email{
		MessageID:      messageID,
		Subject:        subject,
		FromAddress:    from,
		ReceivingChain: chain,
		RawHeaders:     hdrs,
		Raw:            string(msg.Source),
	}
	if to != "" {
		email.ToAddress = &to
	}

	espLabel := "unknown"
	if label, ok := esp.Classify(hdrs); ok {
		email.ESP = &label
		espLabel = label
	}

	if err := p.store.Upsert(ctx, email); err != nil {
		return fmt.Errorf("persist email %q: %w", messageID, err)
	}

	metrics.MessagesIngested.Inc()
	metrics.ESPDetected.WithLabelValues(espLabel).Inc()

	p.logger.Info("message ingested",
		slog.String("message_id", messageID),
		slog.String("subject", subject),
		slog.String("esp", espLabel),
		slog.Int("hops", len(chain)),
	)

	return nil
}
