package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/probekit/mailtrace/internal/imapx"
	"github.com/probekit/mailtrace/internal/metrics"
)

// MinPollInterval bounds how hard the poller may hit the IMAP endpoint,
// regardless of configuration.
const MinPollInterval = 5 * time.Second

// Poller owns the IMAP session handle and the poll timer. It runs one poll
// cycle at a time; a cycle finishes (or fails) before the next is scheduled.
type Poller struct {
	opts     imapx.Options
	interval time.Duration
	marker   string
	pipeline *Pipeline
	logger   *slog.Logger

	client *imapx.Client

	mu      sync.Mutex
	lastErr error
	lastRun time.Time
}

// NewPoller creates a Poller. The interval is clamped to MinPollInterval;
// marker selects which messages are treated as test probes, by substring
// match on the envelope subject.
func NewPoller(opts imapx.Options, interval time.Duration, marker string, pipeline *Pipeline, logger *slog.Logger) *Poller {
	if interval < MinPollInterval {
		interval = MinPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		opts:     opts,
		interval: interval,
		marker:   marker,
		pipeline: pipeline,
		logger:   logger,
	}
}

// Run polls until ctx is cancelled, then releases the IMAP session. Cycle
// failures are logged and retried from scratch on the next tick; they never
// stop the loop.
func (s *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	defer s.disconnect()

	s.logger.Info("poller started",
		slog.Duration("interval", s.interval),
		slog.String("marker", s.marker),
		slog.String("mailbox", s.opts.Mailbox),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("poller stopped")
			return
		case <-ticker.C:
			start := time.Now()
			err := s.poll(ctx)
			if err != nil {
				metrics.PollCycles.WithLabelValues("error").Inc()
				s.logger.Error("poll cycle failed", slog.String("error", err.Error()))
			} else {
				metrics.PollCycles.WithLabelValues("ok").Inc()
			}
			metrics.PollCycleDuration.Observe(time.Since(start).Seconds())
			s.recordCycle(err)
		}
	}
}

// poll runs one cycle: connect if needed, fetch unread messages under the
// mailbox lock, and ingest the ones carrying the subject marker. A fetch
// failure gets one reconnect before the cycle is abandoned.
func (s *Poller) poll(ctx context.Context) error {
	if s.client == nil {
		if err := s.connect(); err != nil {
			return err
		}
	}

	s.client.Lock()
	defer s.client.Unlock()

	fetched, err := s.client.FetchUnread()
	if err != nil {
		// Likely a dropped connection; one fresh session per cycle.
		s.logger.Warn("fetch failed, reconnecting", slog.String("error", err.Error()))
		s.disconnect()
		if err := s.connect(); err != nil {
			return err
		}
		s.client.Lock()
		defer s.client.Unlock()
		if fetched, err = s.client.FetchUnread(); err != nil {
			return err
		}
	}

	for _, msg := range fetched {
		if !strings.Contains(msg.Subject, s.marker) {
			continue
		}
		if err := s.pipeline.Process(ctx, msg); err != nil {
			// The message stays unread, so the next cycle retries it.
			return err
		}
		if err := s.client.MarkSeen(msg.SeqNum); err != nil {
			return err
		}
	}

	return nil
}

func (s *Poller) recordCycle(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err
	s.lastRun = time.Now()
}

// Healthy reports the outcome of the most recent poll cycle, for use as a
// health-check probe. A poller that has not completed a cycle yet is healthy;
// one whose last cycle is older than three intervals is considered stalled.
func (s *Poller) Healthy() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastErr != nil {
		return s.lastErr
	}
	if !s.lastRun.IsZero() && time.Since(s.lastRun) > 3*s.interval {
		return fmt.Errorf("no poll cycle completed in %s", time.Since(s.lastRun).Round(time.Second))
	}
	return nil
}

func (s *Poller) connect() error {
	client, err := imapx.Dial(s.opts, s.logger)
	if err != nil {
		return err
	}
	s.client = client
	return nil
}

func (s *Poller) disconnect() {
	if s.client != nil {
		s.client.Close()
		s.client = nil
	}
}
