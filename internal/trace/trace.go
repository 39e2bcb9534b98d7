// Package trace parses "Received" transport-trace headers into an ordered
// hop chain with inter-hop delays.
package trace

import (
	"net/mail"
	"regexp"
	"strings"
	"time"
)

// Hop is one parsed "Received" trace entry. By is always present, defaulting
// to "" when nothing matched; the remaining fields stay nil when the line
// carries no parseable value for them. "Parsed but empty" and "not parseable"
// are deliberately distinguishable.
type Hop struct {
	By        string     `json:"by"`
	From      *string    `json:"from,omitempty"`
	With      *string    `json:"with,omitempty"`
	ID        *string    `json:"id,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	DelayMs   *int64     `json:"delayMs,omitempty"`
}

// Received lines loosely follow "from F by B with W id I; DATE", but relays
// take liberties. These patterns tolerate missing clauses and stray
// parenthetical comments; an unmatched clause just leaves the field unset.
var (
	fromRe = regexp.MustCompile(`(?i)from\s+([^;]+?)\s+by\s+`)
	byRe   = regexp.MustCompile(`(?i)by\s+([^;]+?)(\s+with|\s+id|;|\(|$)`)
	withRe = regexp.MustCompile(`(?i)with\s+([^;]+?)(\s+id|;|\(|$)`)
	idRe   = regexp.MustCompile(`(?i)id\s+([^;\s]+)(;|\s|\(|$)`)
)

// ExtractChain parses the "received" header values of one message into its
// receiving chain. The input must be in encounter order, i.e. topmost header
// first, which for mail headers means newest hop first.
//
// Delays are computed while walking in that newest-first order: each hop with
// a parsed timestamp and a known reference timestamp gets
// delayMs = max(0, reference-current), and the reference then advances to the
// current timestamp (carrying across hops whose date failed to parse). The
// finished chain is reversed so callers see it oldest-first. The per-hop delay
// values keep their walk-order meaning through the reversal.
//
// Every supplied value yields exactly one hop; unparseable lines produce a
// hop with whatever fields could be salvaged. ExtractChain never fails.
func ExtractChain(received []string) []Hop {
	hops := make([]Hop, 0, len(received))
	var ref *time.Time
	for _, r := range received {
		var hop Hop
		if m := fromRe.FindStringSubmatch(r); m != nil {
			hop.From = ptr(strings.TrimSpace(m[1]))
		}
		if m := byRe.FindStringSubmatch(r); m != nil {
			hop.By = strings.TrimSpace(m[1])
		}
		if m := withRe.FindStringSubmatch(r); m != nil {
			hop.With = ptr(strings.TrimSpace(m[1]))
		}
		if m := idRe.FindStringSubmatch(r); m != nil {
			hop.ID = ptr(strings.TrimSpace(m[1]))
		}
		if idx := strings.LastIndex(r, ";"); idx >= 0 {
			if t, err := mail.ParseDate(strings.TrimSpace(r[idx+1:])); err == nil {
				t = t.UTC()
				hop.Timestamp = &t
			}
		}
		if hop.Timestamp != nil && ref != nil {
			// Clock skew between relays must not yield negative delays.
			delay := ref.Sub(*hop.Timestamp).Milliseconds()
			if delay < 0 {
				delay = 0
			}
			hop.DelayMs = &delay
		}
		if hop.Timestamp != nil {
			ref = hop.Timestamp
		}
		hops = append(hops, hop)
	}

	// Reverse so the chain reads oldest hop -> newest hop.
	for i, j := 0, len(hops)-1; i < j; i, j = i+1, j-1 {
		hops[i], hops[j] = hops[j], hops[i]
	}
	return hops
}

func ptr(s string) *string { return &s }
