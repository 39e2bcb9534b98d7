package trace

import (
	"fmt"
	"testing"
	"time"

	"pgregory.net/rapid"
)

func TestExtractChainWellFormedLine(t *testing.T) {
	chain := ExtractChain([]string{
		"from mail.example.com by mx.test.com with ESMTP id ABC123; Fri, 01 Jan 2021 10:00:00 +0000",
	})

	if len(chain) != 1 {
		t.Fatalf("chain length = %d, want 1", len(chain))
	}
	hop := chain[0]
	if hop.From == nil || *hop.From != "mail.example.com" {
		t.Errorf("from = %v, want mail.example.com", hop.From)
	}
	if hop.By != "mx.test.com" {
		t.Errorf("by = %q, want mx.test.com", hop.By)
	}
	if hop.With == nil || *hop.With != "ESMTP" {
		t.Errorf("with = %v, want ESMTP", hop.With)
	}
	if hop.ID == nil || *hop.ID != "ABC123" {
		t.Errorf("id = %v, want ABC123", hop.ID)
	}
	want := time.Date(2021, 1, 1, 10, 0, 0, 0, time.UTC)
	if hop.Timestamp == nil || !hop.Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v", hop.Timestamp, want)
	}
	if hop.DelayMs != nil {
		t.Errorf("delayMs = %v, want nil for the sole hop", *hop.DelayMs)
	}
}

func TestExtractChainDelayBetweenHops(t *testing.T) {
	// Encounter order is newest-first, as in a real header block.
	chain := ExtractChain([]string{
		"from relay2 by mx.final.com with ESMTP id X2; Fri, 01 Jan 2021 10:05:00 +0000",
		"from sender by relay2 with ESMTP id X1; Fri, 01 Jan 2021 10:00:00 +0000",
	})

	if len(chain) != 2 {
		t.Fatalf("chain length = %d, want 2", len(chain))
	}

	// After the reversal the older hop comes first and carries the delay
	// computed during the newest-first walk.
	older, newer := chain[0], chain[1]
	if older.By != "relay2" {
		t.Errorf("chain[0].by = %q, want relay2 (oldest hop first)", older.By)
	}
	if older.DelayMs == nil || *older.DelayMs != 5*60*1000 {
		t.Errorf("chain[0].delayMs = %v, want 300000", older.DelayMs)
	}
	if newer.DelayMs != nil {
		t.Errorf("chain[1].delayMs = %v, want nil for first processed hop", *newer.DelayMs)
	}
}

func TestExtractChainClampsNegativeDelay(t *testing.T) {
	// The older header claims a later timestamp than the newer one; clock
	// skew like this must clamp to zero, never go negative.
	chain := ExtractChain([]string{
		"by mx.final.com; Fri, 01 Jan 2021 10:00:00 +0000",
		"by relay1; Fri, 01 Jan 2021 10:02:00 +0000",
	})

	if len(chain) != 2 {
		t.Fatalf("chain length = %d, want 2", len(chain))
	}
	if chain[0].DelayMs == nil || *chain[0].DelayMs != 0 {
		t.Errorf("delayMs = %v, want 0", chain[0].DelayMs)
	}
}

func TestExtractChainReferenceCarriesAcrossUnparseableHops(t *testing.T) {
	chain := ExtractChain([]string{
		"by mx.final.com; Fri, 01 Jan 2021 10:10:00 +0000",
		"by relay-with-broken-date; not a date at all",
		"by relay1; Fri, 01 Jan 2021 10:00:00 +0000",
	})

	if len(chain) != 3 {
		t.Fatalf("chain length = %d, want 3", len(chain))
	}

	// Oldest first after reversal: chain[0] is relay1, chain[1] the broken
	// hop, chain[2] the final relay.
	if chain[1].Timestamp != nil || chain[1].DelayMs != nil {
		t.Errorf("broken hop should have nil timestamp and delay, got %v / %v", chain[1].Timestamp, chain[1].DelayMs)
	}
	// relay1's delay is measured against mx.final.com's timestamp, carried
	// across the unparseable hop: 10 minutes.
	if chain[0].DelayMs == nil || *chain[0].DelayMs != 10*60*1000 {
		t.Errorf("chain[0].delayMs = %v, want 600000", chain[0].DelayMs)
	}
}

func TestExtractChainKeepsUnparseableEntries(t *testing.T) {
	values := []string{
		"",
		"complete garbage with no structure",
		"from only-from-no-by",
	}
	chain := ExtractChain(values)
	if len(chain) != len(values) {
		t.Fatalf("chain length = %d, want %d", len(chain), len(values))
	}
	for i, hop := range chain {
		if hop.By != "" {
			t.Errorf("chain[%d].by = %q, want empty for unparseable entry", i, hop.By)
		}
	}
}

func TestExtractChainEmptyInput(t *testing.T) {
	if chain := ExtractChain(nil); len(chain) != 0 {
		t.Errorf("chain length = %d, want 0", len(chain))
	}
}

// For any sequence of received lines, the chain has one hop per line and no
// hop ever reports a negative delay.
func TestExtractChainLengthAndDelayProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		count := rapid.IntRange(0, 12).Draw(t, "count")
		base := time.Date(2021, 6, 1, 12, 0, 0, 0, time.UTC)

		values := make([]string, count)
		for i := 0; i < count; i++ {
			kind := rapid.IntRange(0, 2).Draw(t, fmt.Sprintf("kind%d", i))
			switch kind {
			case 0:
				// Well-formed with an arbitrary timestamp offset, so both
				// positive and negative inter-hop gaps occur.
				offset := rapid.IntRange(-3600, 3600).Draw(t, fmt.Sprintf("offset%d", i))
				ts := base.Add(time.Duration(offset) * time.Second)
				values[i] = fmt.Sprintf("from a%d by b%d with SMTP id I%d; %s", i, i, i, ts.Format(time.RFC1123Z))
			case 1:
				values[i] = fmt.Sprintf("by b%d; this is not a date", i)
			default:
				values[i] = rapid.StringMatching(`[ -~]{0,60}`).Draw(t, fmt.Sprintf("junk%d", i))
			}
		}

		chain := ExtractChain(values)
		if len(chain) != count {
			t.Fatalf("chain length = %d, want %d", len(chain), count)
		}
		for i, hop := range chain {
			if hop.DelayMs != nil && *hop.DelayMs < 0 {
				t.Errorf("chain[%d].delayMs = %d, want >= 0", i, *hop.DelayMs)
			}
		}
	})
}
