package headers

import (
	"fmt"
	"strings"
	"testing"

	"pgregory.net/rapid"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		raw  []RawHeader
		want Map
	}{
		{
			name: "empty input yields empty map",
			raw:  nil,
			want: Map{},
		},
		{
			name: "single header",
			raw: []RawHeader{
				{Name: "Subject", Line: "Subject: hello world"},
			},
			want: Map{"subject": {"hello world"}},
		},
		{
			name: "name lower-cased, value trimmed",
			raw: []RawHeader{
				{Name: "X-Custom-Header", Line: "X-Custom-Header:   padded value  "},
			},
			want: Map{"x-custom-header": {"padded value"}},
		},
		{
			name: "duplicates preserved in encounter order",
			raw: []RawHeader{
				{Name: "Received", Line: "Received: by relay-b; newest"},
				{Name: "Received", Line: "Received: by relay-a; oldest"},
			},
			want: Map{"received": {"by relay-b; newest", "by relay-a; oldest"}},
		},
		{
			name: "value may itself contain colons",
			raw: []RawHeader{
				{Name: "Received", Line: "Received: from a by b; Fri, 01 Jan 2021 10:00:00 +0000"},
			},
			want: Map{"received": {"from a by b; Fri, 01 Jan 2021 10:00:00 +0000"}},
		},
		{
			name: "malformed line without colon yields trimmed remainder",
			raw: []RawHeader{
				{Name: "Broken", Line: "garbage without separator"},
			},
			want: Map{"broken": {"garbage without separator"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.raw)
			if len(got) != len(tt.want) {
				t.Fatalf("Normalize() returned %d names, want %d", len(got), len(tt.want))
			}
			for name, wantValues := range tt.want {
				gotValues := got[name]
				if len(gotValues) != len(wantValues) {
					t.Fatalf("Normalize()[%q] has %d values, want %d", name, len(gotValues), len(wantValues))
				}
				for i := range wantValues {
					if gotValues[i] != wantValues[i] {
						t.Errorf("Normalize()[%q][%d] = %q, want %q", name, i, gotValues[i], wantValues[i])
					}
				}
			}
		})
	}
}

func TestMapGetIsCaseInsensitive(t *testing.T) {
	m := Normalize([]RawHeader{{Name: "Message-Id", Line: "Message-Id: <x@y>"}})
	if got := m.First("MESSAGE-ID"); got != "<x@y>" {
		t.Errorf("First(MESSAGE-ID) = %q, want %q", got, "<x@y>")
	}
	if got := m.First("missing"); got != "" {
		t.Errorf("First(missing) = %q, want empty", got)
	}
}

// Every input line contributes exactly one value, under its lower-cased
// name, in encounter order, for any mix of names and values.
func TestNormalizePreservesAllValues(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		nameGen := rapid.SampledFrom([]string{"Received", "X-Mailer", "subject", "FROM", "X-SES-Outgoing"})
		count := rapid.IntRange(0, 20).Draw(t, "count")

		raw := make([]RawHeader, count)
		perName := make(map[string][]string)
		for i := 0; i < count; i++ {
			name := nameGen.Draw(t, fmt.Sprintf("name%d", i))
			value := rapid.StringMatching(`[ -~]{0,40}`).Draw(t, fmt.Sprintf("value%d", i))
			raw[i] = RawHeader{Name: name, Line: name + ":" + value}
			perName[strings.ToLower(name)] = append(perName[strings.ToLower(name)], strings.TrimSpace(value))
		}

		m := Normalize(raw)

		total := 0
		for name, values := range m {
			total += len(values)
			want := perName[name]
			if len(values) != len(want) {
				t.Fatalf("name %q has %d values, want %d", name, len(values), len(want))
			}
			for i := range want {
				if values[i] != want[i] {
					t.Errorf("name %q value[%d] = %q, want %q", name, i, values[i], want[i])
				}
			}
		}
		if total != count {
			t.Errorf("map holds %d values, want %d", total, count)
		}
	})
}
