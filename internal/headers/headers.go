// Package headers normalizes raw email header lines into a lookup map.
package headers

import "strings"

// RawHeader is one header line as it appeared in the source message:
// the header name plus the full, unfolded line including the name and colon.
type RawHeader struct {
	Name string
	Line string
}

// Map associates a lower-cased header name with every value seen for it,
// in the order the lines occurred in the message. Duplicates are preserved;
// multiple "Received" lines are the normal case, not an anomaly.
type Map map[string][]string

// Normalize builds a Map from an ordered list of raw header lines.
// For each line the name is lower-cased and everything up to and including
// the first colon is stripped from the line, the remainder trimmed.
// Malformed lines still yield a (possibly empty) value; Normalize never fails.
func Normalize(raw []RawHeader) Map {
	m := make(Map, len(raw))
	for _, h := range raw {
		name := strings.ToLower(h.Name)
		value := h.Line
		if idx := strings.Index(value, ":"); idx >= 0 {
			value = value[idx+1:]
		}
		m[name] = append(m[name], strings.TrimSpace(value))
	}
	return m
}

// Get returns the values recorded for name (case-insensitive), or nil.
func (m Map) Get(name string) []string {
	return m[strings.ToLower(name)]
}

// First returns the first value recorded for name, or "".
func (m Map) First(name string) string {
	if vs := m.Get(name); len(vs) > 0 {
		return vs[0]
	}
	return ""
}
