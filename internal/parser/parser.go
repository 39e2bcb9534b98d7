// Package parser decodes raw email bytes into the envelope fields and
// ordered header lines the ingestion pipeline works with.
package parser

import (
	"bufio"
	"bytes"
	"fmt"
	"mime"
	"net/mail"
	"strings"

	"github.com/probekit/mailtrace/internal/headers"
)

// Decoder implements raw message decoding
type Decoder struct{}

// NewDecoder creates a new Decoder instance
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode parses a raw message into a DecodedMessage. The header block is
// scanned twice: once through net/mail for the envelope fields, and once
// line-by-line to keep every header in its original encounter order with
// duplicates intact, which net/mail's map representation throws away.
func (d *Decoder) Decode(raw []byte) (*DecodedMessage, error) {
	if len(raw) == 0 {
		return nil, &DecodeError{
			Stage:   "decode",
			Message: "empty message data",
			Raw:     raw,
		}
	}

	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, &DecodeError{
			Stage:   "decode",
			Message: fmt.Sprintf("failed to decode message: %v", err),
			Raw:     raw,
		}
	}

	decoded := &DecodedMessage{
		MessageID: CanonicalMessageID(msg.Header.Get(HeaderMessageID)),
		From:      d.decodeHeader(msg.Header.Get(HeaderFrom)),
		To:        d.decodeHeader(msg.Header.Get(HeaderTo)),
		Subject:   d.decodeHeader(msg.Header.Get(HeaderSubject)),
		Headers:   scanRawHeaders(raw),
		Raw:       raw,
	}

	return decoded, nil
}

// scanRawHeaders walks the header block of a raw message and returns one
// entry per header line, folded continuation lines joined, in the order the
// lines occur. Malformed lines are kept as-is with an empty name.
func scanRawHeaders(raw []byte) []headers.RawHeader {
	var (
		result  []headers.RawHeader
		current *headers.RawHeader
	)

	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			// Blank line ends the header block.
			break
		}

		if line[0] == ' ' || line[0] == '\t' {
			// Folded continuation of the previous header line.
			if current != nil {
				current.Line += " " + strings.TrimSpace(line)
			}
			continue
		}

		if current != nil {
			result = append(result, *current)
		}
		name := line
		if idx := strings.Index(line, ":"); idx >= 0 {
			name = line[:idx]
		}
		current = &headers.RawHeader{Name: strings.TrimSpace(name), Line: line}
	}
	if current != nil {
		result = append(result, *current)
	}

	return result
}

// CanonicalMessageID strips angle brackets and surrounding whitespace from
// a Message-Id header value. Returns "" for an absent id.
func CanonicalMessageID(id string) string {
	id = strings.TrimSpace(id)
	id = strings.TrimPrefix(id, "<")
	id = strings.TrimSuffix(id, ">")
	return strings.TrimSpace(id)
}

// decodeHeader decodes MIME encoded words in a header value
func (d *Decoder) decodeHeader(value string) string {
	if value == "" {
		return ""
	}

	decoder := new(mime.WordDecoder)
	decoded, err := decoder.DecodeHeader(value)
	if err != nil {
		// Return original value if decoding fails
		return value
	}

	return decoded
}
