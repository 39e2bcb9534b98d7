package parser

import "github.com/probekit/mailtrace/internal/headers"

// DecodedMessage is the decoder's view of one raw email: envelope-level
// fields in textual form plus every header line in encounter order.
type DecodedMessage struct {
	MessageID string              `json:"message_id"`
	From      string              `json:"from"`
	To        string              `json:"to"`
	Subject   string              `json:"subject"`
	Headers   []headers.RawHeader `json:"-"`
	Raw       []byte              `json:"-"`
}

// DecodeError represents an error during message decoding
type DecodeError struct {
	Stage   string `json:"stage"`   // Which decoding stage failed
	Message string `json:"message"` // Error description
	Raw     []byte `json:"-"`       // Raw message data for recovery
}

// Error implements the error interface
func (e *DecodeError) Error() string {
	return e.Message
}

// Header constants
const (
	HeaderFrom      = "From"
	HeaderTo        = "To"
	HeaderSubject   = "Subject"
	HeaderMessageID = "Message-Id"
)
