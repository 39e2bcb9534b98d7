package parser

import (
	"errors"
	"strings"
	"testing"
)

const sampleMessage = "Received: from relay2.example.com by mx.final.com with ESMTP id X2; Fri, 01 Jan 2021 10:05:00 +0000\r\n" +
	"Received: from sender.example.com by relay2.example.com\r\n" +
	"\twith ESMTP id X1; Fri, 01 Jan 2021 10:00:00 +0000\r\n" +
	"Message-Id: <probe-123@sender.example.com>\r\n" +
	"From: Probe Sender <probe@sender.example.com>\r\n" +
	"To: inbox@receiver.example.com\r\n" +
	"Subject: [ESP-TEST] run 42\r\n" +
	"\r\n" +
	"test body\r\n"

func TestDecode(t *testing.T) {
	decoder := NewDecoder()

	decoded, err := decoder.Decode([]byte(sampleMessage))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if decoded.MessageID != "probe-123@sender.example.com" {
		t.Errorf("MessageID = %q, want probe-123@sender.example.com", decoded.MessageID)
	}
	if decoded.From != "Probe Sender <probe@sender.example.com>" {
		t.Errorf("From = %q", decoded.From)
	}
	if decoded.To != "inbox@receiver.example.com" {
		t.Errorf("To = %q", decoded.To)
	}
	if decoded.Subject != "[ESP-TEST] run 42" {
		t.Errorf("Subject = %q", decoded.Subject)
	}
}

func TestDecodeHeaderOrderAndFolding(t *testing.T) {
	decoder := NewDecoder()

	decoded, err := decoder.Decode([]byte(sampleMessage))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	wantNames := []string{"Received", "Received", "Message-Id", "From", "To", "Subject"}
	if len(decoded.Headers) != len(wantNames) {
		t.Fatalf("got %d header lines, want %d", len(decoded.Headers), len(wantNames))
	}
	for i, want := range wantNames {
		if decoded.Headers[i].Name != want {
			t.Errorf("Headers[%d].Name = %q, want %q", i, decoded.Headers[i].Name, want)
		}
	}

	// The folded second Received line must come back as one unfolded line.
	second := decoded.Headers[1].Line
	if !strings.Contains(second, "with ESMTP id X1; Fri, 01 Jan 2021 10:00:00 +0000") {
		t.Errorf("folded header not joined: %q", second)
	}
	if strings.ContainsAny(second, "\r\n\t") {
		t.Errorf("joined header still contains fold characters: %q", second)
	}
}

func TestDecodeMIMEEncodedSubject(t *testing.T) {
	raw := "From: a@b.example\r\n" +
		"Subject: =?UTF-8?Q?caf=C3=A9_run?=\r\n" +
		"\r\n" +
		"body\r\n"

	decoded, err := NewDecoder().Decode([]byte(raw))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if decoded.Subject != "café run" {
		t.Errorf("Subject = %q, want café run", decoded.Subject)
	}
}

func TestDecodeEmptyInput(t *testing.T) {
	_, err := NewDecoder().Decode(nil)
	if err == nil {
		t.Fatal("Decode(nil) expected error")
	}
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("error type = %T, want *DecodeError", err)
	}
	if decodeErr.Stage != "decode" {
		t.Errorf("Stage = %q, want decode", decodeErr.Stage)
	}
}

func TestCanonicalMessageID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"<abc@example.com>", "abc@example.com"},
		{"  <abc@example.com>  ", "abc@example.com"},
		{"abc@example.com", "abc@example.com"},
		{"", ""},
		{"<>", ""},
	}
	for _, tt := range tests {
		if got := CanonicalMessageID(tt.in); got != tt.want {
			t.Errorf("CanonicalMessageID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
