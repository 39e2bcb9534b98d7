// Package esp classifies which sending platform dispatched an email, based
// on provider fingerprints left in its headers.
package esp

import (
	"regexp"
	"sort"
	"strings"

	"github.com/probekit/mailtrace/internal/headers"
)

// signature pairs a header fingerprint with its platform label. Signatures
// are evaluated in declaration order and the first match wins, so when a
// relay chain names more than one provider the earlier entry takes priority.
type signature struct {
	pattern *regexp.Regexp
	label   string
}

var signatures = []signature{
	{regexp.MustCompile(`amazonses|amazon ses|ses-[a-z0-9.-]+|ses\.amazonaws\.com`), "Amazon SES"},
	{regexp.MustCompile(`sendgrid|x-sg-emea|sg-mail\.com`), "SendGrid"},
	{regexp.MustCompile(`mailgun|mx\.mailgun\.net|x-mailgun`), "Mailgun"},
	{regexp.MustCompile(`sparkpost|x-msys`), "SparkPost"},
	{regexp.MustCompile(`postmark|x-pm-`), "Postmark"},
	{regexp.MustCompile(`sendinblue|brevo|x-mailin`), "Brevo (Sendinblue)"},
	{regexp.MustCompile(`zoho\.com|zoho mail`), "Zoho Mail"},
	{regexp.MustCompile(`gmail\.com|google\.com|mail\.google\.com|x-gm-`), "Gmail"},
	{regexp.MustCompile(`outlook\.com|exchange|microsoft\.com|x-ms-`), "Outlook/Exchange"},
	{regexp.MustCompile(`yahoo\.com|x-yahoo-`), "Yahoo Mail"},
	{regexp.MustCompile(`sendpulse|x-smtpapi`), "SendPulse"},
}

// receivedFallbacks are narrower domain tokens checked against only the
// "received" values when none of the primary signatures matched.
var receivedFallbacks = []struct {
	tokens []string
	label  string
}{
	{[]string{"amazonses.com", "ses.amazonaws.com"}, "Amazon SES"},
	{[]string{"sendgrid.net"}, "SendGrid"},
	{[]string{"mailgun.net"}, "Mailgun"},
}

// Classify returns the best-guess platform label for the message whose
// headers are given, or ok=false when no known fingerprint is present.
// It is deterministic for a given header map and never fails; an unknown
// platform is an expected outcome, not an error.
func Classify(hdrs headers.Map) (label string, ok bool) {
	blob := headerBlob(hdrs)
	for _, sig := range signatures {
		if sig.pattern.MatchString(blob) {
			return sig.label, true
		}
	}

	received := strings.ToLower(strings.Join(hdrs.Get("received"), "\n"))
	for _, fb := range receivedFallbacks {
		for _, token := range fb.tokens {
			if strings.Contains(received, token) {
				return fb.label, true
			}
		}
	}
	return "", false
}

// headerBlob flattens the whole header map into one lower-cased string.
// Names are sorted only to keep the blob stable across calls; matching
// itself is order-independent.
func headerBlob(hdrs headers.Map) string {
	names := make([]string, 0, len(hdrs))
	for name := range hdrs {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		b.WriteString(name)
		b.WriteString(": ")
		b.WriteString(strings.Join(hdrs[name], "\n"))
		b.WriteString("\n")
	}
	return strings.ToLower(b.String())
}
