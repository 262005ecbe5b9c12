// Package mailer defines the outbound mail collaborator boundary.
//
// Transport mechanics (SMTP sessions, retries at the wire level) live
// outside this repo; the core hands a fully built envelope to a Dispatcher
// and records the outcome. Every envelope carries the negotiation id in
// three redundant channels (address tag, custom header, subject token)
// so replies survive intermediate mail systems stripping any two of them.
package mailer

import (
	"context"
	"fmt"
)

// HeaderNegotiationID is the custom header carrying the negotiation id.
const HeaderNegotiationID = "X-Closer-Negotiation-ID"

// Envelope is one outbound email, ready for transport.
type Envelope struct {
	From      string            // dispatch+<negotiation id>@domain
	Recipient string
	Subject   string            // ends with the [NEG:<id>] token
	Body      string
	Headers   map[string]string // includes HeaderNegotiationID
}

// Dispatcher sends envelopes. Implementations must be safe for concurrent
// use; a non-nil error means the send did not happen and may be retried
// with the identical envelope.
type Dispatcher interface {
	Send(ctx context.Context, env Envelope) error
}

// TokenOpts configures routing-token encoding.
type TokenOpts struct {
	Domain    string // mail domain for the address tag
	LocalPart string // base local part, defaults to "dispatch"
}

// FromAddress builds the address-tag layer: dispatch+<id>@domain.
func FromAddress(negotiationID uint, opts TokenOpts) string {
	local := opts.LocalPart
	if local == "" {
		local = "dispatch"
	}
	return fmt.Sprintf("%s+%d@%s", local, negotiationID, opts.Domain)
}

// SubjectToken builds the subject-token layer, e.g. "[NEG:42]".
func SubjectToken(negotiationID uint) string {
	return fmt.Sprintf("[NEG:%d]", negotiationID)
}

// TagSubject appends the subject token unless it is already present.
func TagSubject(subject string, negotiationID uint) string {
	token := SubjectToken(negotiationID)
	if subject == "" {
		return token
	}
	if containsToken(subject, token) {
		return subject
	}
	return subject + " " + token
}

func containsToken(subject, token string) bool {
	for i := 0; i+len(token) <= len(subject); i++ {
		if subject[i:i+len(token)] == token {
			return true
		}
	}
	return false
}

// BuildEnvelope assembles the full three-layer envelope for a negotiation.
func BuildEnvelope(negotiationID uint, recipient, subject, body string, opts TokenOpts) Envelope {
	return Envelope{
		From:      FromAddress(negotiationID, opts),
		Recipient: recipient,
		Subject:   TagSubject(subject, negotiationID),
		Body:      body,
		Headers: map[string]string{
			HeaderNegotiationID: fmt.Sprintf("%d", negotiationID),
		},
	}
}
