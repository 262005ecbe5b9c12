// Package routing attributes inbound email to negotiations. Three
// independent layers carry the negotiation id (address tag, custom header,
// subject token); any surviving layer is enough, and when layers disagree
// the most tamper-resistant one wins. Attribution never guesses: an email
// no layer can place goes to manual triage.
package routing

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/loadline/closer/internal/mailer"
)

// ErrUnroutable means no routing layer produced a negotiation id.
var ErrUnroutable = errors.New("routing: no layer matched")

// Attachment is one file carried by an inbound email, already written to
// local storage by the transport layer.
type Attachment struct {
	Filename string
	Path     string
}

// InboundEmail is one parsed inbound message.
type InboundEmail struct {
	MessageID   string // RFC 5322 Message-ID, may be empty
	From        string
	To          string
	Subject     string
	Body        string
	Headers     map[string]string
	Attachments []Attachment
}

// Layer names, in priority order.
const (
	LayerAddressTag   = "address_tag"
	LayerHeader       = "header"
	LayerSubjectToken = "subject_token"
)

// Match is one layer's attribution.
type Match struct {
	Layer         string
	NegotiationID uint
}

var (
	addressTagRe   = regexp.MustCompile(`\+(\d+)@`)
	subjectTokenRe = regexp.MustCompile(`\[NEG:(\d+)\]`)
)

// resolvers run in priority order: the address tag survives forwarding
// better than a header, and a header better than subject text a human may
// have edited.
var resolvers = []func(email InboundEmail) (Match, bool){
	resolveAddressTag,
	resolveHeader,
	resolveSubjectToken,
}

func resolveAddressTag(email InboundEmail) (Match, bool) {
	m := addressTagRe.FindStringSubmatch(email.To)
	if m == nil {
		return Match{}, false
	}
	id, err := strconv.ParseUint(m[1], 10, 32)
	if err != nil || id == 0 {
		return Match{}, false
	}
	return Match{Layer: LayerAddressTag, NegotiationID: uint(id)}, true
}

func resolveHeader(email InboundEmail) (Match, bool) {
	raw := headerValue(email.Headers, mailer.HeaderNegotiationID)
	if raw == "" {
		return Match{}, false
	}
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 32)
	if err != nil || id == 0 {
		return Match{}, false
	}
	return Match{Layer: LayerHeader, NegotiationID: uint(id)}, true
}

func resolveSubjectToken(email InboundEmail) (Match, bool) {
	m := subjectTokenRe.FindStringSubmatch(email.Subject)
	if m == nil {
		return Match{}, false
	}
	id, err := strconv.ParseUint(m[1], 10, 32)
	if err != nil || id == 0 {
		return Match{}, false
	}
	return Match{Layer: LayerSubjectToken, NegotiationID: uint(id)}, true
}

// headerValue does a case-insensitive header lookup.
func headerValue(headers map[string]string, name string) string {
	if headers == nil {
		return ""
	}
	if v, ok := headers[name]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// Resolve runs every layer and returns the highest-priority match. When
// layers disagree the conflict is logged to out and the higher layer's id
// is used.
func Resolve(email InboundEmail, out io.Writer) (Match, error) {
	var matches []Match
	for _, resolve := range resolvers {
		if m, ok := resolve(email); ok {
			matches = append(matches, m)
		}
	}
	if len(matches) == 0 {
		return Match{}, ErrUnroutable
	}

	winner := matches[0]
	for _, m := range matches[1:] {
		if m.NegotiationID != winner.NegotiationID && out != nil {
			fmt.Fprintf(out, "routing: layer conflict: %s says %d, %s says %d, using %s\n",
				winner.Layer, winner.NegotiationID, m.Layer, m.NegotiationID, winner.Layer)
		}
	}
	return winner, nil
}
