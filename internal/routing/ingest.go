package routing

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/loadline/closer/internal/alert"
	"github.com/loadline/closer/internal/models"
	"github.com/loadline/closer/internal/negotiation"
	"gorm.io/gorm"
)

// Negotiator is the slice of the state machine the ingest pipeline drives.
type Negotiator interface {
	HandleBrokerReply(ctx context.Context, negotiationID uint, body string) (negotiation.Outcome, error)
	ReceiveRateCon(ctx context.Context, negotiationID uint, path string) error
}

// Ingestor turns inbound email into negotiation messages and drives the
// state machine. Ingestion is idempotent per message: redelivery of an
// already-seen email records a suppressed audit row and succeeds.
type Ingestor struct {
	db       *gorm.DB
	machine  Negotiator
	notifier alert.Notifier
	out      io.Writer
}

// NewIngestor builds an ingest pipeline.
func NewIngestor(db *gorm.DB, machine Negotiator, notifier alert.Notifier, out io.Writer) (*Ingestor, error) {
	if db == nil {
		return nil, fmt.Errorf("routing: db is required")
	}
	if machine == nil {
		return nil, fmt.Errorf("routing: negotiator is required")
	}
	if out == nil {
		out = io.Discard
	}
	return &Ingestor{db: db, machine: machine, notifier: notifier, out: out}, nil
}

// Ingest processes one inbound email end to end: attribute, dedupe,
// record, then hand to the machine. A nil return means the email was
// fully handled, including the triage and suppressed-duplicate paths.
func (in *Ingestor) Ingest(ctx context.Context, email InboundEmail) error {
	match, err := Resolve(email, in.out)
	if errors.Is(err, ErrUnroutable) {
		return in.triage(ctx, email, "no routing layer matched")
	}
	if err != nil {
		return fmt.Errorf("routing: resolve: %w", err)
	}

	var neg models.Negotiation
	err = in.db.First(&neg, match.NegotiationID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return in.triage(ctx, email, fmt.Sprintf("negotiation %d not found", match.NegotiationID))
	}
	if err != nil {
		return fmt.Errorf("routing: load negotiation %d: %w", match.NegotiationID, err)
	}

	key := DedupeKey(email)
	var seen int64
	err = in.db.Model(&models.Message{}).
		Where("negotiation_id = ? AND dedupe_key = ? AND suppressed = ?", neg.ID, key, false).
		Count(&seen).Error
	if err != nil {
		return fmt.Errorf("routing: dedupe check: %w", err)
	}
	if seen > 0 {
		// Redelivery: keep the audit trail, skip the machine.
		dup := models.Message{
			NegotiationID: neg.ID,
			Sender:        models.SenderBroker,
			Body:          email.Body,
			DedupeKey:     key,
			Suppressed:    true,
			CreatedAt:     time.Now(),
		}
		if err := in.db.Create(&dup).Error; err != nil {
			return fmt.Errorf("routing: record duplicate: %w", err)
		}
		fmt.Fprintf(in.out, "routing: suppressed duplicate for negotiation %d (%s)\n", neg.ID, match.Layer)
		return nil
	}

	msg := models.Message{
		NegotiationID: neg.ID,
		Sender:        models.SenderBroker,
		Body:          email.Body,
		DedupeKey:     key,
		CreatedAt:     time.Now(),
	}
	if err := in.db.Create(&msg).Error; err != nil {
		return fmt.Errorf("routing: record message: %w", err)
	}
	fmt.Fprintf(in.out, "routing: negotiation %d matched via %s\n", neg.ID, match.Layer)

	if path := pdfAttachment(email); path != "" {
		if err := in.machine.ReceiveRateCon(ctx, neg.ID, path); err != nil {
			fmt.Fprintf(in.out, "routing: rate con for negotiation %d not accepted: %v\n", neg.ID, err)
		} else {
			return nil
		}
	}

	var driver models.Driver
	if err := in.db.First(&driver, neg.DriverID).Error; err != nil {
		return fmt.Errorf("routing: load driver %d: %w", neg.DriverID, err)
	}
	if !driver.AutoNegotiate {
		fmt.Fprintf(in.out, "routing: negotiation %d recorded only, auto-negotiate off\n", neg.ID)
		return nil
	}

	_, err = in.machine.HandleBrokerReply(ctx, neg.ID, email.Body)
	if errors.Is(err, negotiation.ErrAutomationBlocked) {
		fmt.Fprintf(in.out, "routing: negotiation %d recorded only, automation blocked\n", neg.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("routing: handle reply: %w", err)
	}
	return nil
}

// triage persists an unattributable email for manual review and alerts the
// operator. Triage is a success from the transport's point of view: the
// email was not lost.
func (in *Ingestor) triage(ctx context.Context, email InboundEmail, reason string) error {
	headers, err := redactHeaders(email)
	if err != nil {
		return fmt.Errorf("routing: snapshot headers: %w", err)
	}
	row := models.UnroutedMessage{
		From:      email.From,
		Subject:   email.Subject,
		Body:      email.Body,
		Headers:   headers,
		CreatedAt: time.Now(),
	}
	if err := in.db.Create(&row).Error; err != nil {
		return fmt.Errorf("routing: record unrouted: %w", err)
	}
	fmt.Fprintf(in.out, "routing: unroutable email from %s: %s\n", email.From, reason)
	if in.notifier != nil {
		_ = in.notifier.Notify(ctx, alert.Event{
			Severity: alert.SeverityWarning,
			Title:    "unroutable email needs triage",
			Body:     fmt.Sprintf("from=%s subject=%q: %s", email.From, email.Subject, reason),
		})
	}
	return nil
}

// routingHeaders is the allowlist kept in triage snapshots. Everything
// else (received chains, auth results, list headers) is dropped.
var routingHeaders = []string{
	"From",
	"To",
	"Subject",
	"Date",
	"Message-ID",
	"In-Reply-To",
	"References",
	"X-Closer-Negotiation-ID",
}

func redactHeaders(email InboundEmail) (string, error) {
	kept := map[string]string{}
	for _, name := range routingHeaders {
		if v := headerValue(email.Headers, name); v != "" {
			kept[name] = v
		}
	}
	raw, err := json.Marshal(kept)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// DedupeKey derives the per-message idempotency key: the Message-ID when
// the sender set one, otherwise a digest of the visible message identity.
func DedupeKey(email InboundEmail) string {
	if id := strings.TrimSpace(email.MessageID); id != "" {
		return digest(id)
	}
	return digest(email.From + "\x00" + email.Subject + "\x00" + email.Body)
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return fmt.Sprintf("%x", sum)
}

// pdfAttachment returns the stored path of the first PDF attachment.
func pdfAttachment(email InboundEmail) string {
	for _, att := range email.Attachments {
		if strings.HasSuffix(strings.ToLower(att.Filename), ".pdf") {
			return att.Path
		}
	}
	return ""
}
