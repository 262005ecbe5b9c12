// Package negotiation owns the negotiation lifecycle: it turns broker
// replies into zone decisions, drafts and dispatches outbound email, and
// enforces the single-writer-per-negotiation discipline.
package negotiation

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"regexp"
	"time"

	"github.com/loadline/closer/internal/alert"
	"github.com/loadline/closer/internal/config"
	"github.com/loadline/closer/internal/mailer"
	"github.com/loadline/closer/internal/models"
	"github.com/loadline/closer/internal/offer"
	"github.com/loadline/closer/internal/zone"
	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
)

// Sentinel errors surfaced by machine operations.
var (
	// ErrAutomationBlocked is returned when the negotiation is in a
	// human-priority or contract-stage status. The inbound message has
	// already been recorded; no transition is attempted.
	ErrAutomationBlocked = errors.New("negotiation: automation blocked in current status")

	// ErrNotAwaitingReview is returned by Approve when there is no
	// persisted draft to dispatch.
	ErrNotAwaitingReview = errors.New("negotiation: not awaiting review")

	// ErrNoRetryPayload is returned by RetryPendingEmail when no unsent
	// intent exists for the negotiation.
	ErrNoRetryPayload = errors.New("negotiation: no pending outbound payload to retry")
)

// FeeAllocator creates the immutable fee split once a negotiation is won.
type FeeAllocator interface {
	Allocate(db *gorm.DB, negotiationID, driverID uint, grossCents int64) (*models.FeeLedgerEntry, error)
}

// Machine applies negotiation state transitions. All decision inputs are
// read fresh from storage per transition; nothing is cached across calls.
type Machine struct {
	db         *gorm.DB
	dispatcher mailer.Dispatcher
	notifier   alert.Notifier
	fees       FeeAllocator
	tokens     mailer.TokenOpts
	pricing    config.PricingConfig
	out        io.Writer
	locks      *locker
}

// Opts holds parameters for creating a Machine.
type Opts struct {
	DB         *gorm.DB
	Dispatcher mailer.Dispatcher
	Notifier   alert.Notifier // optional
	Fees       FeeAllocator   // optional; fee allocation skipped when nil
	Tokens     mailer.TokenOpts
	Pricing    config.PricingConfig
	Out        io.Writer // defaults to io.Discard
}

// New creates a Machine.
func New(opts Opts) (*Machine, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("negotiation: db is required")
	}
	if opts.Dispatcher == nil {
		return nil, fmt.Errorf("negotiation: dispatcher is required")
	}
	if opts.Tokens.Domain == "" {
		return nil, fmt.Errorf("negotiation: mail domain is required")
	}
	out := opts.Out
	if out == nil {
		out = io.Discard
	}
	return &Machine{
		db:         opts.DB,
		dispatcher: opts.Dispatcher,
		notifier:   opts.Notifier,
		fees:       opts.Fees,
		tokens:     opts.Tokens,
		pricing:    opts.Pricing,
		out:        out,
		locks:      newLocker(),
	}, nil
}

// Outcome describes what a machine operation did.
type Outcome struct {
	Status     Status
	Action     zone.Action // empty when no pricing decision was made
	PriceCents int64
	Reason     string
}

var nonDigitsRe = regexp.MustCompile(`[^0-9]`)

// HandleBrokerReply processes one broker message for a negotiation: extract
// the offer, classify it, and either dispatch the drafted response, park it
// for review, or degrade to a needs-human state. Never guesses: ambiguous
// input always stops automation rather than fabricating an action.
func (m *Machine) HandleBrokerReply(ctx context.Context, negotiationID uint, brokerText string) (Outcome, error) {
	release := m.locks.acquire(negotiationID)
	defer release()

	neg, driver, load, err := m.loadAll(negotiationID)
	if err != nil {
		return Outcome{}, err
	}

	status := Status(neg.Status)
	if BlocksAutomation(status) {
		return Outcome{Status: status}, ErrAutomationBlocked
	}

	// A reply moves an outstanding send back into the conversation. This
	// includes CLOSING (the broker came back instead of confirming) and
	// INITIATING (they answered before our outreach went out).
	switch status {
	case StatusSent, StatusCountering, StatusClosing, StatusInitiating:
		if err := m.setStatus(neg, StatusReplied); err != nil {
			return Outcome{}, err
		}
		status = StatusReplied
	}

	// The load's numeric reference must never be read as an offer.
	ignore := map[int64]bool{}
	if digits := nonDigitsRe.ReplaceAllString(loadRef(load), ""); digits != "" {
		var refDollars int64
		fmt.Sscanf(digits, "%d", &refDollars)
		if refDollars > 0 {
			ignore[refDollars*100] = true
		}
	}

	detected, found := offer.Extract(brokerText, offer.Opts{
		MinCents:    m.pricing.MinOfferCents,
		MaxCents:    m.pricing.MaxOfferCents,
		IgnoreCents: ignore,
	})
	if !found {
		return m.degrade(ctx, neg, StatusWaitingForHuman,
			"No confident rate detected in broker reply; waiting for human.",
			alert.SeverityWarning)
	}

	decision, err := zone.Classify(detected.AmountCents, zone.Policy{
		FloorCents:     neg.FloorCents,
		GreenThreshold: m.pricing.GreenThreshold,
		RedThreshold:   m.pricing.RedThreshold,
		CounterMarkup:  m.pricing.CounterMarkup,
		IncrementCents: m.pricing.IncrementCents,
	})
	if errors.Is(err, zone.ErrPolicyMissing) {
		return m.degrade(ctx, neg, StatusWaitingForHuman,
			"Floor rate missing; automation stopped, set a floor and resume.",
			alert.SeverityError)
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("negotiation: classify: %w", err)
	}

	if err := m.db.Model(neg).Update("current_cents", detected.AmountCents).Error; err != nil {
		return Outcome{}, fmt.Errorf("negotiation: record offer: %w", err)
	}
	neg.CurrentCents = detected.AmountCents

	// Audit the decision before acting on it.
	if err := m.appendMessage(neg.ID, models.SenderSystem, decision.Reason, &detected.AmountCents); err != nil {
		return Outcome{}, err
	}

	template := pickTemplate(decision.Action)
	body := buildBody(template, load, decision.PriceCents)
	subject := buildSubject(load)

	// Declines are logged always, emailed only on request.
	if decision.Action == zone.ActionDecline && !driver.NotifyOnDecline {
		if err := m.setStatus(neg, StatusLost); err != nil {
			return Outcome{}, err
		}
		return Outcome{Status: StatusLost, Action: decision.Action, Reason: decision.Reason}, nil
	}

	// Review gate: persist the draft, never send directly.
	if neg.ReviewMode || driver.ReviewMode {
		return m.parkForReview(ctx, neg, decision, subject, body)
	}

	recipient := brokerRecipient(neg, load)
	if recipient == "" {
		return m.degrade(ctx, neg, StatusWaitingForHuman,
			"Could not send response: broker email missing.",
			alert.SeverityError)
	}

	key := fmt.Sprintf("reply-%d-%s-%d-%s", neg.ID, decision.Action, decision.PriceCents, shortHash(brokerText))
	return m.dispatchDecision(ctx, neg, decision, recipient, subject, body, key)
}

// Approve dispatches a persisted pending-review draft. The human approval
// is the only path out of PENDING_REVIEW toward a send.
func (m *Machine) Approve(ctx context.Context, negotiationID uint) (Outcome, error) {
	release := m.locks.acquire(negotiationID)
	defer release()

	neg, _, load, err := m.loadAll(negotiationID)
	if err != nil {
		return Outcome{}, err
	}
	if Status(neg.Status) != StatusPendingReview || neg.PendingAction == "" {
		return Outcome{Status: Status(neg.Status)}, ErrNotAwaitingReview
	}

	recipient := brokerRecipient(neg, load)
	if recipient == "" {
		return m.degrade(ctx, neg, StatusWaitingForHuman,
			"Could not dispatch approved draft: broker email missing.",
			alert.SeverityError)
	}

	decision := zone.Decision{
		Action:     zone.Action(neg.PendingAction),
		PriceCents: neg.PendingCents,
	}
	key := fmt.Sprintf("approve-%d-%s-%d-%s", neg.ID, neg.PendingAction, neg.PendingCents, shortHash(neg.PendingBody))

	out, err := m.dispatchDecision(ctx, neg, decision, recipient, neg.PendingSubject, neg.PendingBody, key)
	if err != nil {
		return out, err
	}

	clear := map[string]interface{}{
		"pending_subject": "",
		"pending_body":    "",
		"pending_action":  "",
		"pending_cents":   0,
	}
	if err := m.db.Model(neg).Updates(clear).Error; err != nil {
		return out, fmt.Errorf("negotiation: clear pending draft: %w", err)
	}
	return out, nil
}

// RetryPendingEmail resends the persisted payload of a negotiation stuck in
// CLOSED_PENDING_EMAIL. The stored intent is resent byte-for-byte; the
// agreed terms are never regenerated.
func (m *Machine) RetryPendingEmail(ctx context.Context, negotiationID uint) (Outcome, error) {
	release := m.locks.acquire(negotiationID)
	defer release()

	neg, _, _, err := m.loadAll(negotiationID)
	if err != nil {
		return Outcome{}, err
	}
	if Status(neg.Status) != StatusClosedPendingMail {
		return Outcome{Status: Status(neg.Status)},
			fmt.Errorf("negotiation: %d is %s, not %s", neg.ID, neg.Status, StatusClosedPendingMail)
	}

	var intent models.OutboundIntent
	err = m.db.Where("negotiation_id = ? AND status <> ?", neg.ID, models.IntentSent).
		Order("created_at DESC").
		First(&intent).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Outcome{Status: StatusClosedPendingMail}, ErrNoRetryPayload
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("negotiation: find retry intent: %w", err)
	}

	env := mailer.Envelope{
		From:      intent.FromAddress,
		Recipient: intent.Recipient,
		Subject:   intent.Subject,
		Body:      intent.Body,
		Headers:   map[string]string{mailer.HeaderNegotiationID: fmt.Sprintf("%d", neg.ID)},
	}
	if sendErr := m.dispatcher.Send(ctx, env); sendErr != nil {
		if err := m.markIntentFailed(&intent, sendErr); err != nil {
			return Outcome{}, err
		}
		return Outcome{Status: StatusClosedPendingMail, Reason: "retry failed"}, nil
	}

	if err := m.markIntentSent(&intent); err != nil {
		return Outcome{}, err
	}
	if err := m.setStatus(neg, StatusClosing); err != nil {
		return Outcome{}, err
	}
	if err := m.appendMessage(neg.ID, models.SenderSystem, "Pending close email delivered on retry.", nil); err != nil {
		return Outcome{}, err
	}
	return Outcome{Status: StatusClosing, Reason: "retry delivered"}, nil
}

// Initiate sends the initial outreach for a fresh negotiation.
func (m *Machine) Initiate(ctx context.Context, negotiationID uint) (Outcome, error) {
	release := m.locks.acquire(negotiationID)
	defer release()

	neg, _, load, err := m.loadAll(negotiationID)
	if err != nil {
		return Outcome{}, err
	}
	if Status(neg.Status) != StatusInitiating {
		return Outcome{Status: Status(neg.Status)},
			fmt.Errorf("negotiation: %d is %s, not %s", neg.ID, neg.Status, StatusInitiating)
	}

	recipient := brokerRecipient(neg, load)
	if recipient == "" {
		return m.degrade(ctx, neg, StatusManual,
			"Cannot initiate: broker email missing.", alert.SeverityError)
	}

	subject := fmt.Sprintf("Load %s", loadRef(load))
	if load.Origin != "" && load.Destination != "" {
		subject = fmt.Sprintf("%s - %s to %s", subject, load.Origin, load.Destination)
	}
	body := buildIntroBody(load)

	intent, err := m.persistIntent(neg.ID, fmt.Sprintf("init-%d", neg.ID), recipient, subject, body)
	if err != nil {
		return Outcome{}, err
	}
	if sendErr := m.dispatcher.Send(ctx, intentEnvelope(intent)); sendErr != nil {
		if err := m.markIntentFailed(intent, sendErr); err != nil {
			return Outcome{}, err
		}
		m.notify(ctx, alert.Event{
			Severity:      alert.SeverityWarning,
			Title:         "initial outreach failed",
			Body:          sendErr.Error(),
			NegotiationID: neg.ID,
		})
		return Outcome{Status: StatusInitiating, Reason: "send failed"}, nil
	}
	if err := m.markIntentSent(intent); err != nil {
		return Outcome{}, err
	}
	if err := m.setStatus(neg, StatusSent); err != nil {
		return Outcome{}, err
	}
	if err := m.appendMessage(neg.ID, models.SenderAgent, body, nil); err != nil {
		return Outcome{}, err
	}
	return Outcome{Status: StatusSent}, nil
}

// MarkManual stops automation for a negotiation. Reachable from any
// non-terminal state; the flag is observed by the next transition attempt
// because status is read fresh under the per-id lock.
func (m *Machine) MarkManual(ctx context.Context, negotiationID uint, reason string) error {
	release := m.locks.acquire(negotiationID)
	defer release()

	neg, _, _, err := m.loadAll(negotiationID)
	if err != nil {
		return err
	}
	status := Status(neg.Status)
	if status == StatusManual {
		return nil
	}
	if IsTerminal(status) {
		return fmt.Errorf("negotiation: %d already terminal (%s)", neg.ID, neg.Status)
	}
	if err := m.forceStatus(neg, StatusManual); err != nil {
		return err
	}
	body := "Automation stopped: " + reason
	if reason == "" {
		body = "Automation stopped by operator."
	}
	return m.appendMessage(neg.ID, models.SenderSystem, body, nil)
}

// MarkWon finalizes a won negotiation at the agreed gross value and
// triggers the fee allocation. Allocation is idempotent, so re-running a
// MarkWon that previously half-completed cannot double-charge.
func (m *Machine) MarkWon(ctx context.Context, negotiationID uint, grossCents int64) (Outcome, error) {
	release := m.locks.acquire(negotiationID)
	defer release()

	neg, _, _, err := m.loadAll(negotiationID)
	if err != nil {
		return Outcome{}, err
	}
	status := Status(neg.Status)
	if status != StatusWon {
		if !canTransition(status, StatusWon) {
			return Outcome{Status: status},
				fmt.Errorf("negotiation: cannot mark %d won from %s", neg.ID, neg.Status)
		}
		if err := m.setStatus(neg, StatusWon); err != nil {
			return Outcome{}, err
		}
	}

	if grossCents <= 0 {
		grossCents = neg.CurrentCents
	}
	if grossCents <= 0 {
		return Outcome{Status: StatusWon},
			fmt.Errorf("negotiation: %d has no gross value to settle", neg.ID)
	}

	if err := m.appendMessage(neg.ID, models.SenderSystem,
		fmt.Sprintf("Negotiation won at %s.", zone.FormatCents(grossCents)), &grossCents); err != nil {
		return Outcome{}, err
	}

	if m.fees != nil {
		if _, err := m.fees.Allocate(m.db, neg.ID, neg.DriverID, grossCents); err != nil {
			return Outcome{Status: StatusWon}, fmt.Errorf("negotiation: allocate fees: %w", err)
		}
	}
	return Outcome{Status: StatusWon, PriceCents: grossCents}, nil
}

// ReceiveRateCon records an arrived rate confirmation document.
func (m *Machine) ReceiveRateCon(ctx context.Context, negotiationID uint, path string) error {
	release := m.locks.acquire(negotiationID)
	defer release()

	neg, _, _, err := m.loadAll(negotiationID)
	if err != nil {
		return err
	}
	status := Status(neg.Status)
	if status != StatusClosing && status != StatusWon {
		return fmt.Errorf("negotiation: rate con not expected in %s", neg.Status)
	}
	if err := m.setStatus(neg, StatusRateConReceived); err != nil {
		return err
	}
	if err := m.db.Model(neg).Update("rate_con_path", path).Error; err != nil {
		return fmt.Errorf("negotiation: record rate con path: %w", err)
	}
	if err := m.appendMessage(neg.ID, models.SenderSystem,
		"Rate con received: "+path+". Review and sign.", nil); err != nil {
		return err
	}
	m.notify(ctx, alert.Event{
		Severity:      alert.SeverityInfo,
		Title:         "rate con received",
		Body:          path,
		NegotiationID: neg.ID,
	})
	return nil
}

// SignRateCon records human sign-off on the received rate confirmation.
func (m *Machine) SignRateCon(ctx context.Context, negotiationID uint) error {
	release := m.locks.acquire(negotiationID)
	defer release()

	neg, _, _, err := m.loadAll(negotiationID)
	if err != nil {
		return err
	}
	if Status(neg.Status) != StatusRateConReceived {
		return fmt.Errorf("negotiation: %d is %s, not %s", neg.ID, neg.Status, StatusRateConReceived)
	}
	if err := m.setStatus(neg, StatusRateConSigned); err != nil {
		return err
	}
	return m.appendMessage(neg.ID, models.SenderSystem, "Rate con signed.", nil)
}

// ---------------------------------------------------------------------------
// Internals
// ---------------------------------------------------------------------------

// dispatchDecision persists the outbound intent, attempts the send, and
// applies the resulting status. The intent row exists before the first
// attempt so a crash mid-send leaves a complete retry payload behind.
func (m *Machine) dispatchDecision(ctx context.Context, neg *models.Negotiation, decision zone.Decision, recipient, subject, body, idempotencyKey string) (Outcome, error) {
	target := actionStatus(decision.Action)

	// The landing status must be reachable before anything is persisted or
	// sent; a send with no recordable transition would be unaccounted for.
	if from := Status(neg.Status); from != target && !canTransition(from, target) {
		return Outcome{Status: from},
			fmt.Errorf("negotiation: cannot dispatch %s from %s for %d", decision.Action, from, neg.ID)
	}

	intent, err := m.persistIntent(neg.ID, idempotencyKey, recipient, subject, body)
	if err != nil {
		return Outcome{}, err
	}

	if intent.Status == models.IntentSent {
		// Already delivered under this key; re-apply the status only.
		if err := m.setStatus(neg, target); err != nil {
			return Outcome{}, err
		}
		return Outcome{
			Status:     target,
			Action:     decision.Action,
			PriceCents: decision.PriceCents,
			Reason:     decision.Reason,
		}, nil
	}

	if sendErr := m.dispatcher.Send(ctx, intentEnvelope(intent)); sendErr != nil {
		if err := m.markIntentFailed(intent, sendErr); err != nil {
			return Outcome{}, err
		}
		if decision.Action == zone.ActionClose {
			// Terms are agreed; the failure must not lose them.
			if err := m.stepStatus(neg, StatusClosing, StatusClosedPendingMail); err != nil {
				return Outcome{}, err
			}
			if err := m.appendMessage(neg.ID, models.SenderSystem,
				"Outbound send failed after terms agreed; retry payload persisted.", nil); err != nil {
				return Outcome{}, err
			}
			m.notify(ctx, alert.Event{
				Severity:      alert.SeverityError,
				Title:         "close email failed, retry pending",
				Body:          sendErr.Error(),
				NegotiationID: neg.ID,
			})
			return Outcome{
				Status:     StatusClosedPendingMail,
				Action:     decision.Action,
				PriceCents: decision.PriceCents,
				Reason:     "dispatch failed after terms agreed",
			}, nil
		}
		return m.degrade(ctx, neg, StatusWaitingForHuman,
			fmt.Sprintf("Attempted %s but outbound send failed.", decision.Action),
			alert.SeverityError)
	}

	if err := m.markIntentSent(intent); err != nil {
		return Outcome{}, err
	}
	if err := m.setStatus(neg, target); err != nil {
		return Outcome{}, err
	}
	updates := map[string]interface{}{}
	if decision.Action == zone.ActionCounter {
		updates["counter_cents"] = decision.PriceCents
	}
	if len(updates) > 0 {
		if err := m.db.Model(neg).Updates(updates).Error; err != nil {
			return Outcome{}, fmt.Errorf("negotiation: record counter: %w", err)
		}
	}
	if err := m.appendMessage(neg.ID, models.SenderAgent, body, nil); err != nil {
		return Outcome{}, err
	}
	sent := fmt.Sprintf("Sent %s", decision.Action)
	if decision.PriceCents > 0 {
		sent = fmt.Sprintf("%s at %s", sent, zone.FormatCents(decision.PriceCents))
	}
	if err := m.appendMessage(neg.ID, models.SenderSystem, sent+".", nil); err != nil {
		return Outcome{}, err
	}
	fmt.Fprintf(m.out, "negotiation: %d %s → %s\n", neg.ID, decision.Action, target)
	return Outcome{
		Status:     target,
		Action:     decision.Action,
		PriceCents: decision.PriceCents,
		Reason:     decision.Reason,
	}, nil
}

// parkForReview persists the drafted action for human approval.
func (m *Machine) parkForReview(ctx context.Context, neg *models.Negotiation, decision zone.Decision, subject, body string) (Outcome, error) {
	updates := map[string]interface{}{
		"pending_subject": subject,
		"pending_body":    body,
		"pending_action":  string(decision.Action),
		"pending_cents":   decision.PriceCents,
	}
	if err := m.db.Model(neg).Updates(updates).Error; err != nil {
		return Outcome{}, fmt.Errorf("negotiation: persist draft: %w", err)
	}
	if err := m.setStatus(neg, StatusPendingReview); err != nil {
		return Outcome{}, err
	}
	note := fmt.Sprintf("Draft ready for review: action=%s price=%s.",
		decision.Action, zone.FormatCents(decision.PriceCents))
	if decision.PriceCents == 0 {
		note = fmt.Sprintf("Draft ready for review: action=%s.", decision.Action)
	}
	if err := m.appendMessage(neg.ID, models.SenderSystem, note, nil); err != nil {
		return Outcome{}, err
	}
	m.notify(ctx, alert.Event{
		Severity:      alert.SeverityInfo,
		Title:         "draft awaiting review",
		Body:          note,
		NegotiationID: neg.ID,
	})
	return Outcome{
		Status:     StatusPendingReview,
		Action:     decision.Action,
		PriceCents: decision.PriceCents,
		Reason:     decision.Reason,
	}, nil
}

// degrade moves the negotiation to a needs-human state with an audit
// message and an operator alert. Degradations are outcomes, not errors.
func (m *Machine) degrade(ctx context.Context, neg *models.Negotiation, to Status, reason, severity string) (Outcome, error) {
	if Status(neg.Status) != to {
		if err := m.forceStatus(neg, to); err != nil {
			return Outcome{}, err
		}
	}
	if err := m.appendMessage(neg.ID, models.SenderSystem, reason, nil); err != nil {
		return Outcome{}, err
	}
	m.notify(ctx, alert.Event{
		Severity:      severity,
		Title:         "needs human",
		Body:          reason,
		NegotiationID: neg.ID,
	})
	return Outcome{Status: to, Reason: reason}, nil
}

// loadAll reads the negotiation and its driver and load fresh from storage.
func (m *Machine) loadAll(negotiationID uint) (*models.Negotiation, *models.Driver, *models.Load, error) {
	var neg models.Negotiation
	if err := m.db.First(&neg, negotiationID).Error; err != nil {
		return nil, nil, nil, fmt.Errorf("negotiation: load %d: %w", negotiationID, err)
	}
	var driver models.Driver
	if err := m.db.First(&driver, neg.DriverID).Error; err != nil {
		return nil, nil, nil, fmt.Errorf("negotiation: load driver %d: %w", neg.DriverID, err)
	}
	var load models.Load
	if err := m.db.First(&load, neg.LoadID).Error; err != nil {
		return nil, nil, nil, fmt.Errorf("negotiation: load load %d: %w", neg.LoadID, err)
	}
	return &neg, &driver, &load, nil
}

// setStatus applies a graph-checked transition.
func (m *Machine) setStatus(neg *models.Negotiation, to Status) error {
	from := Status(neg.Status)
	if from == to {
		return nil
	}
	if !canTransition(from, to) {
		return fmt.Errorf("negotiation: illegal transition %s → %s for %d", from, to, neg.ID)
	}
	return m.writeStatus(neg, to)
}

// stepStatus walks through an intermediate state when the direct edge does
// not exist (e.g. REPLIED → CLOSING → CLOSED_PENDING_EMAIL).
func (m *Machine) stepStatus(neg *models.Negotiation, via, to Status) error {
	if Status(neg.Status) != via {
		if err := m.setStatus(neg, via); err != nil {
			return err
		}
	}
	return m.setStatus(neg, to)
}

// forceStatus bypasses the graph for human-priority degradations, which
// are allowed from any non-terminal state.
func (m *Machine) forceStatus(neg *models.Negotiation, to Status) error {
	return m.writeStatus(neg, to)
}

func (m *Machine) writeStatus(neg *models.Negotiation, to Status) error {
	now := time.Now()
	err := m.db.Model(neg).Updates(map[string]interface{}{
		"status":             string(to),
		"last_transition_at": now,
	}).Error
	if err != nil {
		return fmt.Errorf("negotiation: transition %d to %s: %w", neg.ID, to, err)
	}
	neg.Status = string(to)
	neg.LastTransitionAt = now
	return nil
}

// appendMessage writes one append-only audit log entry.
func (m *Machine) appendMessage(negotiationID uint, sender, body string, offerCents *int64) error {
	msg := models.Message{
		NegotiationID: negotiationID,
		Sender:        sender,
		Body:          body,
		OfferCents:    offerCents,
		CreatedAt:     time.Now(),
	}
	if err := m.db.Create(&msg).Error; err != nil {
		return fmt.Errorf("negotiation: append message: %w", err)
	}
	return nil
}

// persistIntent writes the outbound payload before any send attempt. A
// duplicate idempotency key returns the existing row: the send has already
// been produced once and must not be produced again.
func (m *Machine) persistIntent(negotiationID uint, idempotencyKey, recipient, subject, body string) (*models.OutboundIntent, error) {
	var existing models.OutboundIntent
	err := m.db.Where("idempotency_key = ?", idempotencyKey).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("negotiation: lookup intent: %w", err)
	}

	env := mailer.BuildEnvelope(negotiationID, recipient, subject, body, m.tokens)
	intent := models.OutboundIntent{
		ID:             ulid.Make().String(),
		NegotiationID:  negotiationID,
		IdempotencyKey: idempotencyKey,
		Recipient:      env.Recipient,
		Subject:        env.Subject,
		Body:           env.Body,
		FromAddress:    env.From,
		Status:         models.IntentPending,
		CreatedAt:      time.Now(),
	}
	if err := m.db.Create(&intent).Error; err != nil {
		return nil, fmt.Errorf("negotiation: persist intent: %w", err)
	}
	return &intent, nil
}

func intentEnvelope(intent *models.OutboundIntent) mailer.Envelope {
	return mailer.Envelope{
		From:      intent.FromAddress,
		Recipient: intent.Recipient,
		Subject:   intent.Subject,
		Body:      intent.Body,
		Headers:   map[string]string{mailer.HeaderNegotiationID: fmt.Sprintf("%d", intent.NegotiationID)},
	}
}

func (m *Machine) markIntentSent(intent *models.OutboundIntent) error {
	now := time.Now()
	err := m.db.Model(intent).Updates(map[string]interface{}{
		"status":        models.IntentSent,
		"attempt_count": gorm.Expr("attempt_count + 1"),
		"sent_at":       now,
	}).Error
	if err != nil {
		return fmt.Errorf("negotiation: mark intent sent: %w", err)
	}
	intent.Status = models.IntentSent
	intent.SentAt = &now
	return nil
}

func (m *Machine) markIntentFailed(intent *models.OutboundIntent, sendErr error) error {
	err := m.db.Model(intent).Updates(map[string]interface{}{
		"status":        models.IntentFailed,
		"attempt_count": gorm.Expr("attempt_count + 1"),
		"last_error":    sendErr.Error(),
	}).Error
	if err != nil {
		return fmt.Errorf("negotiation: mark intent failed: %w", err)
	}
	intent.Status = models.IntentFailed
	return nil
}

func (m *Machine) notify(ctx context.Context, ev alert.Event) {
	if m.notifier == nil {
		return
	}
	_ = m.notifier.Notify(ctx, ev)
}

// actionStatus maps a classifier action to the status it lands in.
func actionStatus(action zone.Action) Status {
	switch action {
	case zone.ActionClose:
		return StatusClosing
	case zone.ActionCounter:
		return StatusCountering
	case zone.ActionDecline:
		return StatusLost
	}
	return StatusWaitingForHuman
}

// brokerRecipient picks the reply address, preferring the negotiation's
// own record over the load posting.
func brokerRecipient(neg *models.Negotiation, load *models.Load) string {
	if neg.BrokerEmail != "" {
		return neg.BrokerEmail
	}
	return load.BrokerEmail
}

// shortHash gives a stable short fingerprint for idempotency keys.
func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return fmt.Sprintf("%x", sum[:8])
}
