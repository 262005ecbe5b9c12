// Package billing settles accumulated dispatch fees once a week. The run
// is idempotent per (driver, week): BillingRun rows are the anchor, and
// the payment collaborator sees one idempotency key per anchor, so crashes
// and retries can never double-charge a driver.
package billing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/loadline/closer/internal/alert"
	"github.com/loadline/closer/internal/config"
	"github.com/loadline/closer/internal/models"
	"github.com/loadline/closer/internal/zone"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Runner executes weekly billing.
type Runner struct {
	db            *gorm.DB
	payments      PaymentClient
	notifier      alert.Notifier
	loc           *time.Location
	workers       int
	chargeTimeout time.Duration
	out           io.Writer
}

// NewRunner builds a billing runner from configuration.
func NewRunner(db *gorm.DB, payments PaymentClient, notifier alert.Notifier, cfg config.BillingConfig, out io.Writer) (*Runner, error) {
	if db == nil {
		return nil, fmt.Errorf("billing: db is required")
	}
	if payments == nil {
		return nil, fmt.Errorf("billing: payment client is required")
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("billing: load timezone %q: %w", cfg.Timezone, err)
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	timeout := time.Duration(cfg.ChargeTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if out == nil {
		out = io.Discard
	}
	return &Runner{
		db:            db,
		payments:      payments,
		notifier:      notifier,
		loc:           loc,
		workers:       workers,
		chargeTimeout: timeout,
		out:           out,
	}, nil
}

// Location returns the billing timezone.
func (r *Runner) Location() *time.Location { return r.loc }

// Summary reports what one weekly run did.
type Summary struct {
	WeekEnding     time.Time
	DryRun         bool
	Charged        int
	Skipped        int
	Failed         int
	Reconciled     int
	NeedsReconcile int
	TotalCents     int64
}

// IdempotencyKey is the per (driver, week) key handed to the payment
// collaborator.
func IdempotencyKey(driverID uint, weekEnding time.Time) string {
	return fmt.Sprintf("billing-%d-%s", driverID, weekEnding.Format("2006-01-02"))
}

// RunWeek settles all pending invoices for the given week ending. Runs are
// reconcile-first: split-brain anchors from an interrupted run are resolved
// against the collaborator before any new charge is attempted. Safe to call
// repeatedly; completed drivers are skipped.
func (r *Runner) RunWeek(ctx context.Context, weekEnding time.Time, dryRun bool) (Summary, error) {
	summary := Summary{WeekEnding: weekEnding, DryRun: dryRun}

	if !dryRun {
		if err := r.reconcile(ctx, &summary); err != nil {
			return summary, err
		}
	}

	driverIDs, err := r.driversOwing(weekEnding)
	if err != nil {
		return summary, err
	}
	fmt.Fprintf(r.out, "billing: week ending %s: %d drivers owing\n",
		weekEnding.Format("2006-01-02"), len(driverIDs))

	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		jobs = make(chan uint)
	)
	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for driverID := range jobs {
				outcome := r.chargeDriver(ctx, driverID, weekEnding, dryRun)
				mu.Lock()
				summary.Charged += outcome.Charged
				summary.Skipped += outcome.Skipped
				summary.Failed += outcome.Failed
				summary.NeedsReconcile += outcome.NeedsReconcile
				summary.TotalCents += outcome.TotalCents
				mu.Unlock()
			}
		}()
	}
	for _, id := range driverIDs {
		jobs <- id
	}
	close(jobs)
	wg.Wait()

	fmt.Fprintf(r.out, "billing: week ending %s done: charged=%d skipped=%d failed=%d reconcile=%d total=%s\n",
		weekEnding.Format("2006-01-02"), summary.Charged, summary.Skipped,
		summary.Failed, summary.NeedsReconcile, zone.FormatCents(summary.TotalCents))
	return summary, nil
}

// reconcile resolves every needs_reconcile anchor, whatever week it is
// from; a stale anchor's invoices must never be re-charged under a fresh
// week's key while its own charge is unresolved. The collaborator is the
// source of truth: a charge it knows about is adopted, one it has never
// seen frees the anchor for a fresh attempt.
func (r *Runner) reconcile(ctx context.Context, summary *Summary) error {
	var runs []models.BillingRun
	err := r.db.Where("status = ?", models.RunNeedsReconcile).
		Find(&runs).Error
	if err != nil {
		return fmt.Errorf("billing: list reconcile runs: %w", err)
	}

	for _, run := range runs {
		key := IdempotencyKey(run.DriverID, run.WeekEnding)
		result, err := r.payments.RetrieveCharge(ctx, key)
		switch {
		case errors.Is(err, ErrChargeNotFound):
			// Never reached the collaborator; safe to charge again.
			if err := r.db.Model(&run).Update("status", models.RunPending).Error; err != nil {
				return fmt.Errorf("billing: reset run %d: %w", run.ID, err)
			}
			fmt.Fprintf(r.out, "billing: run %d had no charge on record, will retry\n", run.ID)
		case err != nil:
			// Still unknown; leave the anchor alone.
			fmt.Fprintf(r.out, "billing: run %d reconcile inconclusive: %v\n", run.ID, err)
			summary.NeedsReconcile++
		case result.Paid:
			if err := r.finalizePaid(&run, result.Ref); err != nil {
				return err
			}
			summary.Reconciled++
			fmt.Fprintf(r.out, "billing: run %d reconciled as paid (%s)\n", run.ID, result.Ref)
		default:
			if err := r.finalizeFailed(ctx, &run, "charge found unpaid during reconcile"); err != nil {
				return err
			}
			summary.Failed++
		}
	}
	return nil
}

// driversOwing lists chargeable drivers with pending invoices, excluding
// exempt drivers and those already settled for the week.
func (r *Runner) driversOwing(weekEnding time.Time) ([]uint, error) {
	var ids []uint
	err := r.db.Model(&models.Invoice{}).
		Distinct("invoices.driver_id").
		Joins("JOIN drivers ON drivers.id = invoices.driver_id").
		Where("invoices.status = ?", models.InvoicePending).
		Where("drivers.billing_state <> ?", models.BillingExempt).
		Where("invoices.driver_id NOT IN (?)",
			r.db.Model(&models.BillingRun{}).
				Select("driver_id").
				Where("week_ending = ? AND status = ?", weekEnding, models.RunSuccess)).
		Pluck("invoices.driver_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("billing: list drivers owing: %w", err)
	}
	return ids, nil
}

type chargeOutcome struct {
	Charged        int
	Skipped        int
	Failed         int
	NeedsReconcile int
	TotalCents     int64
}

func (r *Runner) chargeDriver(ctx context.Context, driverID uint, weekEnding time.Time, dryRun bool) chargeOutcome {
	var driver models.Driver
	if err := r.db.First(&driver, driverID).Error; err != nil {
		fmt.Fprintf(r.out, "billing: driver %d: %v\n", driverID, err)
		return chargeOutcome{Failed: 1}
	}

	var invoices []models.Invoice
	err := r.db.Where("driver_id = ? AND status = ?", driverID, models.InvoicePending).
		Order("id").
		Find(&invoices).Error
	if err != nil {
		fmt.Fprintf(r.out, "billing: driver %d invoices: %v\n", driverID, err)
		return chargeOutcome{Failed: 1}
	}
	var total int64
	for _, inv := range invoices {
		total += inv.FeeCents
	}
	if total <= 0 {
		return chargeOutcome{Skipped: 1}
	}

	if dryRun {
		fmt.Fprintf(r.out, "billing: dry run: would charge driver %d %s for %d invoices\n",
			driverID, zone.FormatCents(total), len(invoices))
		return chargeOutcome{Skipped: 1, TotalCents: total}
	}

	run, skip, err := r.anchorRun(driverID, weekEnding, total, invoices)
	if err != nil {
		fmt.Fprintf(r.out, "billing: driver %d anchor: %v\n", driverID, err)
		return chargeOutcome{Failed: 1}
	}
	if skip {
		return chargeOutcome{Skipped: 1}
	}

	cctx, cancel := context.WithTimeout(ctx, r.chargeTimeout)
	defer cancel()
	result, chargeErr := r.payments.CreateCharge(cctx, ChargeRequest{
		DriverRef:      driver.PaymentRef,
		AmountCents:    total,
		IdempotencyKey: IdempotencyKey(driverID, weekEnding),
		Description:    fmt.Sprintf("Dispatch fees, week ending %s", weekEnding.Format("2006-01-02")),
	})

	switch {
	case chargeErr == nil && result.Paid:
		if err := r.finalizePaid(run, result.Ref); err != nil {
			fmt.Fprintf(r.out, "billing: driver %d finalize: %v\n", driverID, err)
			return chargeOutcome{Failed: 1}
		}
		if driver.BillingState == models.BillingDelinquent {
			if err := r.db.Model(&driver).Update("billing_state", models.BillingActive).Error; err != nil {
				fmt.Fprintf(r.out, "billing: driver %d restore state: %v\n", driverID, err)
			}
		}
		fmt.Fprintf(r.out, "billing: charged driver %d %s (%s)\n", driverID, zone.FormatCents(total), result.Ref)
		return chargeOutcome{Charged: 1, TotalCents: total}

	case ambiguous(cctx, chargeErr):
		// The charge may or may not exist; only reconcile can tell.
		if err := r.db.Model(run).Updates(map[string]interface{}{
			"status":     models.RunNeedsReconcile,
			"last_error": errString(chargeErr),
		}).Error; err != nil {
			fmt.Fprintf(r.out, "billing: driver %d mark reconcile: %v\n", driverID, err)
		}
		r.notify(ctx, alert.Event{
			Severity: alert.SeverityError,
			Title:    "billing charge outcome unknown",
			Body:     fmt.Sprintf("driver %d week %s: %v", driverID, weekEnding.Format("2006-01-02"), chargeErr),
		})
		return chargeOutcome{NeedsReconcile: 1}

	default:
		reason := "charge declined"
		if chargeErr != nil {
			reason = chargeErr.Error()
		}
		if err := r.finalizeFailed(ctx, run, reason); err != nil {
			fmt.Fprintf(r.out, "billing: driver %d finalize failure: %v\n", driverID, err)
		}
		return chargeOutcome{Failed: 1}
	}
}

// anchorRun creates or adopts the (driver, week) anchor and attaches the
// invoices it will bill. Returns skip=true when the anchor is already
// settled or awaiting reconcile.
func (r *Runner) anchorRun(driverID uint, weekEnding time.Time, total int64, invoices []models.Invoice) (*models.BillingRun, bool, error) {
	candidate := models.BillingRun{
		DriverID:   driverID,
		WeekEnding: weekEnding,
		Status:     models.RunPending,
		TotalCents: total,
	}
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "driver_id"}, {Name: "week_ending"}},
		DoNothing: true,
	}).Create(&candidate).Error
	if err != nil {
		return nil, false, fmt.Errorf("create run: %w", err)
	}

	var run models.BillingRun
	err = r.db.Where("driver_id = ? AND week_ending = ?", driverID, weekEnding).First(&run).Error
	if err != nil {
		return nil, false, fmt.Errorf("load run: %w", err)
	}
	if run.Status == models.RunSuccess || run.Status == models.RunNeedsReconcile {
		return &run, true, nil
	}

	// A still-pending invoice may sit attached to an abandoned anchor from
	// an earlier week; re-anchoring it here lets this run's finalize cover
	// it. Paid invoices are never in the list, so nothing settled moves.
	for _, inv := range invoices {
		item := models.BillingRunItem{BillingRunID: run.ID, InvoiceID: inv.ID}
		err := r.db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "invoice_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"billing_run_id"}),
		}).Create(&item).Error
		if err != nil {
			return nil, false, fmt.Errorf("attach invoice %d: %w", inv.ID, err)
		}
	}
	if run.TotalCents != total {
		if err := r.db.Model(&run).Update("total_cents", total).Error; err != nil {
			return nil, false, fmt.Errorf("update run total: %w", err)
		}
	}
	return &run, false, nil
}

func (r *Runner) finalizePaid(run *models.BillingRun, chargeRef string) error {
	now := time.Now()
	return r.db.Transaction(func(tx *gorm.DB) error {
		err := tx.Model(run).Updates(map[string]interface{}{
			"status":     models.RunSuccess,
			"charge_ref": chargeRef,
			"last_error": "",
		}).Error
		if err != nil {
			return fmt.Errorf("billing: mark run paid: %w", err)
		}
		err = tx.Model(&models.Invoice{}).
			Where("id IN (?)", tx.Model(&models.BillingRunItem{}).
				Select("invoice_id").
				Where("billing_run_id = ?", run.ID)).
			Updates(map[string]interface{}{
				"status":      models.InvoicePaid,
				"billed_week": run.WeekEnding,
				"charge_ref":  chargeRef,
				"paid_at":     now,
			}).Error
		if err != nil {
			return fmt.Errorf("billing: mark invoices paid: %w", err)
		}
		return nil
	})
}

// finalizeFailed marks the run, its invoices, and the driver failed in one
// transaction. Failed invoices stay failed: they are never silently swept
// into a later week's charge.
func (r *Runner) finalizeFailed(ctx context.Context, run *models.BillingRun, reason string) error {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		err := tx.Model(run).Updates(map[string]interface{}{
			"status":     models.RunFailed,
			"last_error": reason,
		}).Error
		if err != nil {
			return fmt.Errorf("billing: mark run failed: %w", err)
		}
		err = tx.Model(&models.Invoice{}).
			Where("id IN (?)", tx.Model(&models.BillingRunItem{}).
				Select("invoice_id").
				Where("billing_run_id = ?", run.ID)).
			Update("status", models.InvoiceFailed).Error
		if err != nil {
			return fmt.Errorf("billing: mark invoices failed: %w", err)
		}
		err = tx.Model(&models.Driver{}).
			Where("id = ?", run.DriverID).
			Update("billing_state", models.BillingDelinquent).Error
		if err != nil {
			return fmt.Errorf("billing: mark driver delinquent: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.notify(ctx, alert.Event{
		Severity: alert.SeverityError,
		Title:    "weekly charge failed",
		Body:     fmt.Sprintf("driver %d week %s: %s", run.DriverID, run.WeekEnding.Format("2006-01-02"), reason),
	})
	return nil
}

// ambiguous reports whether a charge error leaves the outcome unknown.
// Timeouts and cancellations may have raced a successful charge.
func ambiguous(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) ||
		ctx.Err() != nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func (r *Runner) notify(ctx context.Context, ev alert.Event) {
	if r.notifier == nil {
		return
	}
	_ = r.notifier.Notify(ctx, ev)
}
