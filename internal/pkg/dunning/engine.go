package dunning

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/OpenMatHQ/DojoDesk/app/models"
	"github.com/OpenMatHQ/DojoDesk/internal/pkg/notify"
	"github.com/OpenMatHQ/DojoDesk/internal/pkg/payments"
)

// DefaultMaxRetries is the attempt ceiling used when no explicit setting is
// configured.
const DefaultMaxRetries = 4

// Config carries the studio-level dunning knobs resolved from settings.
type Config struct {
	MaxRetries      int
	GracePeriodDays int
}

// Engine walks unpaid invoices through the retry ladder: past-due detection,
// scheduled re-charges with escalating notifications, and suspension once the
// attempt ceiling is reached.
type Engine struct {
	repo         Repository
	orchestrator *payments.Orchestrator
	notifier     notify.Notifier
	cfg          Config
}

// NewEngine wires the dunning engine.
func NewEngine(repo Repository, orchestrator *payments.Orchestrator, notifier notify.Notifier, cfg Config) *Engine {
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.GracePeriodDays < 0 {
		cfg.GracePeriodDays = 0
	}
	return &Engine{repo: repo, orchestrator: orchestrator, notifier: notifier, cfg: cfg}
}

// MarkPastDue moves pending invoices whose due date (plus grace period) has
// passed into PAST_DUE and seeds their first retry date. Returns how many
// invoices were flagged.
func (e *Engine) MarkPastDue(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.AddDate(0, 0, -e.cfg.GracePeriodDays)
	invoices, err := e.repo.OverduePendingInvoices(cutoff)
	if err != nil {
		return 0, fmt.Errorf("selecting overdue invoices: %w", err)
	}

	marked := 0
	for i := range invoices {
		invoice := &invoices[i]
		if err := e.repo.MarkInvoicePastDue(invoice.ID, NextRetryDate(0, now)); err != nil {
			log.Errorf("[Dunning] invoice %s could not be marked past due: %v", invoice.InvoiceNumber, err)
			continue
		}
		marked++
	}
	return marked, nil
}

// RetryResult summarizes one retry sweep.
type RetryResult struct {
	Processed int
	Recovered int
	Suspended int
}

// ProcessRetries re-attempts collection for every invoice whose retry date has
// arrived. A successful charge short-circuits the ladder; a failure at the
// attempt ceiling terminates it, pausing the membership and debiting the
// member's account balance by the uncollected amount.
func (e *Engine) ProcessRetries(ctx context.Context, now time.Time) (RetryResult, error) {
	var result RetryResult
	if e.orchestrator == nil || !e.orchestrator.HasGateway() {
		// Without a gateway there is nothing to retry; invoices keep their
		// schedule and are picked up once a gateway is configured.
		return result, nil
	}

	invoices, err := e.repo.RetryableInvoices(now)
	if err != nil {
		return result, fmt.Errorf("selecting retryable invoices: %w", err)
	}

	for i := range invoices {
		invoice := &invoices[i]
		if err := e.processInvoice(ctx, invoice, now, &result); err != nil {
			log.Errorf("[Dunning] invoice %s retry failed: %v", invoice.InvoiceNumber, err)
		}
	}
	return result, nil
}

func (e *Engine) processInvoice(ctx context.Context, invoice *models.Invoice, now time.Time, result *RetryResult) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	result.Processed++
	attempt := invoice.RetryCount + 1

	res, chargeErr := e.orchestrator.ChargeStoredPaymentMethod(ctx,
		invoice.MemberID,
		invoice.AmountCents,
		invoice.Currency,
		"Membership dues "+invoice.InvoiceNumber,
		fmt.Sprintf("%s-retry-%d", invoice.InvoiceNumber, attempt),
	)
	if chargeErr == nil {
		if err := e.repo.MarkInvoicePaid(invoice.ID, res.ExternalPaymentID, e.orchestrator.Provider(), now); err != nil {
			return fmt.Errorf("marking invoice paid: %w", err)
		}
		result.Recovered++
		e.notifyMember(invoice, notify.KindPaymentReceipt, nil)
		return nil
	}
	if !errors.Is(chargeErr, payments.ErrNoStoredMethod) && !payments.IsDecline(chargeErr) {
		log.Warnf("[Dunning] invoice %s attempt %d errored: %v", invoice.InvoiceNumber, attempt, chargeErr)
	}

	if attempt >= e.cfg.MaxRetries {
		return e.terminate(invoice, attempt, now, result)
	}

	next := NextRetryDate(attempt, now)
	if err := e.repo.RecordRetryFailure(invoice.ID, attempt, now, &next, false); err != nil {
		return fmt.Errorf("recording retry failure: %w", err)
	}
	level := LevelForAttempt(attempt)
	e.notifyMember(invoice, level.NotificationKind(), map[string]string{
		"attempt":     fmt.Sprintf("%d", attempt),
		"retry_date":  next.Format("2006-01-02"),
		"urgency":     string(level),
		"max_retries": fmt.Sprintf("%d", e.cfg.MaxRetries),
	})
	return nil
}

// terminate ends the ladder for an invoice that exhausted its retries. The
// membership is paused, its schedule cleared, and the unpaid amount is booked
// against the member's running balance.
func (e *Engine) terminate(invoice *models.Invoice, attempt int, now time.Time, result *RetryResult) error {
	if err := e.repo.RecordRetryFailure(invoice.ID, attempt, now, nil, true); err != nil {
		return fmt.Errorf("recording terminal failure: %w", err)
	}

	suspended, err := e.repo.SuspendMembership(invoice.MembershipID)
	if err != nil {
		return fmt.Errorf("suspending membership %d: %w", invoice.MembershipID, err)
	}
	if suspended {
		result.Suspended++
	}

	if err := e.repo.AdjustMemberCredit(invoice.MemberID, -invoice.AmountCents); err != nil {
		log.Errorf("[Dunning] balance debit for invoice %s failed: %v", invoice.InvoiceNumber, err)
	}

	e.notifyMember(invoice, notify.KindMembershipSuspended, map[string]string{
		"attempts": fmt.Sprintf("%d", attempt),
	})
	return nil
}

func (e *Engine) notifyMember(invoice *models.Invoice, kind notify.NotificationKind, extra map[string]string) {
	member, err := e.repo.MemberByID(invoice.MemberID)
	if err != nil {
		log.Warnf("[Dunning] member %d lookup for notification failed: %v", invoice.MemberID, err)
		return
	}
	vars := map[string]string{
		"email":          member.Email,
		"member_name":    member.FullName(),
		"invoice_number": invoice.InvoiceNumber,
		"amount":         fmt.Sprintf("%d.%02d %s", invoice.AmountCents/100, invoice.AmountCents%100, invoice.Currency),
	}
	for k, v := range extra {
		vars[k] = v
	}
	e.notifier.Send(kind, vars)
}
