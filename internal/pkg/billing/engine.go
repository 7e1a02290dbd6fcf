package billing

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

// Engine generates invoices for due memberships and attempts to collect them
// through the payment orchestrator.
type Engine struct {
	repo         Repository
	orchestrator *payments.Orchestrator
	notifier     notify.Notifier
}

// NewEngine wires the billing engine.
func NewEngine(repo Repository, orchestrator *payments.Orchestrator, notifier notify.Notifier) *Engine {
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	return &Engine{repo: repo, orchestrator: orchestrator, notifier: notifier}
}

// Result summarizes one billing run.
type Result struct {
	Created      int
	Skipped      int
	Charged      int
	ChargeFailed int
}

// GenerateDueInvoices runs one billing pass as of now. Each membership is
// processed independently: an invoice-number collision counts as skipped, a
// charge failure leaves the invoice PENDING for the dunning ladder, and an
// unexpected per-membership failure is logged without aborting the batch.
func (e *Engine) GenerateDueInvoices(ctx context.Context, now time.Time) (Result, error) {
	memberships, err := e.repo.DueMemberships(now)
	if err != nil {
		return Result{}, fmt.Errorf("selecting due memberships: %w", err)
	}

	var result Result
	for i := range memberships {
		membership := &memberships[i]
		if err := e.processMembership(ctx, membership, now, &result); err != nil {
			log.Errorf("[Billing] membership %d failed: %v", membership.ID, err)
		}
	}
	return result, nil
}

func (e *Engine) processMembership(ctx context.Context, membership *models.Membership, now time.Time, result *Result) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	plan := membership.MembershipPlan
	if membership.NextPaymentDate == nil {
		return errors.New("due membership without next payment date")
	}
	periodStart := *membership.NextPaymentDate
	periodEnd := models.NextCycleDate(plan.BillingCycle, periodStart)

	amount := membership.PriceCents(&plan)
	notes := ""
	if plan.FamilyDiscountPercent > 0 {
		size, err := e.repo.FamilySize(membership.MemberID)
		if err != nil {
			return fmt.Errorf("family size lookup: %w", err)
		}
		if size > 1 {
			discounted, saved := ApplyFamilyDiscount(amount, plan.FamilyDiscountPercent, size)
			if saved > 0 {
				notes = fmt.Sprintf("Family discount (%d members): -%d.%02d %s",
					size, saved/100, saved%100, plan.Currency)
				amount = discounted
			}
		}
	}

	invoice := &models.Invoice{
		InvoiceNumber:      models.MembershipInvoiceNumber(membership.ID, periodStart),
		MembershipID:       membership.ID,
		MemberID:           membership.MemberID,
		AmountCents:        amount,
		Currency:           plan.Currency,
		Status:             models.InvoiceStatusPending,
		Notes:              notes,
		DueDate:            periodStart,
		BillingPeriodStart: periodStart,
		BillingPeriodEnd:   periodEnd,
	}

	created, err := e.repo.CreateInvoiceIfNew(invoice)
	if err != nil {
		return fmt.Errorf("creating invoice %s: %w", invoice.InvoiceNumber, err)
	}
	if !created {
		// Already invoiced by an earlier run; still make sure the schedule
		// moved forward.
		result.Skipped++
		return e.repo.AdvanceMembershipSchedule(membership.ID, periodEnd, nil)
	}
	result.Created++

	// The next cycle is scheduled regardless of how the charge below goes;
	// an unpaid cycle surfaces through the past-due sweep, not by stalling
	// the schedule.
	var lastPaid *time.Time
	if e.chargeInvoice(ctx, membership, invoice, result) {
		lastPaid = &now
	}
	return e.repo.AdvanceMembershipSchedule(membership.ID, periodEnd, lastPaid)
}

// chargeInvoice attempts the synchronous auto-charge. Returns true when the
// invoice was collected.
func (e *Engine) chargeInvoice(ctx context.Context, membership *models.Membership, invoice *models.Invoice, result *Result) bool {
	if e.orchestrator == nil || !e.orchestrator.HasGateway() {
		return false
	}

	res, err := e.orchestrator.ChargeStoredPaymentMethod(ctx,
		membership.MemberID,
		invoice.AmountCents,
		invoice.Currency,
		"Membership dues "+invoice.InvoiceNumber,
		invoice.InvoiceNumber,
	)
	if err != nil {
		switch {
		case errors.Is(err, payments.ErrNoStoredMethod), errors.Is(err, payments.ErrNoGatewayConfigured):
			// Nothing to charge against; the invoice stays PENDING.
		default:
			result.ChargeFailed++
			log.Warnf("[Billing] auto-charge failed for invoice %s: %v", invoice.InvoiceNumber, err)
		}
		return false
	}

	now := time.Now()
	if err := e.repo.MarkInvoicePaid(invoice.ID, res.ExternalPaymentID, e.orchestrator.Provider(), now); err != nil {
		log.Errorf("[Billing] invoice %s charged but could not be marked paid: %v", invoice.InvoiceNumber, err)
		return false
	}
	result.Charged++

	member := membership.Member
	e.notifier.Send(notify.KindPaymentReceipt, map[string]string{
		"email":          member.Email,
		"member_name":    member.FullName(),
		"amount":         fmt.Sprintf("%d.%02d %s", invoice.AmountCents/100, invoice.AmountCents%100, invoice.Currency),
		"invoice_number": invoice.InvoiceNumber,
	})
	return true
}
