package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/OpenMatHQ/DojoDesk/app/models"
	"github.com/OpenMatHQ/DojoDesk/internal/pkg/notify"
	"github.com/OpenMatHQ/DojoDesk/internal/pkg/voucher"
)

// Orchestrator presents one gateway-agnostic payment interface to the rest
// of the system. The active adapter is injected at construction; a nil
// adapter means no gateway is configured and every charge path degrades to
// "invoice stays PENDING, nothing attempted".
type Orchestrator struct {
	repo     Repository
	adapter  GatewayAdapter
	notifier notify.Notifier
}

// NewOrchestrator wires the orchestrator. adapter may be nil.
func NewOrchestrator(repo Repository, adapter GatewayAdapter, notifier notify.Notifier) *Orchestrator {
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	return &Orchestrator{repo: repo, adapter: adapter, notifier: notifier}
}

// HasGateway reports whether a payment gateway is active.
func (o *Orchestrator) HasGateway() bool {
	return o.adapter != nil
}

// Provider returns the active gateway name, or "".
func (o *Orchestrator) Provider() string {
	if o.adapter == nil {
		return ""
	}
	return o.adapter.Provider()
}

// CheckoutRequest carries the presentation fields of a checkout session; the
// origin supplies the business meaning.
type CheckoutRequest struct {
	AmountCents int64
	Currency    string
	Description string
	SuccessURL  string
	CancelURL   string
	LineItems   []CheckoutLineItem
	MemberID    uint
}

// CreateCheckout opens a hosted checkout session for the given origin. The
// origin is encoded into gateway metadata and must come back unchanged on the
// completion event.
func (o *Orchestrator) CreateCheckout(ctx context.Context, origin *CheckoutOrigin, req CheckoutRequest) (*CheckoutSession, error) {
	if o.adapter == nil {
		return nil, ErrNoGatewayConfigured
	}

	metadata, err := origin.EncodeMetadata()
	if err != nil {
		return nil, err
	}

	params := CheckoutParams{
		AmountCents: req.AmountCents,
		Currency:    req.Currency,
		Description: req.Description,
		SuccessURL:  req.SuccessURL,
		CancelURL:   req.CancelURL,
		LineItems:   req.LineItems,
		Metadata:    metadata,
	}
	if req.MemberID != 0 {
		member, err := o.repo.MemberByID(req.MemberID)
		if err != nil {
			return nil, err
		}
		params.CustomerRef = member.GatewayCustomerID(o.adapter.Provider())
		params.CustomerEmail = member.Email
	}

	session, err := o.adapter.CreateCheckoutSession(ctx, params)
	if err != nil {
		return nil, err
	}

	// Persist a lazily created gateway customer so future off-session
	// charges can find it.
	if session.CustomerRef != "" && req.MemberID != 0 {
		if err := o.repo.SaveGatewayCustomerRef(req.MemberID, o.adapter.Provider(), session.CustomerRef); err != nil {
			log.Errorf("[Payments] failed to persist %s customer ref for member %d: %v", o.adapter.Provider(), req.MemberID, err)
		}
	}
	return session, nil
}

// ResolveCheckout polls the session state and, when complete, reconciles it
// into domain state. For the approval-based gateway the poll itself performs
// the capture.
func (o *Orchestrator) ResolveCheckout(ctx context.Context, sessionID, orderID string) (*CheckoutStatus, error) {
	if o.adapter == nil {
		return nil, ErrNoGatewayConfigured
	}

	status, err := o.adapter.GetCheckoutStatus(ctx, sessionID, orderID)
	if err != nil {
		return nil, err
	}
	if status.State == CheckoutComplete && status.ExternalPaymentID != "" {
		if err := o.HandleCheckoutCompleted(ctx, status.ExternalPaymentID, status.Metadata); err != nil {
			return nil, err
		}
	}
	return status, nil
}

// ChargeStoredPaymentMethod charges a member's stored method off-session.
// ErrNoStoredMethod is a fast, typed failure: the caller must not confuse it
// with a retryable gateway error.
func (o *Orchestrator) ChargeStoredPaymentMethod(ctx context.Context, memberID uint, amountCents int64, currency, description, invoiceRef string) (*ChargeResult, error) {
	if o.adapter == nil {
		return nil, ErrNoGatewayConfigured
	}

	member, err := o.repo.MemberByID(memberID)
	if err != nil {
		return nil, err
	}

	customerRef := member.GatewayCustomerID(o.adapter.Provider())
	methodRef := member.DefaultPaymentMethodID
	if customerRef == "" || methodRef == "" {
		return nil, ErrNoStoredMethod
	}

	idempotencyRef := invoiceRef
	if idempotencyRef == "" {
		idempotencyRef = uuid.NewString()
	}

	return o.adapter.ChargeStoredMethod(ctx, ChargeParams{
		CustomerRef:    customerRef,
		MethodRef:      methodRef,
		AmountCents:    amountCents,
		Currency:       currency,
		Description:    description,
		IdempotencyRef: idempotencyRef,
	})
}

// HandleCheckoutCompleted reconciles an asynchronous completion event into
// domain state. It is idempotent: the transaction row keyed by the external
// payment id is the replay guard, so delivering the same event twice mutates
// state exactly once. Membership status is never touched here; suspension
// and reactivation belong to the dunning engine.
func (o *Orchestrator) HandleCheckoutCompleted(ctx context.Context, externalPaymentID string, metadata map[string]string) error {
	externalPaymentID = strings.TrimSpace(externalPaymentID)
	if externalPaymentID == "" {
		return errors.New("completion event missing external payment id")
	}

	if _, err := o.repo.TransactionByExternalPaymentID(externalPaymentID); err == nil {
		log.Infof("[Payments] replayed completion event for payment %s, skipping", externalPaymentID)
		return nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	origin, err := DecodeOrigin(metadata)
	if err != nil {
		return fmt.Errorf("cannot reconcile payment %s: %w", externalPaymentID, err)
	}

	switch origin.Kind {
	case OriginPortalInvoice:
		return o.completeInvoicePayment(ctx, origin, externalPaymentID)
	case OriginPOSSplit:
		return o.completeSplitPayment(origin, externalPaymentID)
	case OriginAdminPOSCart, OriginPortalStoreCart:
		return o.materializeCart(origin, externalPaymentID)
	default:
		return fmt.Errorf("unhandled checkout origin %q", origin.Kind)
	}
}

// completeInvoicePayment marks a portal-paid invoice PAID and records the
// payment as a transaction so replays are detected.
func (o *Orchestrator) completeInvoicePayment(_ context.Context, origin *CheckoutOrigin, externalPaymentID string) error {
	invoice, err := o.repo.InvoiceByID(origin.InvoiceID)
	if err != nil {
		return err
	}

	now := time.Now()
	tx := &models.Transaction{
		MemberID:          &invoice.MemberID,
		TotalCents:        invoice.AmountCents,
		Currency:          invoice.Currency,
		Status:            models.TransactionStatusPaid,
		Source:            models.TransactionSourcePortalInvoice,
		ExternalPaymentID: externalPaymentID,
		PaymentProcessor:  o.Provider(),
		InvoiceID:         &invoice.ID,
		PaidAt:            &now,
	}
	created, err := o.repo.CreateTransactionIfNew(tx)
	if err != nil {
		return err
	}
	if !created {
		return nil
	}

	if err := o.repo.MarkInvoicePaid(invoice.ID, externalPaymentID, o.Provider(), now); err != nil {
		return err
	}

	if member, err := o.repo.MemberByID(invoice.MemberID); err == nil {
		o.notifier.Send(notify.KindPaymentReceipt, map[string]string{
			"email":          member.Email,
			"member_name":    member.FullName(),
			"amount":         formatAmount(invoice.AmountCents, invoice.Currency),
			"invoice_number": invoice.InvoiceNumber,
		})
	}
	return nil
}

// completeSplitPayment settles the card portion of a split-tender POS sale.
func (o *Orchestrator) completeSplitPayment(origin *CheckoutOrigin, externalPaymentID string) error {
	tx, err := o.repo.TransactionByID(origin.TransactionID)
	if err != nil {
		return err
	}
	if tx.Status == models.TransactionStatusPaid {
		return nil
	}
	return o.repo.MarkTransactionPaid(tx.ID, externalPaymentID, o.Provider(), time.Now())
}

// materializeCart turns a paid cart into a full transaction: line items,
// inventory decrements, membership creation, gift-certificate issuance and
// account-credit top-ups.
func (o *Orchestrator) materializeCart(origin *CheckoutOrigin, externalPaymentID string) error {
	now := time.Now()

	tx := &models.Transaction{
		TotalCents:        0,
		Currency:          "USD",
		Status:            models.TransactionStatusPaid,
		Source:            origin.TransactionSource(),
		ExternalPaymentID: externalPaymentID,
		PaymentProcessor:  o.Provider(),
		PaidAt:            &now,
	}
	if origin.MemberID != 0 {
		tx.MemberID = &origin.MemberID
	}
	for _, line := range origin.Cart {
		tx.TotalCents += line.TotalCents()
		tx.Items = append(tx.Items, models.TransactionItem{
			ItemType:       line.ItemType,
			ItemID:         line.ItemID,
			Description:    line.Description,
			Quantity:       line.Quantity,
			UnitPriceCents: line.UnitPriceCents,
		})
	}

	created, err := o.repo.CreateTransactionIfNew(tx)
	if err != nil {
		return err
	}
	if !created {
		// Same completion event already materialized this cart.
		return nil
	}

	// Side effects run after the replay guard has claimed the payment id, so
	// a duplicate delivery can never apply them twice.
	for _, line := range origin.Cart {
		if err := o.applyCartLine(origin, line, now); err != nil {
			log.Errorf("[Payments] cart side effect failed for payment %s (%s %d): %v",
				externalPaymentID, line.ItemType, line.ItemID, err)
		}
	}
	return nil
}

func (o *Orchestrator) applyCartLine(origin *CheckoutOrigin, line CartLine, now time.Time) error {
	switch line.ItemType {
	case models.ItemTypeStoreItem:
		return o.repo.DecrementStock(line.ItemID, line.Quantity)

	case models.ItemTypeMembershipPlan:
		if origin.MemberID == 0 {
			return errors.New("membership purchase requires a member")
		}
		plan, err := o.repo.PlanByID(line.ItemID)
		if err != nil {
			return err
		}
		membership := &models.Membership{
			MemberID:         origin.MemberID,
			MembershipPlanID: plan.ID,
			Status:           models.MembershipStatusActive,
			StartDate:        now,
			LastPaymentDate:  &now,
		}
		if plan.AutoRenew {
			next := models.NextCycleDate(plan.BillingCycle, now)
			membership.NextPaymentDate = &next
		}
		return o.repo.CreateMembership(membership)

	case models.ItemTypeGiftCertificate:
		code, err := voucher.NewCode()
		if err != nil {
			return err
		}
		gc := &models.GiftCertificate{
			Code:                code,
			InitialValueCents:   line.TotalCents(),
			RemainingValueCents: line.TotalCents(),
			Status:              models.GiftCertificateStatusActive,
		}
		if origin.MemberID != 0 {
			gc.PurchasedByMemberID = &origin.MemberID
		}
		return o.repo.CreateGiftCertificate(gc)

	case models.ItemTypeAccountCredit:
		if origin.MemberID == 0 {
			return errors.New("account credit purchase requires a member")
		}
		return o.repo.AdjustMemberCredit(origin.MemberID, line.TotalCents())

	default:
		return fmt.Errorf("unknown cart item type %q", line.ItemType)
	}
}

// RefundInvoice refunds a paid invoice through the gateway it was paid on
// and marks it REFUNDED. Membership status is untouched.
func (o *Orchestrator) RefundInvoice(ctx context.Context, invoiceID uint) error {
	if o.adapter == nil {
		return ErrNoGatewayConfigured
	}

	invoice, err := o.repo.InvoiceByID(invoiceID)
	if err != nil {
		return err
	}
	if invoice.Status != models.InvoiceStatusPaid || invoice.ExternalPaymentID == "" {
		return fmt.Errorf("invoice %s is not refundable", invoice.InvoiceNumber)
	}

	err = o.adapter.Refund(ctx, RefundParams{
		ExternalPaymentID: invoice.ExternalPaymentID,
		AmountCents:       invoice.AmountCents,
		Currency:          invoice.Currency,
	})
	if err != nil {
		return err
	}
	if err := o.repo.MarkInvoiceRefunded(invoice.ID); err != nil {
		return err
	}

	if member, err := o.repo.MemberByID(invoice.MemberID); err == nil {
		o.notifier.Send(notify.KindRefundIssued, map[string]string{
			"email":       member.Email,
			"member_name": member.FullName(),
			"amount":      formatAmount(invoice.AmountCents, invoice.Currency),
		})
	}
	return nil
}

// RefundTransaction refunds a paid POS/store transaction in full.
func (o *Orchestrator) RefundTransaction(ctx context.Context, transactionID uint) error {
	if o.adapter == nil {
		return ErrNoGatewayConfigured
	}

	tx, err := o.repo.TransactionByID(transactionID)
	if err != nil {
		return err
	}
	if tx.Status != models.TransactionStatusPaid || tx.ExternalPaymentID == "" {
		return fmt.Errorf("transaction %d is not refundable", tx.ID)
	}

	err = o.adapter.Refund(ctx, RefundParams{
		ExternalPaymentID: tx.ExternalPaymentID,
		AmountCents:       tx.TotalCents,
		Currency:          tx.Currency,
	})
	if err != nil {
		return err
	}
	return o.repo.MarkTransactionRefunded(tx.ID, time.Now())
}

func formatAmount(cents int64, currency string) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, cents/100, cents%100, strings.ToUpper(currency))
}
