package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/OpenMatHQ/DojoDesk/app/models"
	"github.com/OpenMatHQ/DojoDesk/internal/pkg/notify"
	"github.com/OpenMatHQ/DojoDesk/internal/pkg/payments"
)

type fakeBillingRepo struct {
	due           []models.Membership
	familySizes   map[uint]int
	invoices      map[string]*models.Invoice
	paidInvoices  []uint
	schedules     map[uint]time.Time
	lastPaidSet   map[uint]bool
	createErr     error
	nextInvoiceID uint
}

func newFakeBillingRepo() *fakeBillingRepo {
	return &fakeBillingRepo{
		familySizes: map[uint]int{},
		invoices:    map[string]*models.Invoice{},
		schedules:   map[uint]time.Time{},
		lastPaidSet: map[uint]bool{},
	}
}

func (r *fakeBillingRepo) DueMemberships(time.Time) ([]models.Membership, error) {
	return r.due, nil
}

func (r *fakeBillingRepo) FamilySize(memberID uint) (int, error) {
	if size, ok := r.familySizes[memberID]; ok {
		return size, nil
	}
	return 1, nil
}

func (r *fakeBillingRepo) CreateInvoiceIfNew(invoice *models.Invoice) (bool, error) {
	if r.createErr != nil {
		return false, r.createErr
	}
	if _, ok := r.invoices[invoice.InvoiceNumber]; ok {
		return false, nil
	}
	r.nextInvoiceID++
	invoice.ID = r.nextInvoiceID
	r.invoices[invoice.InvoiceNumber] = invoice
	return true, nil
}

func (r *fakeBillingRepo) MarkInvoicePaid(id uint, externalPaymentID, processor string, paidAt time.Time) error {
	r.paidInvoices = append(r.paidInvoices, id)
	for _, inv := range r.invoices {
		if inv.ID == id {
			inv.Status = models.InvoiceStatusPaid
			inv.ExternalPaymentID = externalPaymentID
			inv.PaymentProcessor = processor
			inv.PaidAt = &paidAt
		}
	}
	return nil
}

func (r *fakeBillingRepo) AdvanceMembershipSchedule(membershipID uint, nextPaymentDate time.Time, lastPaymentDate *time.Time) error {
	r.schedules[membershipID] = nextPaymentDate
	r.lastPaidSet[membershipID] = lastPaymentDate != nil
	return nil
}

// fakePaymentsRepo backs the orchestrator in charge-path tests. Only the
// member lookup matters; the rest is unreachable from ChargeStoredPaymentMethod.
type fakePaymentsRepo struct {
	member *models.Member
}

func (r *fakePaymentsRepo) MemberByID(uint) (*models.Member, error) {
	if r.member == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return r.member, nil
}
func (r *fakePaymentsRepo) SaveGatewayCustomerRef(uint, string, string) error { return nil }
func (r *fakePaymentsRepo) InvoiceByID(uint) (*models.Invoice, error) {
	return nil, gorm.ErrRecordNotFound
}
func (r *fakePaymentsRepo) MarkInvoicePaid(uint, string, string, time.Time) error { return nil }
func (r *fakePaymentsRepo) MarkInvoiceRefunded(uint) error                        { return nil }
func (r *fakePaymentsRepo) TransactionByID(uint) (*models.Transaction, error) {
	return nil, gorm.ErrRecordNotFound
}
func (r *fakePaymentsRepo) TransactionByExternalPaymentID(string) (*models.Transaction, error) {
	return nil, gorm.ErrRecordNotFound
}
func (r *fakePaymentsRepo) CreateTransactionIfNew(*models.Transaction) (bool, error) {
	return true, nil
}
func (r *fakePaymentsRepo) MarkTransactionPaid(uint, string, string, time.Time) error { return nil }
func (r *fakePaymentsRepo) MarkTransactionRefunded(uint, time.Time) error             { return nil }
func (r *fakePaymentsRepo) PlanByID(uint) (*models.MembershipPlan, error) {
	return nil, gorm.ErrRecordNotFound
}
func (r *fakePaymentsRepo) CreateMembership(*models.Membership) error           { return nil }
func (r *fakePaymentsRepo) DecrementStock(uint, int) error                      { return nil }
func (r *fakePaymentsRepo) CreateGiftCertificate(*models.GiftCertificate) error { return nil }
func (r *fakePaymentsRepo) AdjustMemberCredit(uint, int64) error                { return nil }

type scriptedAdapter struct {
	result *payments.ChargeResult
	err    error
	calls  int
}

func (a *scriptedAdapter) Provider() string { return models.PaymentProviderStripe }
func (a *scriptedAdapter) CreateCheckoutSession(context.Context, payments.CheckoutParams) (*payments.CheckoutSession, error) {
	return nil, errors.New("not used")
}
func (a *scriptedAdapter) GetCheckoutStatus(context.Context, string, string) (*payments.CheckoutStatus, error) {
	return nil, errors.New("not used")
}
func (a *scriptedAdapter) ChargeStoredMethod(context.Context, payments.ChargeParams) (*payments.ChargeResult, error) {
	a.calls++
	if a.err != nil {
		return nil, a.err
	}
	return a.result, nil
}
func (a *scriptedAdapter) Refund(context.Context, payments.RefundParams) error { return nil }

func dueMembership(now time.Time) models.Membership {
	next := now.Add(-time.Hour)
	return models.Membership{
		ID:               5,
		MemberID:         1,
		MembershipPlanID: 2,
		Status:           models.MembershipStatusActive,
		NextPaymentDate:  &next,
		Member: models.Member{
			ID:        1,
			FirstName: "Mia",
			LastName:  "Tanaka",
			Email:     "mia@example.com",
		},
		MembershipPlan: models.MembershipPlan{
			ID:           2,
			Name:         "Adult BJJ Unlimited",
			PriceCents:   10000,
			Currency:     "USD",
			BillingCycle: models.BillingCycleMonthly,
			AutoRenew:    true,
		},
	}
}

func TestGenerateDueInvoicesWithoutGateway(t *testing.T) {
	now := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	repo := newFakeBillingRepo()
	membership := dueMembership(now)
	repo.due = []models.Membership{membership}

	engine := NewEngine(repo, payments.NewOrchestrator(&fakePaymentsRepo{}, nil, nil), nil)
	result, err := engine.GenerateDueInvoices(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, Result{Created: 1}, result)

	periodStart := *membership.NextPaymentDate
	invoice, ok := repo.invoices[models.MembershipInvoiceNumber(membership.ID, periodStart)]
	require.True(t, ok)
	assert.Equal(t, models.InvoiceStatusPending, invoice.Status)
	assert.Equal(t, int64(10000), invoice.AmountCents)
	assert.Equal(t, periodStart.AddDate(0, 1, 0), invoice.BillingPeriodEnd)

	// Schedule advances one cycle even though nothing was collected.
	assert.Equal(t, periodStart.AddDate(0, 1, 0), repo.schedules[membership.ID])
	assert.False(t, repo.lastPaidSet[membership.ID])
}

func TestGenerateDueInvoicesSkipsAlreadyInvoicedPeriod(t *testing.T) {
	now := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	repo := newFakeBillingRepo()
	membership := dueMembership(now)
	repo.due = []models.Membership{membership}

	periodStart := *membership.NextPaymentDate
	number := models.MembershipInvoiceNumber(membership.ID, periodStart)
	repo.invoices[number] = &models.Invoice{ID: 99, InvoiceNumber: number}

	engine := NewEngine(repo, payments.NewOrchestrator(&fakePaymentsRepo{}, nil, nil), nil)
	result, err := engine.GenerateDueInvoices(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, Result{Skipped: 1}, result)
	// The schedule still moves forward so the membership is not re-selected
	// tomorrow.
	assert.Equal(t, periodStart.AddDate(0, 1, 0), repo.schedules[membership.ID])
}

func TestGenerateDueInvoicesAppliesFamilyDiscount(t *testing.T) {
	now := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	repo := newFakeBillingRepo()
	membership := dueMembership(now)
	membership.MembershipPlan.FamilyDiscountPercent = 20
	repo.due = []models.Membership{membership}
	repo.familySizes[membership.MemberID] = 3

	engine := NewEngine(repo, payments.NewOrchestrator(&fakePaymentsRepo{}, nil, nil), nil)
	result, err := engine.GenerateDueInvoices(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)

	invoice := repo.invoices[models.MembershipInvoiceNumber(membership.ID, *membership.NextPaymentDate)]
	require.NotNil(t, invoice)
	assert.Less(t, invoice.AmountCents, int64(10000))
	assert.Equal(t, int64(8667), invoice.AmountCents)
	assert.Contains(t, invoice.Notes, "Family discount (3 members)")
	assert.Contains(t, invoice.Notes, "13.33 USD")
}

func TestGenerateDueInvoicesChargesStoredMethod(t *testing.T) {
	now := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	repo := newFakeBillingRepo()
	membership := dueMembership(now)
	repo.due = []models.Membership{membership}

	paymentsRepo := &fakePaymentsRepo{member: &models.Member{
		ID:                     1,
		Email:                  "mia@example.com",
		StripeCustomerID:       "cus_1",
		DefaultPaymentMethodID: "pm_1",
	}}
	adapter := &scriptedAdapter{result: &payments.ChargeResult{ExternalPaymentID: "pi_1"}}
	recorder := &notify.RecordingNotifier{}

	engine := NewEngine(repo, payments.NewOrchestrator(paymentsRepo, adapter, nil), recorder)
	result, err := engine.GenerateDueInvoices(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, Result{Created: 1, Charged: 1}, result)
	assert.Equal(t, 1, adapter.calls)
	require.Len(t, repo.paidInvoices, 1)
	assert.True(t, repo.lastPaidSet[membership.ID])
	require.Len(t, recorder.Sent, 1)
	assert.Equal(t, notify.KindPaymentReceipt, recorder.Sent[0].Kind)
}

func TestGenerateDueInvoicesChargeDeclineLeavesInvoicePending(t *testing.T) {
	now := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	repo := newFakeBillingRepo()
	membership := dueMembership(now)
	repo.due = []models.Membership{membership}

	paymentsRepo := &fakePaymentsRepo{member: &models.Member{
		ID:                     1,
		StripeCustomerID:       "cus_1",
		DefaultPaymentMethodID: "pm_1",
	}}
	adapter := &scriptedAdapter{err: &payments.DeclineError{Provider: "stripe", Code: "card_declined"}}

	engine := NewEngine(repo, payments.NewOrchestrator(paymentsRepo, adapter, nil), nil)
	result, err := engine.GenerateDueInvoices(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, Result{Created: 1, ChargeFailed: 1}, result)
	assert.Empty(t, repo.paidInvoices)
	// Next cycle is still scheduled; collection is the dunning ladder's job.
	assert.Equal(t, membership.NextPaymentDate.AddDate(0, 1, 0), repo.schedules[membership.ID])
	assert.False(t, repo.lastPaidSet[membership.ID])
}

func TestGenerateDueInvoicesNoStoredMethodIsSilentSkip(t *testing.T) {
	now := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	repo := newFakeBillingRepo()
	repo.due = []models.Membership{dueMembership(now)}

	paymentsRepo := &fakePaymentsRepo{member: &models.Member{ID: 1}}
	adapter := &scriptedAdapter{}

	engine := NewEngine(repo, payments.NewOrchestrator(paymentsRepo, adapter, nil), nil)
	result, err := engine.GenerateDueInvoices(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, Result{Created: 1}, result)
	assert.Equal(t, 0, adapter.calls)
}
