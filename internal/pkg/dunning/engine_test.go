package dunning

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

type fakeDunningRepo struct {
	pending    []*models.Invoice
	invoice    *models.Invoice
	membership *models.Membership
	member     *models.Member
	debits     []int64
}

func (r *fakeDunningRepo) OverduePendingInvoices(cutoff time.Time) ([]models.Invoice, error) {
	var out []models.Invoice
	for _, inv := range r.pending {
		if inv.Status == models.InvoiceStatusPending && !inv.DueDate.After(cutoff) {
			out = append(out, *inv)
		}
	}
	return out, nil
}

func (r *fakeDunningRepo) MarkInvoicePastDue(id uint, nextRetryDate time.Time) error {
	for _, inv := range r.pending {
		if inv.ID == id {
			inv.Status = models.InvoiceStatusPastDue
			inv.NextRetryDate = &nextRetryDate
		}
	}
	return nil
}

func (r *fakeDunningRepo) RetryableInvoices(now time.Time) ([]models.Invoice, error) {
	inv := r.invoice
	if inv == nil || inv.NextRetryDate == nil || inv.NextRetryDate.After(now) {
		return nil, nil
	}
	if inv.Status != models.InvoiceStatusPastDue && inv.Status != models.InvoiceStatusFailed {
		return nil, nil
	}
	return []models.Invoice{*inv}, nil
}

func (r *fakeDunningRepo) RecordRetryFailure(id uint, retryCount int, lastRetryDate time.Time, nextRetryDate *time.Time, terminal bool) error {
	r.invoice.RetryCount = retryCount
	r.invoice.LastRetryDate = &lastRetryDate
	r.invoice.NextRetryDate = nextRetryDate
	if terminal {
		r.invoice.Status = models.InvoiceStatusFailed
	}
	return nil
}

func (r *fakeDunningRepo) MarkInvoicePaid(id uint, externalPaymentID, processor string, paidAt time.Time) error {
	r.invoice.Status = models.InvoiceStatusPaid
	r.invoice.ExternalPaymentID = externalPaymentID
	r.invoice.PaymentProcessor = processor
	r.invoice.PaidAt = &paidAt
	r.invoice.NextRetryDate = nil
	return nil
}

func (r *fakeDunningRepo) SuspendMembership(uint) (bool, error) {
	if r.membership.Status != models.MembershipStatusActive {
		return false, nil
	}
	r.membership.Status = models.MembershipStatusPaused
	r.membership.NextPaymentDate = nil
	return true, nil
}

func (r *fakeDunningRepo) MemberByID(uint) (*models.Member, error) {
	if r.member == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return r.member, nil
}

func (r *fakeDunningRepo) AdjustMemberCredit(_ uint, deltaCents int64) error {
	r.debits = append(r.debits, deltaCents)
	r.member.AccountCreditCents += deltaCents
	return nil
}

// chargeMemberRepo is the minimal payments repository behind the
// orchestrator; only the member lookup is exercised by stored-method charges.
type chargeMemberRepo struct {
	member *models.Member
}

func (r *chargeMemberRepo) MemberByID(uint) (*models.Member, error)          { return r.member, nil }
func (r *chargeMemberRepo) SaveGatewayCustomerRef(uint, string, string) error { return nil }
func (r *chargeMemberRepo) InvoiceByID(uint) (*models.Invoice, error) {
	return nil, gorm.ErrRecordNotFound
}
func (r *chargeMemberRepo) MarkInvoicePaid(uint, string, string, time.Time) error { return nil }
func (r *chargeMemberRepo) MarkInvoiceRefunded(uint) error                        { return nil }
func (r *chargeMemberRepo) TransactionByID(uint) (*models.Transaction, error) {
	return nil, gorm.ErrRecordNotFound
}
func (r *chargeMemberRepo) TransactionByExternalPaymentID(string) (*models.Transaction, error) {
	return nil, gorm.ErrRecordNotFound
}
func (r *chargeMemberRepo) CreateTransactionIfNew(*models.Transaction) (bool, error) {
	return true, nil
}
func (r *chargeMemberRepo) MarkTransactionPaid(uint, string, string, time.Time) error { return nil }
func (r *chargeMemberRepo) MarkTransactionRefunded(uint, time.Time) error             { return nil }
func (r *chargeMemberRepo) PlanByID(uint) (*models.MembershipPlan, error) {
	return nil, gorm.ErrRecordNotFound
}
func (r *chargeMemberRepo) CreateMembership(*models.Membership) error           { return nil }
func (r *chargeMemberRepo) DecrementStock(uint, int) error                      { return nil }
func (r *chargeMemberRepo) CreateGiftCertificate(*models.GiftCertificate) error { return nil }
func (r *chargeMemberRepo) AdjustMemberCredit(uint, int64) error                { return nil }

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

func chargingOrchestrator(adapter *scriptedAdapter) *payments.Orchestrator {
	repo := &chargeMemberRepo{member: &models.Member{
		ID:                     1,
		FirstName:              "Mia",
		LastName:               "Tanaka",
		Email:                  "mia@example.com",
		StripeCustomerID:       "cus_1",
		DefaultPaymentMethodID: "pm_1",
	}}
	return payments.NewOrchestrator(repo, adapter, nil)
}

func ladderFixture(now time.Time) *fakeDunningRepo {
	retryAt := now.Add(-time.Hour)
	nextPayment := now.AddDate(0, 1, 0)
	return &fakeDunningRepo{
		invoice: &models.Invoice{
			ID:            1,
			InvoiceNumber: "INV-000005-20260801",
			MembershipID:  5,
			MemberID:      1,
			AmountCents:   10000,
			Currency:      "USD",
			Status:        models.InvoiceStatusPastDue,
			NextRetryDate: &retryAt,
		},
		membership: &models.Membership{
			ID:              5,
			MemberID:        1,
			Status:          models.MembershipStatusActive,
			NextPaymentDate: &nextPayment,
		},
		member: &models.Member{
			ID:        1,
			FirstName: "Mia",
			LastName:  "Tanaka",
			Email:     "mia@example.com",
		},
	}
}

func TestMarkPastDueSeedsRetrySchedule(t *testing.T) {
	now := time.Date(2026, 8, 28, 6, 0, 0, 0, time.UTC)
	repo := &fakeDunningRepo{pending: []*models.Invoice{{
		ID:      1,
		Status:  models.InvoiceStatusPending,
		DueDate: now.AddDate(0, 0, -1),
	}}}

	engine := NewEngine(repo, nil, nil, Config{})
	marked, err := engine.MarkPastDue(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, 1, marked)
	assert.Equal(t, models.InvoiceStatusPastDue, repo.pending[0].Status)
	require.NotNil(t, repo.pending[0].NextRetryDate)
	assert.Equal(t, now.AddDate(0, 0, 3), *repo.pending[0].NextRetryDate)
}

func TestMarkPastDueHonorsGracePeriod(t *testing.T) {
	now := time.Date(2026, 8, 28, 6, 0, 0, 0, time.UTC)
	repo := &fakeDunningRepo{pending: []*models.Invoice{{
		ID:      1,
		Status:  models.InvoiceStatusPending,
		DueDate: now.AddDate(0, 0, -1),
	}}}

	engine := NewEngine(repo, nil, nil, Config{GracePeriodDays: 3})
	marked, err := engine.MarkPastDue(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, 0, marked)
	assert.Equal(t, models.InvoiceStatusPending, repo.pending[0].Status)
}

func TestLadderTerminatesAfterMaxRetries(t *testing.T) {
	now := time.Date(2026, 8, 28, 6, 0, 0, 0, time.UTC)
	repo := ladderFixture(now)
	adapter := &scriptedAdapter{err: &payments.DeclineError{Provider: "stripe", Code: "card_declined"}}
	recorder := &notify.RecordingNotifier{}

	engine := NewEngine(repo, chargingOrchestrator(adapter), recorder, Config{MaxRetries: 4})

	var suspended int
	for cycle := 0; cycle < 4; cycle++ {
		res, err := engine.ProcessRetries(context.Background(), now)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Processed, "cycle %d", cycle)
		suspended += res.Suspended

		assert.Equal(t, cycle+1, repo.invoice.RetryCount)
		if cycle < 3 {
			require.NotNil(t, repo.invoice.NextRetryDate, "cycle %d", cycle)
			now = repo.invoice.NextRetryDate.Add(time.Hour)
		}
	}

	assert.Equal(t, models.InvoiceStatusFailed, repo.invoice.Status)
	assert.Nil(t, repo.invoice.NextRetryDate)
	assert.Equal(t, 4, adapter.calls)

	assert.Equal(t, 1, suspended)
	assert.Equal(t, models.MembershipStatusPaused, repo.membership.Status)
	assert.Nil(t, repo.membership.NextPaymentDate)

	// The uncollected amount is booked against the running balance.
	assert.Equal(t, []int64{-10000}, repo.debits)
	assert.Equal(t, int64(-10000), repo.member.AccountCreditCents)

	kinds := make([]notify.NotificationKind, 0, len(recorder.Sent))
	for _, n := range recorder.Sent {
		kinds = append(kinds, n.Kind)
	}
	assert.Equal(t, []notify.NotificationKind{
		notify.KindPaymentFailedFriendly,
		notify.KindPaymentFailedUrgent,
		notify.KindPaymentFailedFinal,
		notify.KindMembershipSuspended,
	}, kinds)

	// Terminal state stays terminal: nothing is retryable anymore.
	res, err := engine.ProcessRetries(context.Background(), now.AddDate(0, 0, 30))
	require.NoError(t, err)
	assert.Equal(t, RetryResult{}, res)
}

func TestChargeSuccessShortCircuitsLadder(t *testing.T) {
	now := time.Date(2026, 8, 28, 6, 0, 0, 0, time.UTC)
	repo := ladderFixture(now)
	repo.invoice.RetryCount = 2

	adapter := &scriptedAdapter{result: &payments.ChargeResult{ExternalPaymentID: "pi_recovered"}}
	recorder := &notify.RecordingNotifier{}

	engine := NewEngine(repo, chargingOrchestrator(adapter), recorder, Config{MaxRetries: 4})
	res, err := engine.ProcessRetries(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, RetryResult{Processed: 1, Recovered: 1}, res)
	assert.Equal(t, models.InvoiceStatusPaid, repo.invoice.Status)
	assert.Nil(t, repo.invoice.NextRetryDate)
	assert.Equal(t, "pi_recovered", repo.invoice.ExternalPaymentID)
	assert.Equal(t, models.MembershipStatusActive, repo.membership.Status)

	require.Len(t, recorder.Sent, 1)
	assert.Equal(t, notify.KindPaymentReceipt, recorder.Sent[0].Kind)
}

func TestProcessRetriesWithoutGatewayDoesNothing(t *testing.T) {
	now := time.Date(2026, 8, 28, 6, 0, 0, 0, time.UTC)
	repo := ladderFixture(now)

	engine := NewEngine(repo, payments.NewOrchestrator(&chargeMemberRepo{}, nil, nil), nil, Config{})
	res, err := engine.ProcessRetries(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, RetryResult{}, res)
	assert.Equal(t, models.InvoiceStatusPastDue, repo.invoice.Status)
	assert.Equal(t, 0, repo.invoice.RetryCount)
}
