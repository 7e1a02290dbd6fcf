package autorun

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenMatHQ/DojoDesk/app/models"
	"github.com/OpenMatHQ/DojoDesk/internal/pkg/billing"
	"github.com/OpenMatHQ/DojoDesk/internal/pkg/dunning"
	"github.com/OpenMatHQ/DojoDesk/internal/pkg/notify"
)

type fakeRunRepo struct {
	claimed       map[string]bool
	claimErr      error
	finalized     *models.AutoRunLog
	cancellations []models.Membership
	canceled      []uint
	trialPasses   []models.TrialPass
	expired       []uint
	members       map[uint]*models.Member
}

func newFakeRunRepo() *fakeRunRepo {
	return &fakeRunRepo{
		claimed: map[string]bool{},
		members: map[uint]*models.Member{},
	}
}

func (r *fakeRunRepo) ClaimRun(runDate string, _ time.Time) (bool, error) {
	if r.claimErr != nil {
		return false, r.claimErr
	}
	if r.claimed[runDate] {
		return false, nil
	}
	r.claimed[runDate] = true
	return true, nil
}

func (r *fakeRunRepo) FinalizeRun(_ string, log *models.AutoRunLog) error {
	r.finalized = log
	return nil
}

func (r *fakeRunRepo) ScheduledCancellations(time.Time) ([]models.Membership, error) {
	return r.cancellations, nil
}

func (r *fakeRunRepo) CancelMembership(id uint, _ time.Time) error {
	r.canceled = append(r.canceled, id)
	return nil
}

func (r *fakeRunRepo) ExpiredTrialPasses(time.Time) ([]models.TrialPass, error) {
	return r.trialPasses, nil
}

func (r *fakeRunRepo) ExpireTrialPass(id uint) error {
	r.expired = append(r.expired, id)
	return nil
}

func (r *fakeRunRepo) MemberByID(id uint) (*models.Member, error) {
	return r.members[id], nil
}

type fakeSettings struct {
	billingOn bool
	dunningOn bool
	loc       *time.Location
}

func (s *fakeSettings) AutoBillingEnabled() bool { return s.billingOn }
func (s *fakeSettings) DunningEnabled() bool     { return s.dunningOn }
func (s *fakeSettings) BusinessTimezone() *time.Location {
	if s.loc == nil {
		return time.UTC
	}
	return s.loc
}

type fakeBillingStage struct {
	result billing.Result
	panics bool
	calls  int
}

func (s *fakeBillingStage) GenerateDueInvoices(context.Context, time.Time) (billing.Result, error) {
	s.calls++
	if s.panics {
		panic("billing stage exploded")
	}
	return s.result, nil
}

type fakeDunningStage struct {
	marked     int
	retries    dunning.RetryResult
	markCalls  int
	retryCalls int
}

func (s *fakeDunningStage) MarkPastDue(context.Context, time.Time) (int, error) {
	s.markCalls++
	return s.marked, nil
}

func (s *fakeDunningStage) ProcessRetries(context.Context, time.Time) (dunning.RetryResult, error) {
	s.retryCalls++
	return s.retries, nil
}

func newTestCoordinator(repo Repository, settings SettingsSource, b BillingStage, d DunningStage) *Coordinator {
	return NewCoordinator(repo, settings, b, d, nil, notify.NopNotifier{}, false)
}

func TestRunIsIdempotentPerDay(t *testing.T) {
	repo := newFakeRunRepo()
	billingStage := &fakeBillingStage{result: billing.Result{Created: 2, Skipped: 1}}
	dunningStage := &fakeDunningStage{marked: 1, retries: dunning.RetryResult{Processed: 3, Suspended: 1}}
	c := newTestCoordinator(repo, &fakeSettings{billingOn: true, dunningOn: true}, billingStage, dunningStage)

	now := time.Date(2026, 8, 28, 6, 0, 0, 0, time.UTC)

	first, err := c.Run(context.Background(), now)
	require.NoError(t, err)
	assert.False(t, first.Skipped)
	assert.Equal(t, "2026-08-28", first.RunDate)
	assert.Equal(t, 2, first.InvoicesCreated)
	assert.Equal(t, 1, first.InvoicesSkipped)
	assert.Equal(t, 1, first.PastDueMarked)
	assert.Equal(t, 3, first.DunningProcessed)
	assert.Equal(t, 1, first.MembershipsSuspended)
	require.NotNil(t, repo.finalized)

	second, err := c.Run(context.Background(), now.Add(4*time.Hour))
	require.NoError(t, err)
	assert.True(t, second.Skipped)
	assert.Equal(t, 1, billingStage.calls)
	assert.Equal(t, 1, dunningStage.markCalls)

	// A new business day runs again.
	third, err := c.Run(context.Background(), now.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.False(t, third.Skipped)
	assert.Equal(t, 2, billingStage.calls)
}

func TestRunDayBoundaryUsesBusinessTimezone(t *testing.T) {
	loc := time.FixedZone("studio", -7*3600)
	repo := newFakeRunRepo()
	c := newTestCoordinator(repo, &fakeSettings{loc: loc}, &fakeBillingStage{}, &fakeDunningStage{})

	// 02:00 UTC on the 29th is still the evening of the 28th at the studio.
	now := time.Date(2026, 8, 29, 2, 0, 0, 0, time.UTC)
	summary, err := c.Run(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, "2026-08-28", summary.RunDate)
}

func TestRunFeatureFlagsGateStages(t *testing.T) {
	repo := newFakeRunRepo()
	billingStage := &fakeBillingStage{}
	dunningStage := &fakeDunningStage{}
	c := newTestCoordinator(repo, &fakeSettings{billingOn: false, dunningOn: false}, billingStage, dunningStage)

	summary, err := c.Run(context.Background(), time.Now())
	require.NoError(t, err)

	assert.False(t, summary.Skipped)
	assert.Equal(t, 0, billingStage.calls)
	assert.Equal(t, 0, dunningStage.markCalls)
	assert.Equal(t, 0, dunningStage.retryCalls)
}

func TestRunStageFailureDoesNotBlockLaterStages(t *testing.T) {
	repo := newFakeRunRepo()
	effective := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	repo.cancellations = []models.Membership{{
		ID:                        9,
		MemberID:                  1,
		Status:                    models.MembershipStatusActive,
		CancellationEffectiveDate: &effective,
		Member:                    models.Member{ID: 1, FirstName: "Mia", LastName: "Tanaka", Email: "mia@example.com"},
	}}

	billingStage := &fakeBillingStage{panics: true}
	dunningStage := &fakeDunningStage{marked: 2}
	c := newTestCoordinator(repo, &fakeSettings{billingOn: true, dunningOn: true}, billingStage, dunningStage)

	summary, err := c.Run(context.Background(), time.Date(2026, 8, 28, 6, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.False(t, summary.Skipped)
	require.Len(t, summary.StageErrors, 1)
	assert.Contains(t, summary.StageErrors[0], "billing")

	assert.Equal(t, 1, dunningStage.markCalls)
	assert.Equal(t, 2, summary.PastDueMarked)
	assert.Equal(t, []uint{9}, repo.canceled)
	assert.Equal(t, 1, summary.CancellationsProcessed)
}

func TestRunProcessesCancellationsAndTrialPasses(t *testing.T) {
	repo := newFakeRunRepo()
	effective := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	repo.cancellations = []models.Membership{{
		ID:                        9,
		MemberID:                  1,
		Status:                    models.MembershipStatusActive,
		CancellationEffectiveDate: &effective,
		Member:                    models.Member{ID: 1, FirstName: "Mia", LastName: "Tanaka", Email: "mia@example.com"},
	}}
	repo.trialPasses = []models.TrialPass{
		{ID: 3, MemberID: 2, Status: models.TrialPassStatusActive},
	}
	repo.members[2] = &models.Member{ID: 2, FirstName: "Ben", LastName: "Okafor", Email: "ben@example.com"}

	recorder := &notify.RecordingNotifier{}
	c := NewCoordinator(repo, &fakeSettings{}, &fakeBillingStage{}, &fakeDunningStage{}, nil, recorder, false)

	summary, err := c.Run(context.Background(), time.Date(2026, 8, 28, 6, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, 1, summary.CancellationsProcessed)
	assert.Equal(t, 1, summary.TrialPassesExpired)
	assert.Equal(t, []uint{9}, repo.canceled)
	assert.Equal(t, []uint{3}, repo.expired)

	kinds := make([]notify.NotificationKind, 0, len(recorder.Sent))
	for _, n := range recorder.Sent {
		kinds = append(kinds, n.Kind)
	}
	assert.ElementsMatch(t, []notify.NotificationKind{
		notify.KindMembershipCanceled,
		notify.KindTrialExpired,
	}, kinds)
}

// stubRunMarkerCache swaps the package cache hooks for an in-memory marker
// map; restored via t.Cleanup.
func stubRunMarkerCache(t *testing.T) map[string]bool {
	t.Helper()

	markers := map[string]bool{}
	origSetNX, origDelete, origFlush := cacheSetNX, cacheDelete, flushCheckIns
	cacheSetNX = func(key string, _ interface{}, _ time.Duration) (bool, error) {
		if markers[key] {
			return false, nil
		}
		markers[key] = true
		return true, nil
	}
	cacheDelete = func(key string) error {
		delete(markers, key)
		return nil
	}
	flushCheckIns = func() error { return nil }
	t.Cleanup(func() {
		cacheSetNX, cacheDelete, flushCheckIns = origSetNX, origDelete, origFlush
	})
	return markers
}

func TestRunReleasesMarkerWhenClaimFails(t *testing.T) {
	markers := stubRunMarkerCache(t)

	repo := newFakeRunRepo()
	repo.claimErr = errors.New("connection refused")
	c := NewCoordinator(repo, &fakeSettings{}, &fakeBillingStage{}, &fakeDunningStage{}, nil, nil, true)

	now := time.Date(2026, 8, 28, 6, 0, 0, 0, time.UTC)

	_, err := c.Run(context.Background(), now)
	require.Error(t, err)
	assert.Empty(t, markers, "marker must not survive a failed claim")

	// Database recovered: a retry the same day must still run.
	repo.claimErr = nil
	summary, err := c.Run(context.Background(), now.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, summary.Skipped)
	require.NotNil(t, repo.finalized)
}

func TestRunMarkerFastPathSkipsClaim(t *testing.T) {
	markers := stubRunMarkerCache(t)
	markers["autorun:2026-08-28"] = true

	repo := newFakeRunRepo()
	c := NewCoordinator(repo, &fakeSettings{}, &fakeBillingStage{}, &fakeDunningStage{}, nil, nil, true)

	summary, err := c.Run(context.Background(), time.Date(2026, 8, 28, 6, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, summary.Skipped)
	assert.Empty(t, repo.claimed, "fast path must not reach the database")
}

type fakePromotions struct {
	notified int
}

func (p *fakePromotions) NotifyEligible(context.Context, time.Time) (int, error) {
	p.notified = 4
	return 4, nil
}

func TestRunInvokesPromotionCollaborator(t *testing.T) {
	repo := newFakeRunRepo()
	promotions := &fakePromotions{}
	c := NewCoordinator(repo, &fakeSettings{}, &fakeBillingStage{}, &fakeDunningStage{}, promotions, nil, false)

	summary, err := c.Run(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 4, summary.PromotionsNotified)
	assert.Equal(t, 4, promotions.notified)
}
