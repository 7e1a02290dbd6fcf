// Package autorun implements the single daily entry point that drives all
// recurring billing work: invoice generation, the past-due sweep, dunning
// retries, scheduled cancellations and ancillary sweeps. It is idempotent per
// business-calendar day.
package autorun

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/OpenMatHQ/DojoDesk/app/models"
	"github.com/OpenMatHQ/DojoDesk/internal/pkg/billing"
	"github.com/OpenMatHQ/DojoDesk/internal/pkg/cache"
	"github.com/OpenMatHQ/DojoDesk/internal/pkg/dunning"
	"github.com/OpenMatHQ/DojoDesk/internal/pkg/metrics/counter"
	"github.com/OpenMatHQ/DojoDesk/internal/pkg/notify"
)

const runMarkerTTL = 36 * time.Hour

// Cache operations are indirected so coordinator tests can run without redis.
var (
	cacheSetNX    = cache.SetNX
	cacheDelete   = cache.Delete
	flushCheckIns = counter.FlushCheckIns
)

// BillingStage is the invoice-generation stage of the daily run.
type BillingStage interface {
	GenerateDueInvoices(ctx context.Context, now time.Time) (billing.Result, error)
}

// DunningStage covers the past-due sweep and the retry ladder.
type DunningStage interface {
	MarkPastDue(ctx context.Context, now time.Time) (int, error)
	ProcessRetries(ctx context.Context, now time.Time) (dunning.RetryResult, error)
}

// PromotionChecker is the rank-promotion collaborator. Eligibility logic
// lives outside this system; the daily run only triggers the check.
type PromotionChecker interface {
	NotifyEligible(ctx context.Context, now time.Time) (int, error)
}

// SettingsSource exposes the runtime flags the coordinator consults.
type SettingsSource interface {
	AutoBillingEnabled() bool
	DunningEnabled() bool
	BusinessTimezone() *time.Location
}

// Summary is the result of one daily-run invocation.
type Summary struct {
	Skipped                bool     `json:"skipped"`
	RunDate                string   `json:"run_date"`
	InvoicesCreated        int      `json:"invoices_created"`
	InvoicesSkipped        int      `json:"invoices_skipped"`
	InvoicesCharged        int      `json:"invoices_charged"`
	PastDueMarked          int      `json:"past_due_marked"`
	DunningProcessed       int      `json:"dunning_processed"`
	MembershipsSuspended   int      `json:"memberships_suspended"`
	CancellationsProcessed int      `json:"cancellations_processed"`
	TrialPassesExpired     int      `json:"trial_passes_expired"`
	PromotionsNotified     int      `json:"promotions_notified"`
	StageErrors            []string `json:"stage_errors,omitempty"`
}

// Coordinator sequences the daily stages. Every stage runs behind a recover
// boundary so a failing stage degrades the run to a partial result instead of
// blocking the stages after it.
type Coordinator struct {
	repo       Repository
	settings   SettingsSource
	billing    BillingStage
	dunning    DunningStage
	promotions PromotionChecker
	notifier   notify.Notifier
	useCache   bool
}

// NewCoordinator wires the daily-run coordinator. promotions may be nil when
// no rank-promotion collaborator is configured.
func NewCoordinator(repo Repository, settings SettingsSource, billingStage BillingStage, dunningStage DunningStage, promotions PromotionChecker, notifier notify.Notifier, useCache bool) *Coordinator {
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	return &Coordinator{
		repo:       repo,
		settings:   settings,
		billing:    billingStage,
		dunning:    dunningStage,
		promotions: promotions,
		notifier:   notifier,
		useCache:   useCache,
	}
}

// Run executes the daily pipeline once per business-calendar day. Repeated
// calls on the same day return Skipped=true without touching any state. The
// returned error is non-nil only when the run could not be claimed at all.
func (c *Coordinator) Run(ctx context.Context, now time.Time) (Summary, error) {
	runDate := now.In(c.settings.BusinessTimezone()).Format("2006-01-02")

	if c.useCache {
		created, err := cacheSetNX("autorun:"+runDate, "1", runMarkerTTL)
		if err == nil && !created {
			return Summary{Skipped: true, RunDate: runDate}, nil
		}
	}

	claimed, err := c.repo.ClaimRun(runDate, now)
	if err != nil {
		// The marker must not outlive a failed claim or every retry that
		// day would short-circuit to Skipped.
		if c.useCache {
			if derr := cacheDelete("autorun:" + runDate); derr != nil {
				log.Errorf("[AutoRun] releasing run marker for %s failed: %v", runDate, derr)
			}
		}
		return Summary{}, fmt.Errorf("claiming run for %s: %w", runDate, err)
	}
	if !claimed {
		return Summary{Skipped: true, RunDate: runDate}, nil
	}

	summary := Summary{RunDate: runDate}

	if c.settings.AutoBillingEnabled() {
		c.stage("billing", &summary, func() error {
			res, err := c.billing.GenerateDueInvoices(ctx, now)
			summary.InvoicesCreated = res.Created
			summary.InvoicesSkipped = res.Skipped
			summary.InvoicesCharged = res.Charged
			return err
		})
	}

	if c.settings.DunningEnabled() {
		c.stage("past_due_sweep", &summary, func() error {
			marked, err := c.dunning.MarkPastDue(ctx, now)
			summary.PastDueMarked = marked
			return err
		})
		c.stage("dunning_retries", &summary, func() error {
			res, err := c.dunning.ProcessRetries(ctx, now)
			summary.DunningProcessed = res.Processed
			summary.MembershipsSuspended = res.Suspended
			return err
		})
	}

	c.stage("cancellations", &summary, func() error {
		processed, err := c.processScheduledCancellations(now)
		summary.CancellationsProcessed = processed
		return err
	})

	if c.useCache {
		c.stage("attendance_flush", &summary, func() error {
			return flushCheckIns()
		})
	}

	c.stage("trial_passes", &summary, func() error {
		expired, err := c.expireTrialPasses(now)
		summary.TrialPassesExpired = expired
		return err
	})

	if c.promotions != nil {
		c.stage("promotions", &summary, func() error {
			notified, err := c.promotions.NotifyEligible(ctx, now)
			summary.PromotionsNotified = notified
			return err
		})
	}

	if err := c.repo.FinalizeRun(runDate, &models.AutoRunLog{
		InvoicesCreated:        summary.InvoicesCreated,
		InvoicesSkipped:        summary.InvoicesSkipped,
		PastDueMarked:          summary.PastDueMarked,
		DunningProcessed:       summary.DunningProcessed,
		MembershipsSuspended:   summary.MembershipsSuspended,
		CancellationsProcessed: summary.CancellationsProcessed,
		TrialPassesExpired:     summary.TrialPassesExpired,
		StageErrors:            strings.Join(summary.StageErrors, "; "),
	}); err != nil {
		log.Errorf("[AutoRun] finalizing run %s failed: %v", runDate, err)
	}

	return summary, nil
}

// stage runs one pipeline step behind a recover boundary. Errors and panics
// are recorded on the summary; the pipeline keeps going.
func (c *Coordinator) stage(name string, summary *Summary, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("[AutoRun] stage %s panicked: %v", name, r)
			summary.StageErrors = append(summary.StageErrors, fmt.Sprintf("%s: panic: %v", name, r))
		}
	}()
	if err := fn(); err != nil {
		log.Errorf("[AutoRun] stage %s failed: %v", name, err)
		summary.StageErrors = append(summary.StageErrors, fmt.Sprintf("%s: %v", name, err))
	}
}

// processScheduledCancellations closes out memberships whose cancellation
// effective date has arrived.
func (c *Coordinator) processScheduledCancellations(now time.Time) (int, error) {
	memberships, err := c.repo.ScheduledCancellations(now)
	if err != nil {
		return 0, fmt.Errorf("selecting scheduled cancellations: %w", err)
	}

	processed := 0
	for i := range memberships {
		membership := &memberships[i]
		effective := now
		if membership.CancellationEffectiveDate != nil {
			effective = *membership.CancellationEffectiveDate
		}
		if err := c.repo.CancelMembership(membership.ID, effective); err != nil {
			log.Errorf("[AutoRun] canceling membership %d failed: %v", membership.ID, err)
			continue
		}
		processed++
		c.notifier.Send(notify.KindMembershipCanceled, map[string]string{
			"email":       membership.Member.Email,
			"member_name": membership.Member.FullName(),
		})
	}
	return processed, nil
}

func (c *Coordinator) expireTrialPasses(now time.Time) (int, error) {
	passes, err := c.repo.ExpiredTrialPasses(now)
	if err != nil {
		return 0, fmt.Errorf("selecting expired trial passes: %w", err)
	}

	expired := 0
	for i := range passes {
		pass := &passes[i]
		if err := c.repo.ExpireTrialPass(pass.ID); err != nil {
			log.Errorf("[AutoRun] expiring trial pass %d failed: %v", pass.ID, err)
			continue
		}
		expired++
		if member, err := c.repo.MemberByID(pass.MemberID); err == nil {
			c.notifier.Send(notify.KindTrialExpired, map[string]string{
				"email":       member.Email,
				"member_name": member.FullName(),
			})
		}
	}
	return expired, nil
}
