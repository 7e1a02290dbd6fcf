package dunning

import (
	"time"

	"github.com/OpenMatHQ/DojoDesk/internal/pkg/notify"
)

// Level is the notification severity of a dunning step.
type Level string

const (
	LevelFriendly   Level = "friendly"
	LevelUrgent     Level = "urgent"
	LevelFinal      Level = "final"
	LevelSuspension Level = "suspension"
)

// LevelForAttempt maps the attempt count to a severity. The mapping is
// monotone: repeated failures only ever escalate.
func LevelForAttempt(attempt int) Level {
	switch {
	case attempt <= 1:
		return LevelFriendly
	case attempt == 2:
		return LevelUrgent
	case attempt == 3:
		return LevelFinal
	default:
		return LevelSuspension
	}
}

// NotificationKind maps a severity onto the templated notification sent for
// it.
func (l Level) NotificationKind() notify.NotificationKind {
	switch l {
	case LevelFriendly:
		return notify.KindPaymentFailedFriendly
	case LevelUrgent:
		return notify.KindPaymentFailedUrgent
	case LevelFinal:
		return notify.KindPaymentFailedFinal
	default:
		return notify.KindMembershipSuspended
	}
}

// retryBackoffDays is the spacing of retry attempts; attempt 0 is the seed
// delay applied when an invoice first turns past due.
var retryBackoffDays = []int{3, 5, 7, 10}

// NextRetryDate computes when the given attempt should be retried.
func NextRetryDate(attempt int, from time.Time) time.Time {
	idx := attempt
	if idx < 0 {
		idx = 0
	}
	if idx >= len(retryBackoffDays) {
		idx = len(retryBackoffDays) - 1
	}
	return from.AddDate(0, 0, retryBackoffDays[idx])
}
