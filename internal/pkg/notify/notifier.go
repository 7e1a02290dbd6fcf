package notify

import (
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"github.com/OpenMatHQ/DojoDesk/internal/pkg/mail"
)

// NotificationKind identifies a templated notification event.
type NotificationKind string

const (
	KindPaymentReceipt        NotificationKind = "payment_receipt"
	KindPaymentFailedFriendly NotificationKind = "payment_failed_friendly"
	KindPaymentFailedUrgent   NotificationKind = "payment_failed_urgent"
	KindPaymentFailedFinal    NotificationKind = "payment_failed_final"
	KindMembershipSuspended   NotificationKind = "membership_suspended"
	KindCancellationScheduled NotificationKind = "cancellation_scheduled"
	KindMembershipCanceled    NotificationKind = "membership_canceled"
	KindTrialExpired          NotificationKind = "trial_expired"
	KindPromotionEligible     NotificationKind = "promotion_eligible"
	KindRefundIssued          NotificationKind = "refund_issued"
)

// Notifier dispatches templated notifications to members. Implementations
// must be best-effort: delivery failures are logged, never returned into
// billing state.
type Notifier interface {
	Send(kind NotificationKind, vars map[string]string)
}

// MailNotifier delivers notifications by email, asynchronously.
type MailNotifier struct{}

func NewMailNotifier() *MailNotifier {
	return &MailNotifier{}
}

// Send renders the notification and dispatches it in a goroutine. The batch
// pipelines never wait on delivery.
func (n *MailNotifier) Send(kind NotificationKind, vars map[string]string) {
	to := vars["email"]
	if to == "" {
		log.Warnf("[Notify] dropping %s notification without recipient", kind)
		return
	}
	subject, body := render(kind, vars)
	go func() {
		if err := mail.SendMail(to, subject, body); err != nil {
			log.Errorf("[Notify] failed to send %s to %s: %v", kind, to, err)
		}
	}()
}

func render(kind NotificationKind, vars map[string]string) (subject, body string) {
	name := vars["member_name"]
	amount := vars["amount"]

	switch kind {
	case KindPaymentReceipt:
		subject = "Payment received"
		body = fmt.Sprintf("<p>Hi %s,</p><p>we received your payment of %s. Thank you!</p>", name, amount)
	case KindPaymentFailedFriendly:
		subject = "We could not process your payment"
		body = fmt.Sprintf("<p>Hi %s,</p><p>your payment of %s did not go through. We will try again in a few days. Please check your payment method.</p>", name, amount)
	case KindPaymentFailedUrgent:
		subject = "Action needed: payment still failing"
		body = fmt.Sprintf("<p>Hi %s,</p><p>we still could not collect %s for invoice %s. Please update your payment method to keep your membership active.</p>", name, amount, vars["invoice_number"])
	case KindPaymentFailedFinal:
		subject = "Final notice before membership suspension"
		body = fmt.Sprintf("<p>Hi %s,</p><p>this is the final reminder for the outstanding amount of %s. Your membership will be suspended after the next failed attempt.</p>", name, amount)
	case KindMembershipSuspended:
		subject = "Your membership has been suspended"
		body = fmt.Sprintf("<p>Hi %s,</p><p>after repeated failed payment attempts your membership has been suspended. The outstanding amount of %s was added to your account balance. Please contact the front desk.</p>", name, amount)
	case KindCancellationScheduled:
		subject = "Your cancellation has been scheduled"
		body = fmt.Sprintf("<p>Hi %s,</p><p>your membership will end on %s.</p>", name, vars["effective_date"])
	case KindMembershipCanceled:
		subject = "Your membership has ended"
		body = fmt.Sprintf("<p>Hi %s,</p><p>your membership has ended as scheduled. We hope to see you back on the mat.</p>", name)
	case KindTrialExpired:
		subject = "Your trial pass has expired"
		body = fmt.Sprintf("<p>Hi %s,</p><p>your trial pass has expired. Ready to keep training? Check out our membership plans.</p>", name)
	case KindPromotionEligible:
		subject = "Promotion eligibility"
		body = fmt.Sprintf("<p>%s is eligible for promotion in %s.</p>", name, vars["style"])
	case KindRefundIssued:
		subject = "Refund issued"
		body = fmt.Sprintf("<p>Hi %s,</p><p>we refunded %s to your original payment method.</p>", name, amount)
	default:
		subject = string(kind)
		body = fmt.Sprintf("<p>Hi %s,</p>", name)
	}
	return subject, body
}

// NopNotifier swallows all notifications; used in tests.
type NopNotifier struct{}

func (NopNotifier) Send(NotificationKind, map[string]string) {}

// RecordingNotifier captures notifications for assertions in tests.
type RecordingNotifier struct {
	Sent []RecordedNotification
}

type RecordedNotification struct {
	Kind NotificationKind
	Vars map[string]string
}

func (r *RecordingNotifier) Send(kind NotificationKind, vars map[string]string) {
	r.Sent = append(r.Sent, RecordedNotification{Kind: kind, Vars: vars})
}
