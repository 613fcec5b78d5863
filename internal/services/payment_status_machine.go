package services

import (
	"fmt"
	"slices"
	"time"

	domain "github.com/furnitune/api/internal/domain"
)

const paymentMachineName = "payment"

const (
	PaymentEventDepositRecorded           = "DepositRecorded"
	PaymentEventAssessmentFinalized       = "AssessmentFinalized"
	PaymentEventAdditionalPaymentRecorded = "AdditionalPaymentRecorded"
	PaymentEventRefundIssued              = "RefundIssued"
	PaymentEventOrderCancelled            = "OrderCancelled"
)

// PaymentEvent is one of DepositRecorded, AssessmentFinalized, AdditionalPaymentRecorded,
// RefundIssued or OrderCancelled.
type PaymentEvent interface {
	EventName() string
}

// DepositRecorded marks the first accepted payment proof.
type DepositRecorded struct {
	Amount    domain.Money
	ProofPath string
}

// AssessmentFinalized sets the authoritative total. A nil RequestedAmount bills the computed balance.
type AssessmentFinalized struct {
	AssessedTotal   domain.Money
	RequestedAmount *domain.Money
	Note            string
}

// AdditionalPaymentRecorded adds an accepted additional payment.
type AdditionalPaymentRecorded struct {
	Amount    domain.Money
	ProofPath string
}

// RefundIssued returns money to the customer.
type RefundIssued struct {
	Amount domain.Money
	Reason string
}

// OrderCancelled cancels an order before any payment was accepted.
type OrderCancelled struct {
	Reason string
}

func (DepositRecorded) EventName() string           { return PaymentEventDepositRecorded }
func (AssessmentFinalized) EventName() string       { return PaymentEventAssessmentFinalized }
func (AdditionalPaymentRecorded) EventName() string { return PaymentEventAdditionalPaymentRecorded }
func (RefundIssued) EventName() string              { return PaymentEventRefundIssued }
func (OrderCancelled) EventName() string            { return PaymentEventOrderCancelled }

// paymentEventSources lists the payment states each event may be applied in.
var paymentEventSources = map[string][]domain.PaymentStatus{
	PaymentEventDepositRecorded: {domain.PaymentStatusPending},
	PaymentEventAssessmentFinalized: {
		domain.PaymentStatusPending,
		domain.PaymentStatusDepositPaid,
		domain.PaymentStatusAwaitingAdditionalPayment,
	},
	PaymentEventAdditionalPaymentRecorded: {
		domain.PaymentStatusPending,
		domain.PaymentStatusDepositPaid,
		domain.PaymentStatusAwaitingAdditionalPayment,
	},
	PaymentEventRefundIssued: {
		domain.PaymentStatusDepositPaid,
		domain.PaymentStatusAwaitingAdditionalPayment,
		domain.PaymentStatusPaid,
	},
	PaymentEventOrderCancelled: {domain.PaymentStatusPending},
}

// PaymentTransition is the outcome of applying a payment event.
type PaymentTransition struct {
	Order         domain.Order
	Previous      domain.PaymentStatus
	Ledger        Ledger
	Applied       domain.Money
	Notifications []domain.Notification
}

// ApplyPaymentEvent runs the payment status machine. The returned order is a modified copy;
// on error the input order must not be persisted.
func ApplyPaymentEvent(order domain.Order, event PaymentEvent, now time.Time) (PaymentTransition, error) {
	if event == nil {
		return PaymentTransition{}, domain.NewValidationError("event", "Payment event is required")
	}
	current := order.PaymentStatus
	if current == "" {
		current = domain.PaymentStatusPending
	}
	name := event.EventName()
	if !slices.Contains(paymentEventSources[name], current) {
		return PaymentTransition{}, domain.NewTransitionError(paymentMachineName, string(current), name)
	}

	next := order
	next.Items = slices.Clone(order.Items)
	next.Proofs.AdditionalPaths = slices.Clone(order.Proofs.AdditionalPaths)
	next = ComputeLedger(next).Apply(next)

	result := PaymentTransition{Previous: current}
	var notes []domain.Notification

	switch ev := event.(type) {
	case DepositRecorded:
		if ev.Amount < 0 {
			return PaymentTransition{}, domain.NewValidationError("amount", "Deposit amount must not be negative")
		}
		next.Deposit = next.Deposit.Add(ev.Amount)
		if ev.ProofPath != "" {
			next.Proofs.DepositPath = ev.ProofPath
		}
		next.Proofs.PendingReview = false
		next.PaymentStatus = domain.PaymentStatusDepositPaid
		result.Applied = ev.Amount.Clamp()
		body := "Your payment was confirmed. We're preparing your order."
		if ev.Amount > 0 {
			body = fmt.Sprintf("We received your deposit of %s.", formatAmount(ev.Amount))
		}
		notes = append(notes, orderNotification(next, "", "Payment received", body))

	case AssessmentFinalized:
		if ev.AssessedTotal < 0 {
			return PaymentTransition{}, domain.NewValidationError("assessedTotal", "Assessed total must not be negative")
		}
		next.AssessedTotal = domain.MoneyPtr(ev.AssessedTotal)
		ledger := ComputeLedger(next)
		requested := ledger.BalanceDue
		if ev.RequestedAmount != nil {
			requested = ev.RequestedAmount.Clamp()
		}
		next.RequestedAdditional = requested
		switch {
		case requested > 0:
			next.PaymentStatus = domain.PaymentStatusAwaitingAdditionalPayment
			notes = append(notes, orderNotification(next, "", "Additional payment requested",
				fmt.Sprintf("Please pay %s for your order.", formatAmount(requested))))
		case ledger.BalanceDue == 0:
			next.PaymentStatus = domain.PaymentStatusPaid
			next.PaidAt = timePtr(now)
			notes = append(notes, orderNotification(next, "", "Assessment finalized: fully paid",
				"Your order is fully paid. Thank you!"))
		default:
			next.PaymentStatus = domain.PaymentStatusPending
		}

	case AdditionalPaymentRecorded:
		if ev.Amount <= 0 {
			return PaymentTransition{}, domain.NewValidationError("amount", "Payment amount must be greater than zero")
		}
		next.AdditionalPaid = next.AdditionalPaid.Add(ev.Amount)
		if ev.ProofPath != "" {
			next.Proofs.AdditionalPaths = append(next.Proofs.AdditionalPaths, ev.ProofPath)
		}
		next.Proofs.PendingReview = false
		next.RequestedAdditional = next.RequestedAdditional.Sub(ev.Amount)
		ledger := ComputeLedger(next)
		result.Applied = ev.Amount
		switch {
		case ledger.AssessedTotal > 0 && ledger.NetPaid >= ledger.AssessedTotal:
			next.PaymentStatus = domain.PaymentStatusPaid
			next.RequestedAdditional = 0
			next.PaidAt = timePtr(now)
			notes = append(notes, orderNotification(next, "", "Payment complete", "Your order is fully paid. Thank you!"))
		case current == domain.PaymentStatusAwaitingAdditionalPayment && next.RequestedAdditional == 0:
			next.PaymentStatus = domain.PaymentStatusDepositPaid
			notes = append(notes, orderNotification(next, "", "Payment received",
				fmt.Sprintf("We received %s. Remaining balance: %s.", formatAmount(ev.Amount), formatAmount(ledger.BalanceDue))))
		default:
			next.PaymentStatus = current
			notes = append(notes, orderNotification(next, "", "Payment received",
				fmt.Sprintf("We received %s.", formatAmount(ev.Amount))))
		}

	case RefundIssued:
		if ev.Amount <= 0 {
			return PaymentTransition{}, domain.NewValidationError("amount", "Refund amount must be greater than zero")
		}
		before := ComputeLedger(next)
		if before.NetPaid == 0 {
			return PaymentTransition{}, domain.NewTransitionError(paymentMachineName, string(current), PaymentEventRefundIssued)
		}
		applied := ev.Amount.Min(before.NetPaid)
		next.Refunded = next.Refunded.Add(applied)
		next.RefundedAt = timePtr(now)
		result.Applied = applied
		if applied >= before.NetPaid {
			next.PaymentStatus = domain.PaymentStatusRefunded
			next.RequestedAdditional = 0
		} else {
			next.PaymentStatus = current
		}
		notes = append(notes, orderNotification(next, "", fmt.Sprintf("Refund issued for %s", shortID(next.ID)),
			fmt.Sprintf("We've issued your refund of %s.", formatAmount(applied))))

	case OrderCancelled:
		next.PaymentStatus = domain.PaymentStatusCancelled
		next.Status = "cancelled"
		next.CancelledAt = timePtr(now)
		next.StatusUpdatedAt = timePtr(now)
		body := "Your order was cancelled."
		if ev.Reason != "" {
			body = "Your order was cancelled. Reason: " + ev.Reason
		}
		notes = append(notes, orderNotification(next, "", fmt.Sprintf("Order %s cancelled", shortID(next.ID)), body))

	default:
		return PaymentTransition{}, domain.NewTransitionError(paymentMachineName, string(current), name)
	}

	next.UpdatedAt = now
	result.Order = next
	result.Ledger = ComputeLedger(next)
	result.Notifications = notes
	return result, nil
}

func timePtr(t time.Time) *time.Time {
	return &t
}
