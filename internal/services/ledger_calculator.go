package services

import (
	domain "github.com/furnitune/api/internal/domain"
)

// Ledger is the derived financial position of an order. It is never stored.
type Ledger struct {
	Assessed            bool
	AssessedTotal       domain.Money
	Deposit             domain.Money
	AdditionalPaid      domain.Money
	Refunded            domain.Money
	RequestedAdditional domain.Money
	NetPaid             domain.Money
	BalanceDue          domain.Money
	NextPayment         domain.Money
}

// ComputeLedger derives net paid, balance due and the next payment amount from the
// order's recorded money fields. Negative stored values are read as zero.
func ComputeLedger(order domain.Order) Ledger {
	ledger := Ledger{
		Deposit:             order.Deposit.Clamp(),
		AdditionalPaid:      order.AdditionalPaid.Clamp(),
		Refunded:            order.Refunded.Clamp(),
		RequestedAdditional: order.RequestedAdditional.Clamp(),
	}
	if order.AssessedTotal != nil {
		ledger.Assessed = true
		ledger.AssessedTotal = order.AssessedTotal.Clamp()
	}

	ledger.NetPaid = ledger.Deposit.Add(ledger.AdditionalPaid).Sub(ledger.Refunded)
	ledger.BalanceDue = balanceDue(ledger.AssessedTotal, ledger.NetPaid)

	switch {
	case ledger.RequestedAdditional > 0:
		ledger.NextPayment = ledger.RequestedAdditional
	case ledger.AssessedTotal > 0 && ledger.BalanceDue > 0:
		ledger.NextPayment = ledger.BalanceDue
	default:
		ledger.NextPayment = 0
	}
	return ledger
}

// NextPaymentAmount returns the amount the customer should pay next, or zero when nothing is owed.
func NextPaymentAmount(order domain.Order) domain.Money {
	return ComputeLedger(order).NextPayment
}

// Apply writes the normalised money fields back onto a copy of the order.
func (l Ledger) Apply(order domain.Order) domain.Order {
	order.Deposit = l.Deposit
	order.AdditionalPaid = l.AdditionalPaid
	order.Refunded = l.Refunded
	order.RequestedAdditional = l.RequestedAdditional
	if l.Assessed {
		order.AssessedTotal = domain.MoneyPtr(l.AssessedTotal)
	} else {
		order.AssessedTotal = nil
	}
	return order
}

func balanceDue(assessed, netPaid domain.Money) domain.Money {
	if assessed <= 0 {
		return 0
	}
	return assessed.Sub(netPaid)
}
