package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMoneyArithmeticNeverNegative(t *testing.T) {
	assert.Equal(t, Money(0), Money(-500).Clamp())
	assert.Equal(t, Money(300), Money(-200).Add(300))
	assert.Equal(t, Money(0), Money(100).Sub(250))
	assert.Equal(t, Money(150), Money(400).Sub(250))
	assert.Equal(t, Money(0), Money(-1).Min(40))
	assert.Equal(t, Money(40), Money(90).Min(40))
}

func TestParseMoney(t *testing.T) {
	cases := []struct {
		raw  string
		want Money
	}{
		{raw: "1499.50", want: 149950},
		{raw: "1,250", want: 125000},
		{raw: "0.005", want: 1},
		{raw: "10.004", want: 1000},
		{raw: " 7 ", want: 700},
	}
	for _, tc := range cases {
		got, err := ParseMoney(tc.raw)
		require.NoError(t, err, tc.raw)
		assert.Equal(t, tc.want, got, tc.raw)
	}

	_, err := ParseMoney("-1")
	require.Error(t, err)
	_, err = ParseMoney("abc")
	require.Error(t, err)
	_, err = ParseMoney("")
	require.Error(t, err)
}

func TestMoneyString(t *testing.T) {
	assert.Equal(t, "150.00", Money(15000).String())
	assert.Equal(t, "0.05", Money(5).String())
}

func TestTypedErrorsMatchSentinels(t *testing.T) {
	var err error = NewTransitionError("shipment", "shipped", "delivered")
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.Equal(t, "shipment: invalid transition: shipped -> delivered", err.Error())

	err = NewValidationError("accountNumber", "GCash number must be exactly 11 digits")
	assert.True(t, errors.Is(err, ErrValidationFailed))

	var validation *ValidationError
	require.True(t, errors.As(err, &validation))
	assert.Equal(t, "GCash number must be exactly 11 digits", validation.Reason)

	assert.True(t, errors.Is(NewNotFoundError("order", "ord_1"), ErrNotFound))
	assert.True(t, errors.Is(&ConflictError{Entity: "order", ID: "ord_1", Expected: 2, Actual: 3}, ErrConcurrentModification))
}

func TestParsePaymentStatusFallsBackToPending(t *testing.T) {
	assert.Equal(t, PaymentStatusPaid, ParsePaymentStatus("Paid"))
	assert.Equal(t, PaymentStatusAwaitingAdditionalPayment, ParsePaymentStatus("awaiting-additional-payment"))
	assert.Equal(t, PaymentStatusCancelled, ParsePaymentStatus("canceled"))
	assert.Equal(t, PaymentStatusPending, ParsePaymentStatus("something else"))
	assert.Equal(t, PaymentStatusPending, ParsePaymentStatus(""))
}
