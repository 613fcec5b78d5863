package services

import (
	"math"
	"slices"
	"strings"
	"time"
	"unicode"

	domain "github.com/furnitune/api/internal/domain"
)

const (
	dayMillis                 = int64(86_400_000)
	DefaultReturnWindowDays   = 3
	gcashAccountNumberDigits  = 11
	minRefundAccountNameRunes = 2
)

// Fixed user-facing reasons. Callers surface them verbatim.
const (
	ReturnReasonNoDeadline       = "Return window is not available for this order"
	ReturnReasonWindowEnded      = "Return window has ended"
	ReturnReasonAlreadyRequested = "A return request already exists for this order"
	ReturnReasonLocked           = "Returns are closed for this order"
	ReturnReasonNoItems          = "Select at least one item to return"
	ReturnReasonUnknownItem      = "Selected item is not part of this order"
	ReturnReasonQuantity         = "Return quantity must be between 1 and the quantity ordered"
	ReturnReasonReasonCode       = "Select a reason for the return"
	ReturnReasonAccountName      = "GCash account name must be at least 2 characters"
	ReturnReasonAccountNumber    = "GCash number must be exactly 11 digits"
)

// ReturnReasons lists every reason string the eligibility engine can produce.
var ReturnReasons = []string{
	ReturnReasonNoDeadline,
	ReturnReasonWindowEnded,
	ReturnReasonAlreadyRequested,
	ReturnReasonLocked,
	ReturnReasonNoItems,
	ReturnReasonUnknownItem,
	ReturnReasonQuantity,
	ReturnReasonReasonCode,
	ReturnReasonAccountName,
	ReturnReasonAccountNumber,
}

// ReturnReasonCodes is the closed set of reasons a customer may pick.
var ReturnReasonCodes = []string{
	"damaged",
	"defective",
	"wrong_item",
	"not_as_described",
	"missing_parts",
	"changed_mind",
	"other",
}

// ReturnPolicy configures the eligibility engine.
type ReturnPolicy struct {
	// DefaultWindowDays applies when the order carries no returnPolicyDays.
	DefaultWindowDays int
	// OneRequestPerOrder blocks resubmission after a rejected request when true.
	OneRequestPerOrder bool
}

// DefaultReturnPolicy returns the three day, one-request-per-order policy.
func DefaultReturnPolicy() ReturnPolicy {
	return ReturnPolicy{DefaultWindowDays: DefaultReturnWindowDays, OneRequestPerOrder: true}
}

// ReturnEligibility is the outcome of evaluating an order for a new return request.
type ReturnEligibility struct {
	Allowed       bool
	Reason        string
	Deadline      *time.Time
	DaysRemaining int
}

// ReturnSubmission is the customer payload for a new return request.
type ReturnSubmission struct {
	Items         []ReturnItemSelection
	ReasonCode    string
	Details       string
	AccountName   string
	AccountNumber string
	PhotoPath     string
}

// ReturnItemSelection picks a quantity of an ordered product.
type ReturnItemSelection struct {
	ProductRef string
	Quantity   int
}

// Deadline computes the return deadline. An explicit override always wins; otherwise the
// window starts at delivery, falling back to order creation.
func (p ReturnPolicy) Deadline(order domain.Order) (time.Time, bool) {
	if order.ReturnDeadlineAt != nil && !order.ReturnDeadlineAt.IsZero() {
		return order.ReturnDeadlineAt.UTC(), true
	}
	var start time.Time
	switch {
	case order.DeliveredAt != nil && !order.DeliveredAt.IsZero():
		start = *order.DeliveredAt
	case !order.CreatedAt.IsZero():
		start = order.CreatedAt
	default:
		return time.Time{}, false
	}
	days := p.windowDays(order)
	return start.UTC().Add(time.Duration(int64(days)*dayMillis) * time.Millisecond), true
}

// Evaluate decides whether a new return request may be created for order at now.
func (p ReturnPolicy) Evaluate(order domain.Order, existing []domain.ReturnRequest, now time.Time) ReturnEligibility {
	deadline, ok := p.Deadline(order)
	if !ok {
		return ReturnEligibility{Reason: ReturnReasonNoDeadline}
	}
	result := ReturnEligibility{
		Deadline:      &deadline,
		DaysRemaining: daysRemaining(deadline, now),
	}
	switch {
	case now.After(deadline):
		result.Reason = ReturnReasonWindowEnded
	case p.blockingRequest(existing):
		result.Reason = ReturnReasonAlreadyRequested
	case order.PaymentStatus.IsTerminal(), order.ReturnLocked && len(existing) == 0:
		result.Reason = ReturnReasonLocked
	default:
		result.Allowed = true
	}
	return result
}

// ValidateSubmission applies the input gates. The returned error is a *domain.ValidationError
// whose Reason is one of ReturnReasons.
func (p ReturnPolicy) ValidateSubmission(order domain.Order, payload ReturnSubmission) error {
	if len(payload.Items) == 0 {
		return domain.NewValidationError("items", ReturnReasonNoItems)
	}
	ordered := orderedQuantities(order)
	selected := make(map[string]int, len(payload.Items))
	for _, item := range payload.Items {
		ref := strings.TrimSpace(item.ProductRef)
		maxQty, ok := ordered[ref]
		if !ok {
			return domain.NewValidationError("items", ReturnReasonUnknownItem)
		}
		selected[ref] += item.Quantity
		if item.Quantity < 1 || selected[ref] > maxQty {
			return domain.NewValidationError("items", ReturnReasonQuantity)
		}
	}
	if !slices.Contains(ReturnReasonCodes, strings.TrimSpace(payload.ReasonCode)) {
		return domain.NewValidationError("reasonCode", ReturnReasonReasonCode)
	}
	if len([]rune(strings.TrimSpace(payload.AccountName))) < minRefundAccountNameRunes {
		return domain.NewValidationError("accountName", ReturnReasonAccountName)
	}
	if len(NormalizeAccountNumber(payload.AccountNumber)) != gcashAccountNumberDigits {
		return domain.NewValidationError("accountNumber", ReturnReasonAccountNumber)
	}
	return nil
}

// SubmitReturnRequest checks eligibility and input, then builds the new request. Eligibility
// failures are reported as validation errors on the "order" field.
func (p ReturnPolicy) SubmitReturnRequest(order domain.Order, existing []domain.ReturnRequest, payload ReturnSubmission, now time.Time) (domain.ReturnRequest, error) {
	eligibility := p.Evaluate(order, existing, now)
	if !eligibility.Allowed {
		return domain.ReturnRequest{}, domain.NewValidationError("order", eligibility.Reason)
	}
	if err := p.ValidateSubmission(order, payload); err != nil {
		return domain.ReturnRequest{}, err
	}

	prices := orderedPrices(order)
	items := make([]domain.ReturnItem, 0, len(payload.Items))
	var requested domain.Money
	for _, selection := range payload.Items {
		ref := strings.TrimSpace(selection.ProductRef)
		line := prices[ref]
		item := domain.ReturnItem{
			ProductRef: ref,
			Name:       line.Name,
			Quantity:   selection.Quantity,
			UnitPrice:  line.UnitPrice,
		}
		requested = requested.Add(item.LineTotal())
		items = append(items, item)
	}

	digits := NormalizeAccountNumber(payload.AccountNumber)
	return domain.ReturnRequest{
		OrderID:            order.ID,
		UserID:             order.UserID,
		Status:             domain.ReturnStatusRequested,
		Items:              items,
		ReasonCode:         strings.TrimSpace(payload.ReasonCode),
		Details:            strings.TrimSpace(payload.Details),
		RequestedAmount:    requested,
		RefundChannel:      domain.RefundChannelGCash,
		AccountName:        strings.TrimSpace(payload.AccountName),
		AccountNumberLast4: digits[len(digits)-4:],
		PhotoPath:          strings.TrimSpace(payload.PhotoPath),
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}

// NormalizeAccountNumber strips every non-digit character.
func NormalizeAccountNumber(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r <= unicode.MaxASCII && unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (p ReturnPolicy) windowDays(order domain.Order) int {
	if order.ReturnPolicyDays != nil && *order.ReturnPolicyDays >= 0 {
		return *order.ReturnPolicyDays
	}
	if p.DefaultWindowDays > 0 {
		return p.DefaultWindowDays
	}
	return DefaultReturnWindowDays
}

func (p ReturnPolicy) blockingRequest(existing []domain.ReturnRequest) bool {
	for _, req := range existing {
		if req.Status == domain.ReturnStatusRejected && !p.OneRequestPerOrder {
			continue
		}
		return true
	}
	return false
}

func daysRemaining(deadline, now time.Time) int {
	ms := deadline.Sub(now).Milliseconds()
	if ms <= 0 {
		return 0
	}
	return int(math.Ceil(float64(ms) / float64(dayMillis)))
}

func orderedQuantities(order domain.Order) map[string]int {
	out := make(map[string]int, len(order.Items))
	for _, item := range order.Items {
		out[strings.TrimSpace(item.ProductRef)] += item.Quantity
	}
	return out
}

func orderedPrices(order domain.Order) map[string]domain.OrderItem {
	out := make(map[string]domain.OrderItem, len(order.Items))
	for _, item := range order.Items {
		ref := strings.TrimSpace(item.ProductRef)
		if _, ok := out[ref]; !ok {
			out[ref] = item
		}
	}
	return out
}
