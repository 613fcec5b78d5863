package services

import (
	"slices"
	"strings"
	"time"

	domain "github.com/furnitune/api/internal/domain"
)

const revenueDayLayout = "2006-01-02"

// RevenuePolicy controls which sale records contribute gross revenue.
type RevenuePolicy struct {
	CountOnlyPaid bool
	// Location selects the calendar used for day buckets. Nil means UTC.
	Location *time.Location
}

// RevenuePoint is one day of the cumulative net revenue series.
type RevenuePoint struct {
	Date          string
	Gross         domain.Money
	Refunds       domain.Money
	NetCumulative int64
}

// RevenueTotals sums every bucketed amount.
type RevenueTotals struct {
	Gross   domain.Money
	Refunds domain.Money
	Net     int64
}

// RevenueReport is the aggregated series plus totals.
type RevenueReport struct {
	Series []RevenuePoint
	Totals RevenueTotals
}

// AggregateRevenue folds sale records into a day-bucketed running net revenue series.
// Repairs already referenced by an order are excluded before folding.
func AggregateRevenue(records []domain.SaleRecord, policy RevenuePolicy) RevenueReport {
	loc := policy.Location
	if loc == nil {
		loc = time.UTC
	}

	gross := make(map[string]domain.Money)
	refunds := make(map[string]domain.Money)

	for _, record := range ExcludeLinkedRepairs(records) {
		if !policy.CountOnlyPaid || isPaidRecord(record) {
			if at := firstTime(record.PaidAt, record.CreatedAt, record.UpdatedAt); at != nil && record.Total > 0 {
				key := at.In(loc).Format(revenueDayLayout)
				gross[key] = gross[key].Add(record.Total)
			}
		}
		if refunded := refundedAmount(record); refunded > 0 {
			if at := firstTime(record.RefundedAt, record.CancelledAt, record.StatusUpdatedAt, record.UpdatedAt); at != nil {
				key := at.In(loc).Format(revenueDayLayout)
				refunds[key] = refunds[key].Add(refunded)
			}
		}
	}

	days := make([]string, 0, len(gross)+len(refunds))
	for day := range gross {
		days = append(days, day)
	}
	for day := range refunds {
		if _, ok := gross[day]; !ok {
			days = append(days, day)
		}
	}
	slices.Sort(days)

	report := RevenueReport{Series: make([]RevenuePoint, 0, len(days))}
	var running int64
	for _, day := range days {
		g, r := gross[day], refunds[day]
		report.Totals.Gross += g
		report.Totals.Refunds += r
		running += int64(g) - int64(r)
		report.Series = append(report.Series, RevenuePoint{
			Date:          day,
			Gross:         g,
			Refunds:       r,
			NetCumulative: running,
		})
	}
	report.Totals.Net = int64(report.Totals.Gross) - int64(report.Totals.Refunds)
	return report
}

// ExcludeLinkedRepairs drops repair records that an order already references through repairId.
func ExcludeLinkedRepairs(records []domain.SaleRecord) []domain.SaleRecord {
	linked := make(map[string]struct{})
	for _, record := range records {
		if record.Kind == domain.SaleKindOrder && strings.TrimSpace(record.RepairRef) != "" {
			linked[strings.TrimSpace(record.RepairRef)] = struct{}{}
		}
	}
	if len(linked) == 0 {
		return records
	}
	out := make([]domain.SaleRecord, 0, len(records))
	for _, record := range records {
		if record.Kind == domain.SaleKindRepair {
			if _, ok := linked[record.ID]; ok {
				continue
			}
		}
		out = append(out, record)
	}
	return out
}

func isPaidRecord(record domain.SaleRecord) bool {
	return domain.ParsePaymentStatus(record.PaymentStatus) == domain.PaymentStatusPaid
}

// refundedAmount returns the explicit refund, or infers the full total for cancelled, refunding
// or refunded records. The result never exceeds the record's total.
func refundedAmount(record domain.SaleRecord) domain.Money {
	total := record.Total.Clamp()
	if record.Refunded != nil {
		return record.Refunded.Min(total)
	}
	if inRefundFlow(record) {
		return total
	}
	return 0
}

func inRefundFlow(record domain.SaleRecord) bool {
	if domain.ParsePaymentStatus(record.PaymentStatus) == domain.PaymentStatusRefunded {
		return true
	}
	status := domain.NormalizeStatusKey(record.Status)
	for _, marker := range []string{"cancel", "refund", "return"} {
		if strings.Contains(status, marker) {
			return true
		}
	}
	return false
}

func firstTime(candidates ...*time.Time) *time.Time {
	for _, candidate := range candidates {
		if candidate != nil && !candidate.IsZero() {
			return candidate
		}
	}
	return nil
}
