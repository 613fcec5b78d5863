package services

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	domain "github.com/furnitune/api/internal/domain"
)

const (
	notificationTypeOrderStatus  = "order_status"
	notificationTypeRepairStatus = "repair_status"
	notificationTypeShipment     = "shipment_status"
	notificationTypeReturn       = "return_status"

	orderSummaryLinkPrefix = "/ordersummary?orderId="
	pesoSign               = "₱"
)

var amountPrinter = message.NewPrinter(language.English)

// formatAmount renders minor units as a peso amount with grouping, e.g. ₱1,250.00.
func formatAmount(amount domain.Money) string {
	major := amount.Clamp().Decimal().InexactFloat64()
	return pesoSign + amountPrinter.Sprint(number.Decimal(major, number.Scale(2)))
}

func shortID(id string) string {
	id = strings.TrimSpace(id)
	if i := strings.IndexByte(id, '_'); i >= 0 && i < len(id)-1 {
		id = id[i+1:]
	}
	if len(id) <= 6 {
		return id
	}
	return id[:6]
}

func orderLink(orderID string) string {
	return orderSummaryLinkPrefix + orderID
}

func orderNotification(order domain.Order, kind, title, body string) domain.Notification {
	if kind == "" {
		kind = notificationTypeOrderStatus
		if order.RepairID != "" {
			kind = notificationTypeRepairStatus
		}
	}
	return domain.Notification{
		UserID:  order.UserID,
		Type:    kind,
		OrderID: order.ID,
		Title:   title,
		Body:    body,
		Link:    orderLink(order.ID),
	}
}
