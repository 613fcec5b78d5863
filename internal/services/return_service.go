package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	domain "github.com/furnitune/api/internal/domain"
	"github.com/furnitune/api/internal/platform/storage"
	"github.com/furnitune/api/internal/repositories"
)

const (
	returnEntity      = "return"
	returnMachineName = "return"

	returnEventApprove = "Approve"
	returnEventReject  = "Reject"
	returnEventReceive = "MarkReceived"
	returnEventRefund  = "IssueRefund"

	defaultRefundMethod = string(domain.RefundChannelGCash)
)

var returnTransitions = map[domain.ReturnStatus][]domain.ReturnStatus{
	domain.ReturnStatusRequested: {domain.ReturnStatusApproved, domain.ReturnStatusRejected},
	domain.ReturnStatusApproved:  {domain.ReturnStatusReceived, domain.ReturnStatusRefundIssued},
	domain.ReturnStatusReceived:  {domain.ReturnStatusRefundIssued},
}

// CanTransitionReturn reports whether a return request may move from -> to.
func CanTransitionReturn(from, to domain.ReturnStatus) bool {
	return slices.Contains(returnTransitions[from], to)
}

// ReturnServiceDeps bundles collaborators required by the return service.
type ReturnServiceDeps struct {
	Orders      repositories.OrderRepository
	Returns     repositories.ReturnRepository
	WorkOrders  repositories.WorkOrderRepository
	Shipments   repositories.ShipmentRepository
	UnitOfWork  repositories.UnitOfWork
	Policy      ReturnPolicy
	Signer      UploadSigner
	Bucket      string
	Clock       func() time.Time
	IDGenerator func() string
	Notifier    NotificationDispatcher
	Events      OrderEventPublisher
	Revenue     RevenueCacheInvalidator
	Logger      Logger
}

type returnService struct {
	orders     repositories.OrderRepository
	returns    repositories.ReturnRepository
	workOrders repositories.WorkOrderRepository
	shipments  repositories.ShipmentRepository
	unitOfWork repositories.UnitOfWork
	policy     ReturnPolicy
	signer     UploadSigner
	bucket     string
	clock      func() time.Time
	newID      func() string
	notifier   NotificationDispatcher
	events     OrderEventPublisher
	revenue    RevenueCacheInvalidator
	logger     Logger
}

// NewReturnService constructs the return request service.
func NewReturnService(deps ReturnServiceDeps) (ReturnService, error) {
	if deps.Orders == nil {
		return nil, errors.New("return service: order repository is required")
	}
	if deps.Returns == nil {
		return nil, errors.New("return service: return repository is required")
	}
	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = defaultIDGenerator
	}
	logger := deps.Logger
	if logger == nil {
		logger = nopLogger
	}
	policy := deps.Policy
	if policy.DefaultWindowDays <= 0 {
		policy.DefaultWindowDays = DefaultReturnWindowDays
	}
	return &returnService{
		orders:     deps.Orders,
		returns:    deps.Returns,
		workOrders: deps.WorkOrders,
		shipments:  deps.Shipments,
		unitOfWork: unit,
		policy:     policy,
		signer:     deps.Signer,
		bucket:     strings.TrimSpace(deps.Bucket),
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:    idGen,
		notifier: deps.Notifier,
		events:   deps.Events,
		revenue:  deps.Revenue,
		logger:   logger,
	}, nil
}

func (s *returnService) Evaluate(ctx context.Context, query GetOrderQuery) (ReturnEligibility, error) {
	orderID, err := requireID("orderId", query.OrderID)
	if err != nil {
		return ReturnEligibility{}, err
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return ReturnEligibility{}, mapRepositoryError(orderEntity, orderID, err)
	}
	if !ownsOrder(order, query.UserID) {
		return ReturnEligibility{}, domain.NewNotFoundError(orderEntity, orderID)
	}
	existing, err := s.returns.ListByOrder(ctx, orderID)
	if err != nil {
		return ReturnEligibility{}, mapRepositoryError(returnEntity, orderID, err)
	}
	return s.policy.Evaluate(order, existing, s.clock()), nil
}

// IssuePhotoUploadURL signs an upload for the optional return photo. The order must currently
// accept a return request.
func (s *returnService) IssuePhotoUploadURL(ctx context.Context, cmd ReturnPhotoUploadCommand) (SignedUpload, error) {
	if s.signer == nil || s.bucket == "" {
		return SignedUpload{}, errors.New("return service: photo uploads are not configured")
	}
	userID, err := requireID("userId", cmd.UserID)
	if err != nil {
		return SignedUpload{}, err
	}
	eligibility, err := s.Evaluate(ctx, GetOrderQuery{OrderID: cmd.OrderID, UserID: userID})
	if err != nil {
		return SignedUpload{}, err
	}
	if !eligibility.Allowed {
		return SignedUpload{}, domain.NewValidationError("order", eligibility.Reason)
	}
	path, err := storage.BuildObjectPath(storage.PurposeReturnPhoto, storage.PathParams{
		OrderID:   strings.TrimSpace(cmd.OrderID),
		UserID:    userID,
		Timestamp: s.clock().UnixMilli(),
		FileName:  cmd.FileName,
	})
	if err != nil {
		return SignedUpload{}, domain.NewValidationError("fileName", err.Error())
	}
	signed, err := s.signer.SignUpload(ctx, s.bucket, path, strings.TrimSpace(cmd.ContentType))
	if err != nil {
		return SignedUpload{}, err
	}
	signed.ObjectPath = path
	return signed, nil
}

// Submit files a return request and locks the order against further requests in one transaction.
func (s *returnService) Submit(ctx context.Context, cmd SubmitReturnCommand) (result ReturnRequest, err error) {
	orderID, err := requireID("orderId", cmd.OrderID)
	if err != nil {
		return ReturnRequest{}, err
	}
	userID, err := requireID("userId", cmd.UserID)
	if err != nil {
		return ReturnRequest{}, err
	}
	payload := cmd.Payload
	payload.Details = sanitizeFreeText(payload.Details)
	payload.PhotoPath = strings.TrimSpace(payload.PhotoPath)
	if payload.PhotoPath != "" && !storage.OwnsReturnPhotoPath(payload.PhotoPath, userID, orderID) {
		return ReturnRequest{}, domain.NewValidationError("photoPath", "Photo does not belong to this order")
	}

	ctx, span := startSpan(ctx, "ReturnService.Submit", attribute.String("order.id", orderID))
	defer func() { endSpan(span, err) }()

	now := s.clock()
	err = s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		order, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return mapRepositoryError(orderEntity, orderID, err)
		}
		if order.UserID != userID {
			return domain.NewNotFoundError(orderEntity, orderID)
		}
		existing, err := s.returns.ListByOrder(txCtx, orderID)
		if err != nil {
			return mapRepositoryError(returnEntity, orderID, err)
		}
		request, err := s.policy.SubmitReturnRequest(order, existing, payload, now)
		if err != nil {
			return err
		}
		request.ID = returnIDPrefix + s.newID()
		request.Version = 1
		if err := s.returns.Insert(txCtx, request); err != nil {
			return mapRepositoryError(returnEntity, request.ID, err)
		}
		order.ReturnLocked = true
		order.UpdatedAt = now
		order.Version++
		if err := s.orders.Update(txCtx, order); err != nil {
			return mapRepositoryError(orderEntity, orderID, err)
		}
		result = request
		return nil
	})
	if err != nil {
		return ReturnRequest{}, mapRepositoryError(orderEntity, orderID, err)
	}

	recordTransition(ctx, returnMachineName, "", string(result.Status))
	s.logger(ctx, "return.submitted", map[string]any{
		"returnId":  result.ID,
		"orderId":   orderID,
		"reason":    result.ReasonCode,
		"requested": result.RequestedAmount.Int64(),
		"items":     len(result.Items),
	})
	s.notify(ctx, result, fmt.Sprintf("Return requested for %s", shortID(orderID)),
		"We received your return request and will review it shortly.")
	return result, nil
}

func (s *returnService) Get(ctx context.Context, returnID string) (ReturnRequest, error) {
	id, err := requireID("returnId", returnID)
	if err != nil {
		return ReturnRequest{}, err
	}
	request, err := s.returns.FindByID(ctx, id)
	if err != nil {
		return ReturnRequest{}, mapRepositoryError(returnEntity, id, err)
	}
	return request, nil
}

func (s *returnService) Approve(ctx context.Context, cmd ReturnDecisionCommand) (ReturnRequest, error) {
	updated, err := s.decide(ctx, cmd, domain.ReturnStatusApproved, returnEventApprove, func(r *domain.ReturnRequest, now time.Time) {
		r.DecidedAt = timePtr(now)
		r.DecidedBy = strings.TrimSpace(cmd.ActorID)
	})
	if err != nil {
		return ReturnRequest{}, err
	}
	s.notify(ctx, updated, fmt.Sprintf("Return approved for %s", shortID(updated.OrderID)),
		"Your return was approved. Please send the items back.")
	return updated, nil
}

func (s *returnService) Reject(ctx context.Context, cmd ReturnDecisionCommand) (ReturnRequest, error) {
	reason := sanitizeFreeText(cmd.Reason)
	if reason == "" {
		return ReturnRequest{}, domain.NewValidationError("reason", "Rejection reason is required")
	}
	updated, err := s.decide(ctx, cmd, domain.ReturnStatusRejected, returnEventReject, func(r *domain.ReturnRequest, now time.Time) {
		r.DecidedAt = timePtr(now)
		r.DecidedBy = strings.TrimSpace(cmd.ActorID)
		r.RejectionReason = reason
	})
	if err != nil {
		return ReturnRequest{}, err
	}
	s.notify(ctx, updated, fmt.Sprintf("Return rejected for %s", shortID(updated.OrderID)),
		"Your return request was rejected. Reason: "+reason)
	return updated, nil
}

func (s *returnService) MarkReceived(ctx context.Context, cmd ReturnDecisionCommand) (ReturnRequest, error) {
	updated, err := s.decide(ctx, cmd, domain.ReturnStatusReceived, returnEventReceive, func(r *domain.ReturnRequest, now time.Time) {
		r.ReceivedAt = timePtr(now)
	})
	if err != nil {
		return ReturnRequest{}, err
	}
	s.notify(ctx, updated, fmt.Sprintf("Return received for %s", shortID(updated.OrderID)),
		"We received your returned items. Your refund is being processed.")
	return updated, nil
}

func (s *returnService) decide(ctx context.Context, cmd ReturnDecisionCommand, to domain.ReturnStatus, event string, mutate func(*domain.ReturnRequest, time.Time)) (ReturnRequest, error) {
	returnID, err := requireID("returnId", cmd.ReturnID)
	if err != nil {
		return ReturnRequest{}, err
	}
	now := s.clock()
	var (
		from    domain.ReturnStatus
		updated domain.ReturnRequest
	)
	err = s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		current, err := s.returns.FindByID(txCtx, returnID)
		if err != nil {
			return mapRepositoryError(returnEntity, returnID, err)
		}
		if err := checkVersion(returnEntity, returnID, cmd.ExpectedVersion, current.Version); err != nil {
			return err
		}
		if !CanTransitionReturn(current.Status, to) {
			return domain.NewTransitionError(returnMachineName, string(current.Status), event)
		}
		next := current
		next.Status = to
		next.UpdatedAt = now
		next.Version = current.Version + 1
		mutate(&next, now)
		if err := s.returns.Update(txCtx, next); err != nil {
			return mapRepositoryError(returnEntity, returnID, err)
		}
		from = current.Status
		updated = next
		return nil
	})
	if err != nil {
		return ReturnRequest{}, mapRepositoryError(returnEntity, returnID, err)
	}
	recordTransition(ctx, returnMachineName, string(from), string(to))
	s.logger(ctx, "return.decided", map[string]any{
		"returnId": returnID,
		"orderId":  updated.OrderID,
		"from":     string(from),
		"to":       string(to),
		"actorId":  cmd.ActorID,
		"version":  updated.Version,
	})
	return updated, nil
}

// IssueRefund moves the return to refund_issued and applies the matching RefundIssued payment
// event to the order in the same transaction. The refund is capped at what the customer has paid.
func (s *returnService) IssueRefund(ctx context.Context, cmd ReturnRefundCommand) (result ReturnRefundResult, err error) {
	returnID, err := requireID("returnId", cmd.ReturnID)
	if err != nil {
		return ReturnRefundResult{}, err
	}
	if cmd.Amount != nil && *cmd.Amount <= 0 {
		return ReturnRefundResult{}, domain.NewValidationError("amount", "Refund amount must be greater than zero")
	}
	method := strings.TrimSpace(cmd.Method)
	if method == "" {
		method = defaultRefundMethod
	}

	ctx, span := startSpan(ctx, "ReturnService.IssueRefund", attribute.String("return.id", returnID))
	defer func() { endSpan(span, err) }()

	now := s.clock()
	var (
		from       domain.ReturnStatus
		updated    domain.ReturnRequest
		transition PaymentTransition
	)
	err = s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		current, err := s.returns.FindByID(txCtx, returnID)
		if err != nil {
			return mapRepositoryError(returnEntity, returnID, err)
		}
		if err := checkVersion(returnEntity, returnID, cmd.ExpectedVersion, current.Version); err != nil {
			return err
		}
		if !CanTransitionReturn(current.Status, domain.ReturnStatusRefundIssued) {
			return domain.NewTransitionError(returnMachineName, string(current.Status), returnEventRefund)
		}
		order, err := s.orders.FindByID(txCtx, current.OrderID)
		if err != nil {
			return mapRepositoryError(orderEntity, current.OrderID, err)
		}

		amount := current.RequestedAmount
		if cmd.Amount != nil {
			amount = *cmd.Amount
		}
		next, err := ApplyPaymentEvent(order, RefundIssued{Amount: amount, Reason: "return " + current.ID}, now)
		if err != nil {
			return err
		}
		next.Order.Version = order.Version + 1

		refunded := current
		refunded.Status = domain.ReturnStatusRefundIssued
		refunded.RefundAmount = next.Applied
		refunded.RefundMethod = method
		refunded.RefundedAt = timePtr(now)
		if refunded.DecidedBy == "" {
			refunded.DecidedBy = strings.TrimSpace(cmd.ActorID)
		}
		refunded.UpdatedAt = now
		refunded.Version = current.Version + 1

		if err := s.returns.Update(txCtx, refunded); err != nil {
			return mapRepositoryError(returnEntity, returnID, err)
		}
		if err := s.orders.Update(txCtx, next.Order); err != nil {
			return mapRepositoryError(orderEntity, order.ID, err)
		}
		from = current.Status
		updated = refunded
		transition = next
		return nil
	})
	if err != nil {
		return ReturnRefundResult{}, mapRepositoryError(returnEntity, returnID, err)
	}

	order := transition.Order
	recordTransition(ctx, returnMachineName, string(from), string(updated.Status))
	recordTransition(ctx, paymentMachineName, string(transition.Previous), string(order.PaymentStatus))
	s.logger(ctx, "return.refund_issued", map[string]any{
		"returnId": returnID,
		"orderId":  order.ID,
		"amount":   updated.RefundAmount.Int64(),
		"method":   method,
		"netPaid":  transition.Ledger.NetPaid.Int64(),
		"status":   string(order.PaymentStatus),
		"actorId":  cmd.ActorID,
	})
	if s.notifier != nil && len(transition.Notifications) > 0 {
		s.notifier.Dispatch(ctx, transition.Notifications...)
	}
	publishOrderEvent(ctx, s.events, s.logger, OrderEvent{
		Type:                  orderEventRefunded,
		OrderID:               order.ID,
		UserID:                order.UserID,
		PreviousPaymentStatus: string(transition.Previous),
		PaymentStatus:         string(order.PaymentStatus),
		ActorID:               cmd.ActorID,
		Version:               order.Version,
		OccurredAt:            now,
		Metadata: map[string]any{
			"returnId": returnID,
			"amount":   updated.RefundAmount.Int64(),
			"method":   method,
		},
	})
	invalidateRevenue(ctx, s.revenue, s.logger)

	return ReturnRefundResult{
		Return: updated,
		Order:  buildOrderView(ctx, order, s.workOrders, s.shipments, s.logger),
	}, nil
}

func (s *returnService) notify(ctx context.Context, request ReturnRequest, title, body string) {
	if s.notifier == nil {
		return
	}
	order := domain.Order{ID: request.OrderID, UserID: request.UserID}
	s.notifier.Dispatch(ctx, orderNotification(order, notificationTypeReturn, title, body))
}
