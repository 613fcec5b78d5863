package services

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	domain "github.com/furnitune/api/internal/domain"
	"github.com/furnitune/api/internal/platform/storage"
	"github.com/furnitune/api/internal/repositories"
)

// PaymentProofServiceDeps bundles collaborators for payment proof uploads.
type PaymentProofServiceDeps struct {
	Orders      repositories.OrderRepository
	WorkOrders  repositories.WorkOrderRepository
	Shipments   repositories.ShipmentRepository
	UnitOfWork  repositories.UnitOfWork
	Signer      UploadSigner
	Objects     ObjectChecker
	Bucket      string
	Clock       func() time.Time
	IDGenerator func() string
	Events      OrderEventPublisher
	Logger      Logger
}

type paymentProofService struct {
	orders     repositories.OrderRepository
	workOrders repositories.WorkOrderRepository
	shipments  repositories.ShipmentRepository
	unitOfWork repositories.UnitOfWork
	signer     UploadSigner
	objects    ObjectChecker
	bucket     string
	clock      func() time.Time
	newID      func() string
	events     OrderEventPublisher
	logger     Logger
}

// NewPaymentProofService constructs the payment proof service.
func NewPaymentProofService(deps PaymentProofServiceDeps) (PaymentProofService, error) {
	if deps.Orders == nil {
		return nil, errors.New("payment proof service: order repository is required")
	}
	if deps.Signer == nil {
		return nil, errors.New("payment proof service: upload signer is required")
	}
	if deps.Objects == nil {
		return nil, errors.New("payment proof service: object checker is required")
	}
	bucket := strings.TrimSpace(deps.Bucket)
	if bucket == "" {
		return nil, errors.New("payment proof service: bucket is required")
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
	return &paymentProofService{
		orders:     deps.Orders,
		workOrders: deps.WorkOrders,
		shipments:  deps.Shipments,
		unitOfWork: unit,
		signer:     deps.Signer,
		objects:    deps.Objects,
		bucket:     bucket,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		events: deps.Events,
		logger: logger,
	}, nil
}

func (s *paymentProofService) IssueUploadURL(ctx context.Context, cmd ProofUploadCommand) (SignedUpload, error) {
	order, err := s.loadOwnedOrder(ctx, cmd.OrderID, cmd.UserID)
	if err != nil {
		return SignedUpload{}, err
	}
	kind := strings.TrimSpace(cmd.Kind)
	if err := proofAcceptedFor(order, kind); err != nil {
		return SignedUpload{}, err
	}
	path, err := storage.BuildObjectPath(storage.PurposePaymentProof, storage.PathParams{
		OrderID:  order.ID,
		Kind:     kind,
		UploadID: s.newID(),
		FileName: cmd.FileName,
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

// ConfirmProof records an uploaded proof and flags the order for staff review. Staff acceptance
// is a separate payment event.
func (s *paymentProofService) ConfirmProof(ctx context.Context, cmd ConfirmProofCommand) (OrderView, error) {
	orderID, err := requireID("orderId", cmd.OrderID)
	if err != nil {
		return OrderView{}, err
	}
	kind := strings.TrimSpace(cmd.Kind)
	objectPath := strings.TrimSpace(cmd.ObjectPath)
	if !storage.OwnsPaymentProofPath(objectPath, orderID, kind) {
		return OrderView{}, domain.NewValidationError("objectPath", "Proof does not belong to this order")
	}
	exists, err := s.objects.Exists(ctx, s.bucket, objectPath)
	if err != nil {
		return OrderView{}, err
	}
	if !exists {
		return OrderView{}, domain.NewValidationError("objectPath", "Proof upload was not found")
	}

	now := s.clock()
	var updated domain.Order
	err = s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		order, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return mapRepositoryError(orderEntity, orderID, err)
		}
		if !ownsOrder(order, cmd.UserID) {
			return domain.NewNotFoundError(orderEntity, orderID)
		}
		if err := proofAcceptedFor(order, kind); err != nil {
			return err
		}
		next := order
		switch kind {
		case storage.ProofKindDeposit:
			next.Proofs.DepositPath = objectPath
		case storage.ProofKindAdditional:
			next.Proofs.AdditionalPaths = append(append([]string(nil), order.Proofs.AdditionalPaths...), objectPath)
		}
		next.Proofs.PendingReview = true
		next.Proofs.LastUploadedAt = timePtr(now)
		next.UpdatedAt = now
		next.Version = order.Version + 1
		if err := s.orders.Update(txCtx, next); err != nil {
			return mapRepositoryError(orderEntity, orderID, err)
		}
		updated = next
		return nil
	})
	if err != nil {
		return OrderView{}, mapRepositoryError(orderEntity, orderID, err)
	}

	s.logger(ctx, "order.payment_proof.recorded", map[string]any{
		"orderId": orderID,
		"kind":    kind,
		"path":    objectPath,
	})
	publishOrderEvent(ctx, s.events, s.logger, OrderEvent{
		Type:          orderEventProofUploaded,
		OrderID:       updated.ID,
		UserID:        updated.UserID,
		PaymentStatus: string(updated.PaymentStatus),
		ActorID:       cmd.UserID,
		Version:       updated.Version,
		OccurredAt:    now,
		Metadata:      map[string]any{"kind": kind, "path": objectPath},
	})
	return buildOrderView(ctx, updated, s.workOrders, s.shipments, s.logger), nil
}

// DownloadURL signs a short-lived link to a recorded proof for the owner or staff.
func (s *paymentProofService) DownloadURL(ctx context.Context, cmd ProofDownloadCommand) (SignedUpload, error) {
	orderID, err := requireID("orderId", cmd.OrderID)
	if err != nil {
		return SignedUpload{}, err
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return SignedUpload{}, mapRepositoryError(orderEntity, orderID, err)
	}
	if !cmd.Staff && order.UserID != strings.TrimSpace(cmd.ActorID) {
		return SignedUpload{}, domain.NewNotFoundError(orderEntity, orderID)
	}
	objectPath := strings.TrimSpace(cmd.ObjectPath)
	recorded := objectPath != "" && (objectPath == order.Proofs.DepositPath || slices.Contains(order.Proofs.AdditionalPaths, objectPath))
	if !recorded {
		return SignedUpload{}, domain.NewNotFoundError("payment proof", objectPath)
	}
	signed, err := s.signer.SignDownload(ctx, s.bucket, objectPath, order.UserID)
	if err != nil {
		return SignedUpload{}, err
	}
	signed.ObjectPath = objectPath
	return signed, nil
}

func (s *paymentProofService) loadOwnedOrder(ctx context.Context, rawID, userID string) (domain.Order, error) {
	orderID, err := requireID("orderId", rawID)
	if err != nil {
		return domain.Order{}, err
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, mapRepositoryError(orderEntity, orderID, err)
	}
	if !ownsOrder(order, userID) {
		return domain.Order{}, domain.NewNotFoundError(orderEntity, orderID)
	}
	return order, nil
}

// proofAcceptedFor checks the order is in a state that expects the given proof kind.
func proofAcceptedFor(order domain.Order, kind string) error {
	switch kind {
	case storage.ProofKindDeposit:
		if order.PaymentStatus != domain.PaymentStatusPending {
			return domain.NewTransitionError(paymentMachineName, string(order.PaymentStatus), "DepositProofUploaded")
		}
	case storage.ProofKindAdditional:
		switch order.PaymentStatus {
		case domain.PaymentStatusDepositPaid, domain.PaymentStatusAwaitingAdditionalPayment:
		default:
			return domain.NewTransitionError(paymentMachineName, string(order.PaymentStatus), "AdditionalProofUploaded")
		}
	default:
		return domain.NewValidationError("kind", "Proof kind must be deposit or additional")
	}
	return nil
}
