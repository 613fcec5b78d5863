package handlers

import (
	"context"
	"errors"
	"net/http"

	domain "github.com/furnitune/api/internal/domain"
	"github.com/furnitune/api/internal/platform/auth"
	"github.com/furnitune/api/internal/services"
)

var errStubNotImplemented = errors.New("not implemented")

type stubLedgerService struct {
	getFn    func(context.Context, services.GetOrderQuery) (services.OrderView, error)
	listFn   func(context.Context, services.OrderListFilter) (domain.CursorPage[services.OrderView], error)
	applyFn  func(context.Context, services.PaymentEventCommand) (services.OrderView, error)
	cancelFn func(context.Context, services.CancelOrderCommand) (services.OrderView, error)
}

func (s *stubLedgerService) GetOrder(ctx context.Context, query services.GetOrderQuery) (services.OrderView, error) {
	if s.getFn != nil {
		return s.getFn(ctx, query)
	}
	return services.OrderView{}, errStubNotImplemented
}

func (s *stubLedgerService) ListOrders(ctx context.Context, filter services.OrderListFilter) (domain.CursorPage[services.OrderView], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[services.OrderView]{}, nil
}

func (s *stubLedgerService) ApplyPaymentEvent(ctx context.Context, cmd services.PaymentEventCommand) (services.OrderView, error) {
	if s.applyFn != nil {
		return s.applyFn(ctx, cmd)
	}
	return services.OrderView{}, errStubNotImplemented
}

func (s *stubLedgerService) Cancel(ctx context.Context, cmd services.CancelOrderCommand) (services.OrderView, error) {
	if s.cancelFn != nil {
		return s.cancelFn(ctx, cmd)
	}
	return services.OrderView{}, errStubNotImplemented
}

type stubProofService struct {
	uploadFn   func(context.Context, services.ProofUploadCommand) (services.SignedUpload, error)
	confirmFn  func(context.Context, services.ConfirmProofCommand) (services.OrderView, error)
	downloadFn func(context.Context, services.ProofDownloadCommand) (services.SignedUpload, error)
}

func (s *stubProofService) IssueUploadURL(ctx context.Context, cmd services.ProofUploadCommand) (services.SignedUpload, error) {
	if s.uploadFn != nil {
		return s.uploadFn(ctx, cmd)
	}
	return services.SignedUpload{}, errStubNotImplemented
}

func (s *stubProofService) ConfirmProof(ctx context.Context, cmd services.ConfirmProofCommand) (services.OrderView, error) {
	if s.confirmFn != nil {
		return s.confirmFn(ctx, cmd)
	}
	return services.OrderView{}, errStubNotImplemented
}

func (s *stubProofService) DownloadURL(ctx context.Context, cmd services.ProofDownloadCommand) (services.SignedUpload, error) {
	if s.downloadFn != nil {
		return s.downloadFn(ctx, cmd)
	}
	return services.SignedUpload{}, errStubNotImplemented
}

type stubShipmentService struct {
	ensureFn     func(context.Context, services.EnsureShipmentCommand) (services.Shipment, error)
	transitionFn func(context.Context, services.ShipmentTransitionCommand) (services.Shipment, error)
	getFn        func(context.Context, string) (services.Shipment, error)
	forOrderFn   func(context.Context, services.GetOrderQuery) (services.Shipment, error)
}

func (s *stubShipmentService) EnsureForOrder(ctx context.Context, cmd services.EnsureShipmentCommand) (services.Shipment, error) {
	if s.ensureFn != nil {
		return s.ensureFn(ctx, cmd)
	}
	return services.Shipment{}, errStubNotImplemented
}

func (s *stubShipmentService) Transition(ctx context.Context, cmd services.ShipmentTransitionCommand) (services.Shipment, error) {
	if s.transitionFn != nil {
		return s.transitionFn(ctx, cmd)
	}
	return services.Shipment{}, errStubNotImplemented
}

func (s *stubShipmentService) Get(ctx context.Context, shipmentID string) (services.Shipment, error) {
	if s.getFn != nil {
		return s.getFn(ctx, shipmentID)
	}
	return services.Shipment{}, errStubNotImplemented
}

func (s *stubShipmentService) GetForOrder(ctx context.Context, query services.GetOrderQuery) (services.Shipment, error) {
	if s.forOrderFn != nil {
		return s.forOrderFn(ctx, query)
	}
	return services.Shipment{}, errStubNotImplemented
}

type stubReturnService struct {
	evaluateFn func(context.Context, services.GetOrderQuery) (services.ReturnEligibility, error)
	photoFn    func(context.Context, services.ReturnPhotoUploadCommand) (services.SignedUpload, error)
	submitFn   func(context.Context, services.SubmitReturnCommand) (services.ReturnRequest, error)
	getFn      func(context.Context, string) (services.ReturnRequest, error)
	approveFn  func(context.Context, services.ReturnDecisionCommand) (services.ReturnRequest, error)
	rejectFn   func(context.Context, services.ReturnDecisionCommand) (services.ReturnRequest, error)
	receiveFn  func(context.Context, services.ReturnDecisionCommand) (services.ReturnRequest, error)
	refundFn   func(context.Context, services.ReturnRefundCommand) (services.ReturnRefundResult, error)
}

func (s *stubReturnService) Evaluate(ctx context.Context, query services.GetOrderQuery) (services.ReturnEligibility, error) {
	if s.evaluateFn != nil {
		return s.evaluateFn(ctx, query)
	}
	return services.ReturnEligibility{}, errStubNotImplemented
}

func (s *stubReturnService) IssuePhotoUploadURL(ctx context.Context, cmd services.ReturnPhotoUploadCommand) (services.SignedUpload, error) {
	if s.photoFn != nil {
		return s.photoFn(ctx, cmd)
	}
	return services.SignedUpload{}, errStubNotImplemented
}

func (s *stubReturnService) Submit(ctx context.Context, cmd services.SubmitReturnCommand) (services.ReturnRequest, error) {
	if s.submitFn != nil {
		return s.submitFn(ctx, cmd)
	}
	return services.ReturnRequest{}, errStubNotImplemented
}

func (s *stubReturnService) Get(ctx context.Context, returnID string) (services.ReturnRequest, error) {
	if s.getFn != nil {
		return s.getFn(ctx, returnID)
	}
	return services.ReturnRequest{}, errStubNotImplemented
}

func (s *stubReturnService) Approve(ctx context.Context, cmd services.ReturnDecisionCommand) (services.ReturnRequest, error) {
	if s.approveFn != nil {
		return s.approveFn(ctx, cmd)
	}
	return services.ReturnRequest{}, errStubNotImplemented
}

func (s *stubReturnService) Reject(ctx context.Context, cmd services.ReturnDecisionCommand) (services.ReturnRequest, error) {
	if s.rejectFn != nil {
		return s.rejectFn(ctx, cmd)
	}
	return services.ReturnRequest{}, errStubNotImplemented
}

func (s *stubReturnService) MarkReceived(ctx context.Context, cmd services.ReturnDecisionCommand) (services.ReturnRequest, error) {
	if s.receiveFn != nil {
		return s.receiveFn(ctx, cmd)
	}
	return services.ReturnRequest{}, errStubNotImplemented
}

func (s *stubReturnService) IssueRefund(ctx context.Context, cmd services.ReturnRefundCommand) (services.ReturnRefundResult, error) {
	if s.refundFn != nil {
		return s.refundFn(ctx, cmd)
	}
	return services.ReturnRefundResult{}, errStubNotImplemented
}

type stubRevenueService struct {
	reportFn     func(context.Context, services.RevenueQuery) (services.RevenueSummary, error)
	invalidateFn func(context.Context) error
}

func (s *stubRevenueService) Report(ctx context.Context, query services.RevenueQuery) (services.RevenueSummary, error) {
	if s.reportFn != nil {
		return s.reportFn(ctx, query)
	}
	return services.RevenueSummary{}, errStubNotImplemented
}

func (s *stubRevenueService) Invalidate(ctx context.Context) error {
	if s.invalidateFn != nil {
		return s.invalidateFn(ctx)
	}
	return nil
}

func withIdentity(req *http.Request, uid string, roles ...string) *http.Request {
	return req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: uid, Roles: roles}))
}

var (
	_ services.OrderLedgerService  = (*stubLedgerService)(nil)
	_ services.PaymentProofService = (*stubProofService)(nil)
	_ services.ShipmentService     = (*stubShipmentService)(nil)
	_ services.ReturnService       = (*stubReturnService)(nil)
	_ services.RevenueService      = (*stubRevenueService)(nil)
)
