package services

import (
	"context"
	"maps"
	"slices"
	"sync"

	domain "github.com/furnitune/api/internal/domain"
	"github.com/furnitune/api/internal/repositories"
)

type fakeOrderRepo struct {
	mu        sync.Mutex
	orders    map[string]domain.Order
	updates   []domain.Order
	updateErr error
	listFn    func(context.Context, repositories.OrderListFilter) (domain.CursorPage[domain.Order], error)
}

func newFakeOrderRepo(orders ...domain.Order) *fakeOrderRepo {
	repo := &fakeOrderRepo{orders: map[string]domain.Order{}}
	for _, order := range orders {
		repo.orders[order.ID] = order
	}
	return repo
}

func (r *fakeOrderRepo) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return domain.Order{}, fakeRepoError{notFound: true}
	}
	return order, nil
}

func (r *fakeOrderRepo) Insert(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[order.ID]; ok {
		return fakeRepoError{conflict: true}
	}
	r.orders[order.ID] = order
	return nil
}

func (r *fakeOrderRepo) Update(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	r.orders[order.ID] = order
	r.updates = append(r.updates, order)
	return nil
}

func (r *fakeOrderRepo) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r.listFn != nil {
		return r.listFn(ctx, filter)
	}
	return domain.CursorPage[domain.Order]{}, nil
}

func (r *fakeOrderRepo) ListAll(context.Context) ([]domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Order, 0, len(r.orders))
	for _, order := range r.orders {
		out = append(out, order)
	}
	slices.SortFunc(out, func(a, b domain.Order) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out, nil
}

type fakeWorkOrderRepo struct {
	records map[domain.SaleKind][]domain.WorkOrder
	listErr error
}

func (r *fakeWorkOrderRepo) FindByID(_ context.Context, kind domain.SaleKind, id string) (domain.WorkOrder, error) {
	for _, record := range r.records[kind] {
		if record.ID == id {
			return record, nil
		}
	}
	return domain.WorkOrder{}, fakeRepoError{notFound: true}
}

func (r *fakeWorkOrderRepo) ListAll(_ context.Context, kind domain.SaleKind) ([]domain.WorkOrder, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	return slices.Clone(r.records[kind]), nil
}

type fakeShipmentRepo struct {
	mu        sync.Mutex
	shipments map[string]domain.Shipment
	events    map[string][]domain.ShipmentEvent
	inserts   int
}

func newFakeShipmentRepo(shipments ...domain.Shipment) *fakeShipmentRepo {
	repo := &fakeShipmentRepo{shipments: map[string]domain.Shipment{}, events: map[string][]domain.ShipmentEvent{}}
	for _, shipment := range shipments {
		repo.shipments[shipment.ID] = shipment
	}
	return repo
}

func (r *fakeShipmentRepo) FindByID(_ context.Context, shipmentID string) (domain.Shipment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	shipment, ok := r.shipments[shipmentID]
	if !ok {
		return domain.Shipment{}, fakeRepoError{notFound: true}
	}
	return shipment, nil
}

func (r *fakeShipmentRepo) FindByOrderID(_ context.Context, orderID string) (domain.Shipment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, shipment := range r.shipments {
		if shipment.OrderID == orderID {
			return shipment, nil
		}
	}
	return domain.Shipment{}, fakeRepoError{notFound: true}
}

func (r *fakeShipmentRepo) Insert(_ context.Context, shipment domain.Shipment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.shipments[shipment.ID]; ok {
		return fakeRepoError{conflict: true}
	}
	r.shipments[shipment.ID] = shipment
	r.inserts++
	return nil
}

func (r *fakeShipmentRepo) Update(_ context.Context, shipment domain.Shipment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	shipment.Events = nil
	r.shipments[shipment.ID] = shipment
	return nil
}

func (r *fakeShipmentRepo) AppendEvent(_ context.Context, event domain.ShipmentEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[event.ShipmentID] = append(r.events[event.ShipmentID], event)
	return nil
}

func (r *fakeShipmentRepo) ListEvents(_ context.Context, shipmentID string) ([]domain.ShipmentEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events[shipmentID]), nil
}

type fakeReturnRepo struct {
	mu       sync.Mutex
	requests map[string]domain.ReturnRequest
}

func newFakeReturnRepo(requests ...domain.ReturnRequest) *fakeReturnRepo {
	repo := &fakeReturnRepo{requests: map[string]domain.ReturnRequest{}}
	for _, request := range requests {
		repo.requests[request.ID] = request
	}
	return repo
}

func (r *fakeReturnRepo) FindByID(_ context.Context, returnID string) (domain.ReturnRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	request, ok := r.requests[returnID]
	if !ok {
		return domain.ReturnRequest{}, fakeRepoError{notFound: true}
	}
	return request, nil
}

func (r *fakeReturnRepo) ListByOrder(_ context.Context, orderID string) ([]domain.ReturnRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ReturnRequest
	for _, request := range r.requests {
		if request.OrderID == orderID {
			out = append(out, request)
		}
	}
	return out, nil
}

func (r *fakeReturnRepo) Insert(_ context.Context, request domain.ReturnRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.requests[request.ID]; ok {
		return fakeRepoError{conflict: true}
	}
	r.requests[request.ID] = request
	return nil
}

func (r *fakeReturnRepo) Update(_ context.Context, request domain.ReturnRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests[request.ID] = request
	return nil
}

type fakeRepoError struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e fakeRepoError) Error() string {
	switch {
	case e.notFound:
		return "not found"
	case e.conflict:
		return "already exists"
	default:
		return "unavailable"
	}
}

func (e fakeRepoError) IsNotFound() bool    { return e.notFound }
func (e fakeRepoError) IsConflict() bool    { return e.conflict }
func (e fakeRepoError) IsUnavailable() bool { return e.unavailable }

// rollbackUnitOfWork discards writes made by fn when it fails, like a Firestore transaction.
type rollbackUnitOfWork struct {
	orders  *fakeOrderRepo
	returns *fakeReturnRepo
	calls   int
}

func (u *rollbackUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	u.calls++
	var (
		orders  map[string]domain.Order
		returns map[string]domain.ReturnRequest
	)
	if u.orders != nil {
		orders = maps.Clone(u.orders.orders)
	}
	if u.returns != nil {
		returns = maps.Clone(u.returns.requests)
	}
	if err := fn(ctx); err != nil {
		if u.orders != nil {
			u.orders.orders = orders
		}
		if u.returns != nil {
			u.returns.requests = returns
		}
		return err
	}
	return nil
}

type captureNotifier struct {
	mu      sync.Mutex
	intents []domain.Notification
}

func (c *captureNotifier) Dispatch(_ context.Context, intents ...domain.Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.intents = append(c.intents, intents...)
}

func (c *captureNotifier) titles() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.intents))
	for _, intent := range c.intents {
		out = append(out, intent.Title)
	}
	return out
}

type recordingEvents struct {
	mu     sync.Mutex
	events []OrderEvent
	err    error
}

func (r *recordingEvents) PublishOrderEvent(_ context.Context, event OrderEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return r.err
}

type countingInvalidator struct {
	calls int
}

func (c *countingInvalidator) Invalidate(context.Context) error {
	c.calls++
	return nil
}

type stubSigner struct {
	uploads   []string
	downloads []string
	err       error
}

func (s *stubSigner) SignUpload(_ context.Context, bucket, object, contentType string) (SignedUpload, error) {
	if s.err != nil {
		return SignedUpload{}, s.err
	}
	s.uploads = append(s.uploads, object)
	return SignedUpload{URL: "https://storage.example/" + bucket + "/" + object, Method: "PUT", Headers: map[string]string{"Content-Type": contentType}}, nil
}

func (s *stubSigner) SignDownload(_ context.Context, bucket, object, _ string) (SignedUpload, error) {
	if s.err != nil {
		return SignedUpload{}, s.err
	}
	s.downloads = append(s.downloads, object)
	return SignedUpload{URL: "https://storage.example/" + bucket + "/" + object, Method: "GET"}, nil
}

type stubObjects struct {
	existing map[string]bool
}

func (s *stubObjects) Exists(_ context.Context, _ string, object string) (bool, error) {
	return s.existing[object], nil
}

type logRecorder struct {
	mu     sync.Mutex
	events []string
}

func (l *logRecorder) log(_ context.Context, event string, _ map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *logRecorder) has(event string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Contains(l.events, event)
}

func int64Ptr(v int64) *int64 {
	return &v
}

var (
	_ repositories.OrderRepository     = (*fakeOrderRepo)(nil)
	_ repositories.WorkOrderRepository = (*fakeWorkOrderRepo)(nil)
	_ repositories.ShipmentRepository  = (*fakeShipmentRepo)(nil)
	_ repositories.ReturnRepository    = (*fakeReturnRepo)(nil)
	_ repositories.RepositoryError     = fakeRepoError{}
	_ repositories.UnitOfWork          = (*rollbackUnitOfWork)(nil)
)
