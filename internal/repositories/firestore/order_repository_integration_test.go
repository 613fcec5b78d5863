//go:build integration

package firestore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"

	domain "github.com/furnitune/api/internal/domain"
	pconfig "github.com/furnitune/api/internal/platform/config"
	pfirestore "github.com/furnitune/api/internal/platform/firestore"
	"github.com/furnitune/api/internal/repositories"
)

func TestOrderLedgerRepositoriesIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test skipped in short mode")
	}
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available: " + err.Error())
	}

	ensureDockerDaemon(t)

	port := freePort(t)
	endpoint := fmt.Sprintf("127.0.0.1:%d", port)
	containerID := startFirestoreEmulator(t, port)
	t.Cleanup(func() { stopContainer(containerID) })

	waitForEndpoint(t, endpoint, 30*time.Second)

	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{
		ProjectID:    "furnitune-test",
		EmulatorHost: endpoint,
	})
	registry, err := NewRegistry(provider)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	t.Cleanup(func() { _ = registry.Close(context.Background()) })

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	created := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)
	order := domain.Order{
		ID:            "ord_integration1",
		UserID:        "user-1",
		Origin:        domain.OriginCatalog,
		Status:        "processing",
		PaymentStatus: domain.PaymentStatusDepositPaid,
		Items:         []domain.OrderItem{{ProductRef: "sofa-01", Name: "Sofa", Quantity: 1, UnitPrice: 15000}},
		Total:         15000,
		AssessedTotal: domain.MoneyPtr(15000),
		Deposit:       5000,
		Version:       1,
		CreatedAt:     created,
		UpdatedAt:     created,
	}
	if err := registry.Orders().Insert(ctx, order); err != nil {
		t.Fatalf("insert order: %v", err)
	}

	err = registry.Orders().Insert(ctx, order)
	var repoErr repositories.RepositoryError
	if !errors.As(err, &repoErr) || !repoErr.IsConflict() {
		t.Fatalf("expected conflict on duplicate insert, got %v", err)
	}

	loaded, err := registry.Orders().FindByID(ctx, order.ID)
	if err != nil {
		t.Fatalf("find order: %v", err)
	}
	if loaded.AssessedTotal == nil || *loaded.AssessedTotal != 15000 || loaded.Deposit != 5000 {
		t.Fatalf("unexpected ledger fields: %+v", loaded)
	}

	_, err = registry.Orders().FindByID(ctx, "ord_missing")
	if !errors.As(err, &repoErr) || !repoErr.IsNotFound() {
		t.Fatalf("expected not found, got %v", err)
	}

	// Concurrent version bumps must serialise through the transaction.
	const workers = 8
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			txErr := registry.RunInTx(ctx, func(txCtx context.Context) error {
				current, err := registry.Orders().FindByID(txCtx, order.ID)
				if err != nil {
					return err
				}
				current.AdditionalPaid = current.AdditionalPaid.Add(100)
				current.Version++
				return registry.Orders().Update(txCtx, current)
			})
			if txErr != nil {
				t.Errorf("run in tx: %v", txErr)
			}
		}()
	}
	wg.Wait()

	loaded, err = registry.Orders().FindByID(ctx, order.ID)
	if err != nil {
		t.Fatalf("reload order: %v", err)
	}
	if loaded.AdditionalPaid != workers*100 || loaded.Version != 1+workers {
		t.Fatalf("expected serialised updates, got additional=%d version=%d", loaded.AdditionalPaid, loaded.Version)
	}

	page, err := registry.Orders().List(ctx, repositories.OrderListFilter{UserID: "user-1", Pagination: domain.Pagination{PageSize: 10}})
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	if len(page.Items) != 1 || page.NextPageToken != "" {
		t.Fatalf("unexpected page: %+v", page)
	}

	shipment := domain.Shipment{ID: "shp_" + order.ID, OrderID: order.ID, UserID: order.UserID, Status: domain.ShipmentStatusPending, Version: 1, CreatedAt: created, UpdatedAt: created}
	if err := registry.Shipments().Insert(ctx, shipment); err != nil {
		t.Fatalf("insert shipment: %v", err)
	}
	for i, to := range []domain.ShipmentStatus{domain.ShipmentStatusProcessing, domain.ShipmentStatusReadyToShip} {
		event := domain.ShipmentEvent{
			ID:         fmt.Sprintf("sev_%d", i),
			ShipmentID: shipment.ID,
			To:         to,
			Actor:      "staff-1",
			At:         created.Add(time.Duration(i+1) * time.Hour),
		}
		if err := registry.Shipments().AppendEvent(ctx, event); err != nil {
			t.Fatalf("append event: %v", err)
		}
	}
	byOrder, err := registry.Shipments().FindByOrderID(ctx, order.ID)
	if err != nil || byOrder.ID != shipment.ID {
		t.Fatalf("find shipment by order: %+v %v", byOrder, err)
	}
	events, err := registry.Shipments().ListEvents(ctx, shipment.ID)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 2 || events[1].To != domain.ShipmentStatusReadyToShip {
		t.Fatalf("unexpected events: %+v", events)
	}

	request := domain.ReturnRequest{
		ID:                 "ret_integration1",
		OrderID:            order.ID,
		UserID:             order.UserID,
		Status:             domain.ReturnStatusRequested,
		Items:              []domain.ReturnItem{{ProductRef: "sofa-01", Quantity: 1, UnitPrice: 15000}},
		ReasonCode:         "damaged",
		RequestedAmount:    15000,
		RefundChannel:      domain.RefundChannelGCash,
		AccountName:        "Juan",
		AccountNumberLast4: "5678",
		Version:            1,
		CreatedAt:          created,
		UpdatedAt:          created,
	}
	if err := registry.Returns().Insert(ctx, request); err != nil {
		t.Fatalf("insert return: %v", err)
	}
	returns, err := registry.Returns().ListByOrder(ctx, order.ID)
	if err != nil || len(returns) != 1 || returns[0].RequestedAmount != 15000 {
		t.Fatalf("list returns: %+v %v", returns, err)
	}

	if err := registry.Notifications().Insert(ctx, domain.Notification{
		ID:        "ntf_1",
		UserID:    order.UserID,
		Type:      "order_status",
		OrderID:   order.ID,
		Title:     "Order integr updated",
		CreatedAt: created,
	}); err != nil {
		t.Fatalf("insert notification: %v", err)
	}
	notifications, err := registry.Notifications().ListByUser(ctx, order.UserID, domain.Pagination{PageSize: 5})
	if err != nil || len(notifications.Items) != 1 {
		t.Fatalf("list notifications: %+v %v", notifications, err)
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	addr, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("unable to allocate port: %v", err)
	}
	defer addr.Close()
	return addr.Addr().(*net.TCPAddr).Port
}

func startFirestoreEmulator(t *testing.T, port int) string {
	t.Helper()
	args := []string{
		"run", "-d", "--rm",
		"-p", fmt.Sprintf("%d:8080", port),
		firestoreEmulatorImage,
		"gcloud", "beta", "emulators", "firestore", "start",
		"--host-port=0.0.0.0:8080",
		"--quiet",
	}

	out, err := exec.Command("docker", args...).CombinedOutput()
	if err != nil {
		t.Fatalf("failed to start firestore emulator: %v - %s", err, string(out))
	}
	id := strings.TrimSpace(string(out))
	if id == "" {
		t.Fatalf("docker returned empty container id")
	}
	if len(id) > 12 {
		id = id[:12]
	}
	return id
}

func ensureDockerDaemon(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := exec.CommandContext(ctx, "docker", "info").Run(); err != nil {
		t.Fatalf("docker daemon not available: %v", err)
	}
}

func stopContainer(id string) {
	if id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = exec.CommandContext(ctx, "docker", "stop", id).Run()
}

func waitForEndpoint(t *testing.T, endpoint string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", endpoint, 500*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	t.Fatalf("firestore emulator at %s did not become ready within %s", endpoint, timeout)
}

const firestoreEmulatorImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"
