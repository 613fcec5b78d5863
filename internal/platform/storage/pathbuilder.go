package storage

import (
	"fmt"
	"strings"
	"sync"
)

// AssetPurpose captures high-level intent for storage layout decisions.
type AssetPurpose string

const (
	PurposePaymentProof AssetPurpose = "payment-proof"
	PurposeReturnPhoto  AssetPurpose = "return-photo"
)

// Proof kinds accepted under payments/{orderId}/{kind}.
const (
	ProofKindDeposit    = "deposit"
	ProofKindAdditional = "additional"
)

// PathParams provide required identifiers to compose storage object keys.
type PathParams struct {
	OrderID  string
	UserID   string
	Kind     string
	UploadID string
	// Timestamp prefixes return photo names, in unix milliseconds.
	Timestamp int64
	FileName  string
}

// PathBuilder composes the object path for a given asset purpose.
type PathBuilder func(PathParams) (string, error)

var (
	pathBuilders = map[AssetPurpose]PathBuilder{
		PurposePaymentProof: buildPaymentProofPath,
		PurposeReturnPhoto:  buildReturnPhotoPath,
	}
	pathBuildersMu sync.RWMutex
)

// RegisterPathBuilder overrides or registers a builder for a specific purpose.
func RegisterPathBuilder(purpose AssetPurpose, builder PathBuilder) {
	pathBuildersMu.Lock()
	defer pathBuildersMu.Unlock()
	if builder == nil {
		delete(pathBuilders, purpose)
		return
	}
	pathBuilders[purpose] = builder
}

// BuildObjectPath resolves the storage object path for the given purpose.
func BuildObjectPath(purpose AssetPurpose, params PathParams) (string, error) {
	pathBuildersMu.RLock()
	builder, ok := pathBuilders[purpose]
	pathBuildersMu.RUnlock()
	if !ok {
		return "", fmt.Errorf("storage: unsupported asset purpose %q", purpose)
	}
	return builder(params)
}

// OwnsPaymentProofPath reports whether object sits under the proof prefix for orderID and kind.
func OwnsPaymentProofPath(object, orderID, kind string) bool {
	prefix := fmt.Sprintf("payments/%s/%s/", strings.TrimSpace(orderID), strings.TrimSpace(kind))
	object = strings.TrimSpace(object)
	return strings.HasPrefix(object, prefix) && len(object) > len(prefix) && !strings.Contains(object, "..")
}

// OwnsReturnPhotoPath reports whether object sits under the return photo prefix for the user and order.
func OwnsReturnPhotoPath(object, userID, orderID string) bool {
	prefix := fmt.Sprintf("returns/%s/%s/", strings.TrimSpace(userID), strings.TrimSpace(orderID))
	object = strings.TrimSpace(object)
	return strings.HasPrefix(object, prefix) && len(object) > len(prefix) && !strings.Contains(object, "..")
}

func buildPaymentProofPath(params PathParams) (string, error) {
	orderID, err := validateSegment("orderID", params.OrderID)
	if err != nil {
		return "", err
	}
	kind, err := validateSegment("kind", params.Kind)
	if err != nil {
		return "", err
	}
	if kind != ProofKindDeposit && kind != ProofKindAdditional {
		return "", fmt.Errorf("storage: unsupported proof kind %q", kind)
	}
	uploadID, err := validateSegment("uploadID", params.UploadID)
	if err != nil {
		return "", err
	}
	fileName, err := validateFileName(params.FileName)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("payments/%s/%s/%s_%s", orderID, kind, uploadID, fileName), nil
}

func buildReturnPhotoPath(params PathParams) (string, error) {
	userID, err := validateSegment("userID", params.UserID)
	if err != nil {
		return "", err
	}
	orderID, err := validateSegment("orderID", params.OrderID)
	if err != nil {
		return "", err
	}
	if params.Timestamp <= 0 {
		return "", fmt.Errorf("storage: timestamp is required")
	}
	fileName, err := validateFileName(params.FileName)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("returns/%s/%s/%d_%s", userID, orderID, params.Timestamp, fileName), nil
}

func validateSegment(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: %s is required", name)
	}
	if strings.ContainsAny(value, "/\\") {
		return "", fmt.Errorf("storage: %s contains invalid path characters", name)
	}
	if strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: %s contains invalid traversal sequence", name)
	}
	return value, nil
}

func validateFileName(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: fileName is required")
	}
	if strings.ContainsAny(value, "/\\") {
		return "", fmt.Errorf("storage: fileName contains invalid path characters")
	}
	if strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: fileName contains invalid traversal sequence")
	}
	return value, nil
}
