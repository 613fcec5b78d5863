package storage

import "testing"

func TestBuildPaymentProofPath(t *testing.T) {
	path, err := BuildObjectPath(PurposePaymentProof, PathParams{
		OrderID:  "ord_123",
		Kind:     ProofKindDeposit,
		UploadID: "01HXYZ",
		FileName: "gcash.png",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := "payments/ord_123/deposit/01HXYZ_gcash.png"
	if path != expected {
		t.Fatalf("expected %s, got %s", expected, path)
	}
	if !OwnsPaymentProofPath(path, "ord_123", ProofKindDeposit) {
		t.Fatalf("expected built path to be owned by the order")
	}
	if OwnsPaymentProofPath(path, "ord_999", ProofKindDeposit) {
		t.Fatalf("expected path of another order to be rejected")
	}
}

func TestBuildPaymentProofPathRejectsUnknownKind(t *testing.T) {
	_, err := BuildObjectPath(PurposePaymentProof, PathParams{
		OrderID:  "ord_123",
		Kind:     "tip",
		UploadID: "01HXYZ",
		FileName: "gcash.png",
	})
	if err == nil {
		t.Fatalf("expected error for unknown proof kind")
	}
}

func TestBuildReturnPhotoPath(t *testing.T) {
	path, err := BuildObjectPath(PurposeReturnPhoto, PathParams{
		UserID:    "uid-1",
		OrderID:   "ord_123",
		Timestamp: 1700000000000,
		FileName:  "scratch.jpg",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := "returns/uid-1/ord_123/1700000000000_scratch.jpg"
	if path != expected {
		t.Fatalf("expected %s, got %s", expected, path)
	}
	if !OwnsReturnPhotoPath(path, "uid-1", "ord_123") {
		t.Fatalf("expected built path to be owned by the user")
	}
}

func TestBuildObjectPathRejectsInvalidSegment(t *testing.T) {
	_, err := BuildObjectPath(PurposeReturnPhoto, PathParams{
		UserID:    "../bad",
		OrderID:   "ord_1",
		Timestamp: 1,
		FileName:  "file.png",
	})
	if err == nil {
		t.Fatalf("expected error for invalid segment")
	}
}
