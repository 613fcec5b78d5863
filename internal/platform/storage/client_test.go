package storage

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/furnitune/api/internal/platform/auth"
)

type fakeSigner struct {
	email    string
	payloads [][]byte
	err      error
}

func (f *fakeSigner) Email() string {
	return f.email
}

func (f *fakeSigner) SignBytes(_ context.Context, payload []byte) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.payloads = append(f.payloads, append([]byte(nil), payload...))
	return []byte("signed"), nil
}

func newTestClient(t *testing.T, now time.Time) (*Client, *fakeSigner) {
	t.Helper()
	signer := &fakeSigner{email: "uploads@furnitune.iam.gserviceaccount.com"}
	client, err := NewClient(signer, WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("unexpected error creating client: %v", err)
	}
	return client, signer
}

func TestSignPut(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	client, signer := newTestClient(t, now)

	res, err := client.SignPut(context.Background(), "uploads", "payments/ord_123/deposit/U1_receipt.png", PutPolicy{
		ContentType:         "Image/PNG",
		AllowedContentTypes: DefaultUploadContentTypes,
		MaxSize:             1 << 20,
		ExpiresIn:           10 * time.Minute,
	})
	if err != nil {
		t.Fatalf("SignPut returned error: %v", err)
	}
	if res.Method != httpMethodPut {
		t.Fatalf("expected PUT, got %s", res.Method)
	}
	if !res.ExpiresAt.Equal(now.Add(10 * time.Minute)) {
		t.Fatalf("unexpected expiry %v", res.ExpiresAt)
	}
	if res.Headers["Content-Type"] != "image/png" {
		t.Fatalf("expected normalised content type, got %v", res.Headers)
	}
	if res.Headers["x-goog-content-length-range"] != "0,1048576" {
		t.Fatalf("expected size range header, got %v", res.Headers)
	}
	parsed, err := url.Parse(res.URL)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	if !strings.Contains(parsed.RawQuery, "X-Goog-Signature=") {
		t.Fatalf("expected signature in query: %s", parsed.RawQuery)
	}
	if len(signer.payloads) == 0 {
		t.Fatalf("expected signer to be invoked")
	}
}

func TestSignPutRejections(t *testing.T) {
	client, _ := newTestClient(t, time.Now())

	_, err := client.SignPut(context.Background(), "uploads", "object", PutPolicy{
		ContentType:         "application/zip",
		AllowedContentTypes: DefaultUploadContentTypes,
	})
	if !errors.Is(err, errContentTypeDenied) {
		t.Fatalf("expected errContentTypeDenied, got %v", err)
	}

	if _, err := client.SignPut(context.Background(), "uploads", "object", PutPolicy{}); !errors.Is(err, errContentTypeMissing) {
		t.Fatalf("expected errContentTypeMissing, got %v", err)
	}

	if _, err := client.SignPut(context.Background(), " ", "object", PutPolicy{ContentType: "image/png"}); !errors.Is(err, errInvalidTarget) {
		t.Fatalf("expected errInvalidTarget, got %v", err)
	}
}

func TestSignPutSignerFailure(t *testing.T) {
	signer := &fakeSigner{email: "uploads@furnitune.iam.gserviceaccount.com", err: errors.New("iam unavailable")}
	client, err := NewClient(signer)
	if err != nil {
		t.Fatalf("unexpected error creating client: %v", err)
	}
	if _, err := client.SignPut(context.Background(), "uploads", "object.png", PutPolicy{ContentType: "image/png"}); err == nil {
		t.Fatalf("expected signer error to surface")
	}
}

func TestSignGetAuthorisation(t *testing.T) {
	client, _ := newTestClient(t, time.Now())
	object := "returns/user_1/ord_1/1748858400000_damage.jpg"

	cases := []struct {
		name     string
		identity *auth.Identity
		wantErr  error
	}{
		{name: "anonymous", identity: nil, wantErr: ErrPermissionDenied},
		{name: "other customer", identity: &auth.Identity{UID: "user_2", Roles: []string{auth.RoleCustomer}}, wantErr: ErrPermissionDenied},
		{name: "owner", identity: &auth.Identity{UID: "user_1", Roles: []string{auth.RoleCustomer}}},
		{name: "staff", identity: &auth.Identity{UID: "ops_1", Roles: []string{auth.RoleStaff}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := client.SignGet(context.Background(), "uploads", object, GetPolicy{
				OwnerID:      "user_1",
				Identity:     tc.identity,
				CacheControl: "private, max-age=0",
			})
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("SignGet returned error: %v", err)
			}
			if res.Method != httpMethodGet || !strings.Contains(res.URL, "response-cache-control") {
				t.Fatalf("unexpected result %+v", res)
			}
		})
	}
}

func TestSignGetExpiryTooLong(t *testing.T) {
	client, _ := newTestClient(t, time.Now())
	_, err := client.SignGet(context.Background(), "uploads", "object", GetPolicy{
		Identity:  &auth.Identity{UID: "ops_1", Roles: []string{auth.RoleStaff}},
		ExpiresIn: time.Hour,
	})
	if !errors.Is(err, errExpiryTooLong) {
		t.Fatalf("expected errExpiryTooLong, got %v", err)
	}
}

func TestKeySigner(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	raw, _ := json.Marshal(map[string]string{
		"client_email": "local@furnitune.iam.gserviceaccount.com",
		"private_key":  string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})),
	})

	signer, err := NewKeySigner(raw)
	if err != nil {
		t.Fatalf("NewKeySigner: %v", err)
	}
	if signer.Email() != "local@furnitune.iam.gserviceaccount.com" {
		t.Fatalf("unexpected email %s", signer.Email())
	}
	sig, err := signer.SignBytes(context.Background(), []byte("payload"))
	if err != nil || len(sig) != 256 {
		t.Fatalf("expected 2048-bit signature, got %d bytes err=%v", len(sig), err)
	}

	if _, err := NewKeySigner([]byte(`{"client_email":"x"}`)); err == nil {
		t.Fatalf("expected error for key without private_key")
	}
}
