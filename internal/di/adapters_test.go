package di

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/furnitune/api/internal/domain"
	"github.com/furnitune/api/internal/platform/auth"
	"github.com/furnitune/api/internal/platform/storage"
)

type stubSigner struct{}

func (stubSigner) Email() string { return "uploads@furnitune-dev.iam.gserviceaccount.com" }

func (stubSigner) SignBytes(context.Context, []byte) ([]byte, error) {
	return []byte("signature"), nil
}

func newTestUploadSigner(t *testing.T) uploadSigner {
	t.Helper()
	client, err := storage.NewClient(stubSigner{})
	require.NoError(t, err)
	urls, err := storage.NewUploadURLs(client, storage.UploadURLsConfig{TTL: 10 * time.Minute, MaxSize: 1 << 20})
	require.NoError(t, err)
	return uploadSigner{urls: urls}
}

func TestUploadSignerSignUpload(t *testing.T) {
	signer := newTestUploadSigner(t)

	signed, err := signer.SignUpload(context.Background(), "furnitune-uploads", "payments/ord_1/deposit/receipt.png", "")
	require.NoError(t, err)
	assert.Equal(t, "payments/ord_1/deposit/receipt.png", signed.ObjectPath)
	assert.Equal(t, http.MethodPut, signed.Method)
	assert.Equal(t, "image/png", signed.Headers["Content-Type"])
	assert.True(t, strings.Contains(signed.URL, "furnitune-uploads"), signed.URL)
	assert.False(t, signed.ExpiresAt.IsZero())
}

func TestUploadSignerRejectsMediaAsValidation(t *testing.T) {
	signer := newTestUploadSigner(t)

	_, err := signer.SignUpload(context.Background(), "furnitune-uploads", "payments/ord_1/deposit/receipt.exe", "")
	var validation *domain.ValidationError
	require.True(t, errors.As(err, &validation), "got %v", err)
	assert.Equal(t, "contentType", validation.Field)
}

func TestUploadSignerDownloadHidesForeignObjects(t *testing.T) {
	signer := newTestUploadSigner(t)
	object := "returns/user-1/ord_1/photo.jpg"

	ctx := auth.WithIdentity(context.Background(), &auth.Identity{UID: "user-2", Roles: []string{auth.RoleCustomer}})
	_, err := signer.SignDownload(ctx, "furnitune-uploads", object, "user-1")
	assert.True(t, errors.Is(err, domain.ErrNotFound), "got %v", err)

	ctx = auth.WithIdentity(context.Background(), &auth.Identity{UID: "user-1", Roles: []string{auth.RoleCustomer}})
	signed, err := signer.SignDownload(ctx, "furnitune-uploads", object, "user-1")
	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, signed.Method)
	assert.Equal(t, object, signed.ObjectPath)
}
