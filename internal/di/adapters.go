package di

import (
	"context"
	"errors"

	domain "github.com/furnitune/api/internal/domain"
	"github.com/furnitune/api/internal/platform/storage"
	"github.com/furnitune/api/internal/services"
)

// uploadSigner maps the storage package onto services.UploadSigner and translates its
// errors into domain errors the HTTP layer already knows how to render.
type uploadSigner struct {
	urls *storage.UploadURLs
}

func (s uploadSigner) SignUpload(ctx context.Context, bucket, object, contentType string) (services.SignedUpload, error) {
	signed, err := s.urls.SignUpload(ctx, bucket, object, contentType)
	if err != nil {
		if storage.IsContentTypeRejected(err) {
			return services.SignedUpload{}, domain.NewValidationError("contentType", "unsupported file type")
		}
		return services.SignedUpload{}, err
	}
	return toSignedUpload(object, signed), nil
}

// SignDownload answers not found rather than forbidden so object paths are not confirmed to
// callers who may not see them.
func (s uploadSigner) SignDownload(ctx context.Context, bucket, object, ownerID string) (services.SignedUpload, error) {
	signed, err := s.urls.SignDownload(ctx, bucket, object, ownerID)
	if err != nil {
		if errors.Is(err, storage.ErrPermissionDenied) {
			return services.SignedUpload{}, domain.NewNotFoundError("object", object)
		}
		return services.SignedUpload{}, err
	}
	return toSignedUpload(object, signed), nil
}

func toSignedUpload(object string, signed storage.SignedURLResult) services.SignedUpload {
	return services.SignedUpload{
		ObjectPath: object,
		URL:        signed.URL,
		Method:     signed.Method,
		Headers:    signed.Headers,
		ExpiresAt:  signed.ExpiresAt,
	}
}
