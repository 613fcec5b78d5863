package storage

import (
	"context"
	"errors"
	"path"
	"strings"
	"time"

	"github.com/furnitune/api/internal/platform/auth"
)

// DefaultUploadContentTypes lists the media accepted for payment proofs and return photos.
var DefaultUploadContentTypes = []string{"image/jpeg", "image/png", "image/webp", "image/heic", "application/pdf"}

// UploadURLsConfig configures signed URL issuance for customer uploads.
type UploadURLsConfig struct {
	TTL          time.Duration
	MaxSize      int64
	ContentTypes []string
}

// UploadURLs issues PUT and GET URLs for customer-supplied evidence.
type UploadURLs struct {
	client *Client
	cfg    UploadURLsConfig
}

// NewUploadURLs wraps the signed URL client with upload policy.
func NewUploadURLs(client *Client, cfg UploadURLsConfig) (*UploadURLs, error) {
	if client == nil {
		return nil, errNoSigner
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultSignedURLExpiry
	}
	if len(cfg.ContentTypes) == 0 {
		cfg.ContentTypes = DefaultUploadContentTypes
	}
	return &UploadURLs{client: client, cfg: cfg}, nil
}

// SignUpload issues a PUT URL. The content type defaults from the object extension.
func (u *UploadURLs) SignUpload(ctx context.Context, bucket, object, contentType string) (SignedURLResult, error) {
	if u == nil {
		return SignedURLResult{}, errNoSigner
	}
	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		contentType = contentTypeForObject(object)
	}
	if contentType == "" {
		return SignedURLResult{}, ErrUnsupportedContentType
	}
	return u.client.SignPut(ctx, bucket, object, PutPolicy{
		ContentType:         contentType,
		AllowedContentTypes: u.cfg.ContentTypes,
		MaxSize:             u.cfg.MaxSize,
		ExpiresIn:           u.cfg.TTL,
	})
}

// SignDownload issues a short-lived GET URL for the owner or staff found on ctx.
func (u *UploadURLs) SignDownload(ctx context.Context, bucket, object, ownerID string) (SignedURLResult, error) {
	if u == nil {
		return SignedURLResult{}, errNoSigner
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		return SignedURLResult{}, ErrPermissionDenied
	}
	expiry := u.cfg.TTL
	if expiry > maxDownloadSignedURLExpiry {
		expiry = maxDownloadSignedURLExpiry
	}
	return u.client.SignGet(ctx, bucket, object, GetPolicy{
		OwnerID:      ownerID,
		Identity:     identity,
		ExpiresIn:    expiry,
		CacheControl: "private, max-age=0",
		Disposition:  "inline; filename=\"" + path.Base(object) + "\"",
	})
}

// ErrUnsupportedContentType reports a file extension outside the upload allow-list.
var ErrUnsupportedContentType = errors.New("storage: unsupported upload file type")

func contentTypeForObject(object string) string {
	switch strings.ToLower(path.Ext(object)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".heic":
		return "image/heic"
	case ".pdf":
		return "application/pdf"
	default:
		return ""
	}
}

// IsContentTypeRejected reports whether err came from the upload media allow-list.
func IsContentTypeRejected(err error) bool {
	return errors.Is(err, ErrUnsupportedContentType) ||
		errors.Is(err, errContentTypeDenied) ||
		errors.Is(err, errContentTypeMissing)
}
