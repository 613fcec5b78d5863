package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"

	"github.com/furnitune/api/internal/platform/auth"
)

const (
	defaultSignedURLExpiry     = 15 * time.Minute
	maxDownloadSignedURLExpiry = 15 * time.Minute
	defaultDownloadExpiry      = 5 * time.Minute

	httpMethodPut = "PUT"
	httpMethodGet = "GET"
)

var (
	errNoSigner           = errors.New("storage: signer is required")
	errInvalidTarget      = errors.New("storage: bucket and object are required")
	errContentTypeMissing = errors.New("storage: content type is required for uploads")
	errContentTypeDenied  = errors.New("storage: content type not allowed")
	errExpiryTooLong      = errors.New("storage: expiry exceeds permitted maximum")

	// ErrPermissionDenied is returned when the caller neither owns the object nor is staff.
	ErrPermissionDenied = errors.New("storage: permission denied")
)

// Client mints V4 signed URLs with a Signer.
type Client struct {
	signer Signer
	now    func() time.Time
}

// ClientOption customises the Client.
type ClientOption func(*Client)

// WithClock injects the time source.
func WithClock(clock func() time.Time) ClientOption {
	return func(c *Client) {
		if clock != nil {
			c.now = clock
		}
	}
}

// NewClient constructs a Client.
func NewClient(signer Signer, opts ...ClientOption) (*Client, error) {
	if signer == nil || strings.TrimSpace(signer.Email()) == "" {
		return nil, errNoSigner
	}
	c := &Client{signer: signer, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// PutPolicy constrains what a customer may upload.
type PutPolicy struct {
	ContentType         string
	AllowedContentTypes []string
	MaxSize             int64
	ExpiresIn           time.Duration
}

// GetPolicy restricts a download to the owner or staff.
type GetPolicy struct {
	OwnerID      string
	Identity     *auth.Identity
	ExpiresIn    time.Duration
	Disposition  string
	CacheControl string
}

// SignedURLResult is a signed URL and the headers the caller must send with it.
type SignedURLResult struct {
	URL       string
	Method    string
	ExpiresAt time.Time
	Headers   map[string]string
}

// SignPut signs a PUT upload. The URL only accepts the declared content type and, when MaxSize is
// set, bodies up to that size.
func (c *Client) SignPut(ctx context.Context, bucket, object string, policy PutPolicy) (SignedURLResult, error) {
	bucket, object, err := signTarget(c, bucket, object)
	if err != nil {
		return SignedURLResult{}, err
	}
	contentType := strings.ToLower(strings.TrimSpace(policy.ContentType))
	if contentType == "" {
		return SignedURLResult{}, errContentTypeMissing
	}
	if len(policy.AllowedContentTypes) > 0 && !slices.Contains(policy.AllowedContentTypes, contentType) {
		return SignedURLResult{}, errContentTypeDenied
	}
	expiry := policy.ExpiresIn
	if expiry <= 0 {
		expiry = defaultSignedURLExpiry
	}

	headers := map[string]string{"Content-Type": contentType}
	var extHeaders []string
	if policy.MaxSize > 0 {
		sizeRange := fmt.Sprintf("0,%d", policy.MaxSize)
		headers["x-goog-content-length-range"] = sizeRange
		extHeaders = append(extHeaders, "x-goog-content-length-range:"+sizeRange)
	}

	expiresAt := c.now().Add(expiry)
	signed, err := gcs.SignedURL(bucket, object, &gcs.SignedURLOptions{
		GoogleAccessID: c.signer.Email(),
		Scheme:         gcs.SigningSchemeV4,
		Method:         httpMethodPut,
		ContentType:    contentType,
		Headers:        extHeaders,
		Expires:        expiresAt,
		SignBytes:      c.signBytes(ctx),
	})
	if err != nil {
		return SignedURLResult{}, fmt.Errorf("storage: sign upload url: %w", err)
	}
	return SignedURLResult{URL: signed, Method: httpMethodPut, ExpiresAt: expiresAt, Headers: headers}, nil
}

// SignGet signs a GET download after checking the caller may read the object.
func (c *Client) SignGet(ctx context.Context, bucket, object string, policy GetPolicy) (SignedURLResult, error) {
	bucket, object, err := signTarget(c, bucket, object)
	if err != nil {
		return SignedURLResult{}, err
	}
	expiry := policy.ExpiresIn
	if expiry <= 0 {
		expiry = defaultDownloadExpiry
	}
	if expiry > maxDownloadSignedURLExpiry {
		return SignedURLResult{}, errExpiryTooLong
	}
	if !mayDownload(policy.Identity, policy.OwnerID) {
		return SignedURLResult{}, ErrPermissionDenied
	}

	query := url.Values{}
	if policy.Disposition != "" {
		query.Set("response-content-disposition", policy.Disposition)
	}
	if policy.CacheControl != "" {
		query.Set("response-cache-control", policy.CacheControl)
	}

	expiresAt := c.now().Add(expiry)
	opts := &gcs.SignedURLOptions{
		GoogleAccessID: c.signer.Email(),
		Scheme:         gcs.SigningSchemeV4,
		Method:         httpMethodGet,
		Expires:        expiresAt,
		SignBytes:      c.signBytes(ctx),
	}
	if len(query) > 0 {
		opts.QueryParameters = query
	}
	signed, err := gcs.SignedURL(bucket, object, opts)
	if err != nil {
		return SignedURLResult{}, fmt.Errorf("storage: sign download url: %w", err)
	}
	return SignedURLResult{URL: signed, Method: httpMethodGet, ExpiresAt: expiresAt}, nil
}

func (c *Client) signBytes(ctx context.Context) func([]byte) ([]byte, error) {
	return func(payload []byte) ([]byte, error) {
		return c.signer.SignBytes(ctx, payload)
	}
}

func signTarget(c *Client, bucket, object string) (string, string, error) {
	if c == nil || c.signer == nil {
		return "", "", errNoSigner
	}
	bucket = strings.TrimSpace(bucket)
	object = strings.TrimSpace(object)
	if bucket == "" || object == "" {
		return "", "", errInvalidTarget
	}
	return bucket, object, nil
}

func mayDownload(identity *auth.Identity, ownerID string) bool {
	if identity == nil {
		return false
	}
	if ownerID != "" && identity.UID == ownerID {
		return true
	}
	return identity.IsStaff()
}
