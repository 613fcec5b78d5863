package storage

import (
	"context"
	"errors"
	"strings"

	gcs "cloud.google.com/go/storage"
)

// ObjectInspector reads object metadata from Cloud Storage.
type ObjectInspector struct {
	client *gcs.Client
}

// NewObjectInspector constructs an ObjectInspector backed by the provided Cloud Storage client.
func NewObjectInspector(client *gcs.Client) (*ObjectInspector, error) {
	if client == nil {
		return nil, errors.New("storage inspector: client is required")
	}
	return &ObjectInspector{client: client}, nil
}

// Exists reports whether the object has been uploaded.
func (i *ObjectInspector) Exists(ctx context.Context, bucket, object string) (bool, error) {
	if i == nil || i.client == nil {
		return false, errors.New("storage inspector: client is not initialised")
	}
	bucket = strings.TrimSpace(bucket)
	object = strings.TrimSpace(object)
	if bucket == "" || object == "" {
		return false, errors.New("storage inspector: bucket and object must be provided")
	}
	_, err := i.client.Bucket(bucket).Object(object).Attrs(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
