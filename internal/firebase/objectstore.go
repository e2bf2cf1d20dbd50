package firebase

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"

	"local.dev/socialfeed-client/internal/backend"
)

// ObjectStore uploads post images to a Cloud Storage bucket and resolves
// their public URLs. Key generation is the caller's job.
type ObjectStore struct {
	bucket     *storage.BucketHandle
	bucketName string
}

func NewObjectStore(bucket *storage.BucketHandle, bucketName string) *ObjectStore {
	return &ObjectStore{bucket: bucket, bucketName: bucketName}
}

func (o *ObjectStore) Upload(ctx context.Context, key, contentType string, data []byte) error {
	w := o.bucket.Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return &backend.StorageError{Op: "upload", Key: key, Err: err}
	}
	if err := w.Close(); err != nil {
		return &backend.StorageError{Op: "upload", Key: key, Err: err}
	}
	return nil
}

func (o *ObjectStore) PublicURL(key string) string {
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", o.bucketName, key)
}
