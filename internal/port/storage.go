package port

import "context"

// PutInput carries an original document to be stored.
type PutInput struct {
	Filename    string
	ContentType string
	Body        []byte
}

// BlobStore abstracts storage of original document bytes. Implementations
// reject filenames whose extension is outside the configured allow-list
// before storing anything.
type BlobStore interface {
	// Put stores the bytes and returns an opaque handle.
	Put(ctx context.Context, input PutInput) (string, error)
	// Get returns domain.ErrBlobNotFound when the handle does not exist.
	Get(ctx context.Context, handle string) ([]byte, error)
	// Delete reports whether an object was removed.
	Delete(ctx context.Context, handle string) (bool, error)
}
