package object

import (
	"context"
	"io"
)

// ObjectStore defines the contract for saving and retrieving binary objects.
type ObjectStore interface {
	Save(ctx context.Context, userId string, fileName string, r io.Reader) (storageKey string, sizeBytes int64, mimeType string, err error)
	Open(ctx context.Context, storageKey string) (io.ReadCloser, error)
	// SaveWithKey writes to an exact storage key rather than a generated one,
	// for callers that address content by a stable identifier: résumé
	// variants keyed by (archetype, version identifier), scheduler backup
	// snapshots keyed by timestamp.
	SaveWithKey(ctx context.Context, storageKey string, contentType string, r io.Reader) (sizeBytes int64, err error)
}
