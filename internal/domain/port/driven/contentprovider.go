package driven

import (
	"context"
	"errors"
)

// ErrContentUnavailable is returned when the document text cannot be fetched.
// Sync passes degrade gracefully on it rather than aborting.
var ErrContentUnavailable = errors.New("document content unavailable")

// ContentProvider defines the driven port for fetching current document text.
type ContentProvider interface {
	GetContent(ctx context.Context, repoKey, filePath, branch string) (string, error)
}
