package driven

import (
	"context"
	"errors"

	"github.com/jmswint/marginalia/internal/domain/model"
)

// ErrNotFound is returned by store lookups and updates for unknown ids.
var ErrNotFound = errors.New("comment not found")

// CommentPatch is a partial update to a stored comment. Nil fields are left
// unchanged. UpdatedAt is bumped by the store on every non-empty patch.
type CommentPatch struct {
	Content         *string
	Status          *model.CommentStatus
	RemoteCommentID *string
	RemoteThreadID  *string
	Reactions       *model.Reactions
	ParentCommentID *string
	Branch          *string
	AnchorStart     *int
	AnchorEnd       *int
	AnchorText      *string
	Dirty           *bool
}

// IsZero reports whether the patch would change nothing.
func (p CommentPatch) IsZero() bool {
	return p.Content == nil && p.Status == nil && p.RemoteCommentID == nil &&
		p.RemoteThreadID == nil && p.Reactions == nil && p.ParentCommentID == nil &&
		p.Branch == nil && p.AnchorStart == nil && p.AnchorEnd == nil &&
		p.AnchorText == nil && p.Dirty == nil
}

// CommentStore defines the driven port for persisting comments.
type CommentStore interface {
	// ListByFile returns all comments for the repo+file scope, ordered by
	// creation time ascending.
	ListByFile(ctx context.Context, repoKey, filePath string) ([]model.Comment, error)
	Get(ctx context.Context, id string) (*model.Comment, error)
	// Create assigns the record id and timestamps and returns the new id.
	Create(ctx context.Context, comment model.Comment) (string, error)
	Update(ctx context.Context, id string, patch CommentPatch) error
	Delete(ctx context.Context, id string) error
	// Subscribe registers a callback that receives the full current comment
	// set for the scope after every mutation (snapshot semantics, creation
	// time ascending). The returned func removes the subscription.
	Subscribe(repoKey, filePath string, fn func([]model.Comment)) (unsubscribe func())
}
