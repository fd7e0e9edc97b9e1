package driven

import (
	"context"
	"errors"

	"github.com/jmswint/marginalia/internal/domain/model"
)

// ErrOutsideDiff marks a rejected comment creation because the target
// file/line is not part of the pull request's diff. This is an expected
// outcome, not a failure: the file simply wasn't touched in this PR.
var ErrOutsideDiff = errors.New("line is outside the pull request diff")

// ReviewCommentInput is the input to RemoteReview.CreateReviewComment.
type ReviewCommentInput struct {
	Body      string
	CommitID  string // HEAD SHA to attach the comment to.
	Path      string // File path relative to repository root.
	Line      int    // 1-based line in the new file version.
	StartLine int    // For multi-line comments: first line of the range; 0 otherwise.
}

// RemoteReview defines the driven port for the remote host's pull-request
// review-comment API. All ids are opaque strings at this boundary.
type RemoteReview interface {
	// ListReviewComments returns every review comment in the PR that targets
	// the given file path.
	ListReviewComments(ctx context.Context, repoKey string, prNumber int, path string) ([]model.RemoteComment, error)

	// CreateReviewComment posts a new thread-root comment and returns its
	// remote id. Returns ErrOutsideDiff when the host rejects the position.
	CreateReviewComment(ctx context.Context, repoKey string, prNumber int, input ReviewCommentInput) (string, error)

	// ReplyToComment posts a reply to an existing thread and returns the new
	// comment's remote id. parentID must be the thread root's remote id.
	ReplyToComment(ctx context.Context, repoKey string, prNumber int, parentID, body string) (string, error)

	UpdateComment(ctx context.Context, repoKey, commentID, body string) error
	DeleteComment(ctx context.Context, repoKey, commentID string) error

	// FetchThreadMetadata returns resolution state, thread id, and reactions
	// for every review thread in the PR, keyed by root comment id, in one
	// batched call.
	FetchThreadMetadata(ctx context.Context, repoKey string, prNumber int) (map[string]model.ThreadMetadata, error)
}
