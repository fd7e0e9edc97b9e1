package model

import "time"

// RemoteComment is the validated boundary representation of a review comment
// fetched from the remote host. Adapters map host payloads into this struct
// on ingress; sync logic never touches raw API types.
type RemoteComment struct {
	ID          string
	Body        string
	Path        string
	Line        int
	StartLine   int // 0 for single-line comments.
	DiffHunk    string
	InReplyToID string // Empty for thread roots.
	AuthorLogin string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RemoteReaction is a single emoji reaction on a remote thread.
type RemoteReaction struct {
	Content   string // Emoji key, e.g. "+1", "heart".
	UserLogin string
}

// ThreadMetadata carries per-thread state fetched in one batched call for a
// whole pull request, keyed by the thread's root comment id.
type ThreadMetadata struct {
	ThreadID   string
	IsResolved bool
	Reactions  []RemoteReaction
}

// FileScope identifies the document a sync pass operates on.
type FileScope struct {
	RepoKey  string // "owner/repo" on the remote host.
	FilePath string
	Branch   string
}

// PullRequestRef identifies the pull request whose review threads mirror the
// document's comments.
type PullRequestRef struct {
	Number int
}
