package model

import "time"

// Author identifies who wrote a comment. UID is the local user id;
// SourceUsername is the user's login on the remote host, if known.
type Author struct {
	UID            string
	DisplayName    string
	PhotoURL       string
	SourceUsername string
}

// Comment is an annotation on a text range of a document, optionally mirrored
// to a pull-request review comment on the remote host.
//
// RemoteCommentID and RemoteThreadID are written exclusively by the sync
// engine. A non-empty RemoteCommentID means the record has been pushed
// outbound (or was imported from the remote side).
type Comment struct {
	ID       string
	RepoKey  string
	FilePath string
	Branch   string // Empty for comments not tied to a pull request branch.
	Author   Author
	Content  string
	Type     CommentType

	// Anchor fields captured at creation time. Offsets are advisory once
	// AnchorText is non-empty; matching falls back to text search.
	AnchorStart int
	AnchorEnd   int
	AnchorText  string

	Reactions       Reactions
	ParentCommentID string // Non-empty marks a reply; replies share anchor and branch with the root.
	RemoteCommentID string
	RemoteThreadID  string
	Status          CommentStatus
	Dirty           bool // Content edited locally after the last outbound push.
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsReply reports whether the comment is a reply in a thread.
func (c Comment) IsReply() bool {
	return c.ParentCommentID != ""
}

// IsSynced reports whether the comment exists on the remote host.
func (c Comment) IsSynced() bool {
	return c.RemoteCommentID != ""
}
