package model

// CommentType distinguishes plain comments from code suggestions.
type CommentType string

const (
	CommentTypeComment    CommentType = "comment"
	CommentTypeSuggestion CommentType = "suggestion"
)

// CommentStatus represents the lifecycle state of a comment thread.
type CommentStatus string

const (
	CommentStatusActive   CommentStatus = "active"
	CommentStatusResolved CommentStatus = "resolved"
)
