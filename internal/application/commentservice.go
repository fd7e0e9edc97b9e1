package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmswint/marginalia/internal/domain/model"
	"github.com/jmswint/marginalia/internal/domain/port/driven"
)

// CommentService implements the user-facing comment operations: create,
// reply, edit, react, resolve, delete. It never touches RemoteCommentID or
// RemoteThreadID; those belong to the sync engine.
type CommentService struct {
	store  driven.CommentStore
	remote driven.RemoteReview
}

// NewCommentService creates a CommentService with the required dependencies.
func NewCommentService(store driven.CommentStore, remote driven.RemoteReview) *CommentService {
	return &CommentService{store: store, remote: remote}
}

// CreateInput is the input to CommentService.Create.
type CreateInput struct {
	Scope       model.FileScope
	Author      model.Author
	Content     string
	Type        model.CommentType
	AnchorStart int
	AnchorEnd   int
	AnchorText  string
}

// Create stores a new root comment anchored to a text range. The record is
// usable immediately; the sync engine attaches the remote id asynchronously.
func (s *CommentService) Create(ctx context.Context, in CreateInput) (*model.Comment, error) {
	if in.AnchorStart > in.AnchorEnd {
		return nil, fmt.Errorf("anchor start %d exceeds anchor end %d", in.AnchorStart, in.AnchorEnd)
	}
	if in.Type == "" {
		in.Type = model.CommentTypeComment
	}

	comment := model.Comment{
		RepoKey:     in.Scope.RepoKey,
		FilePath:    in.Scope.FilePath,
		Branch:      in.Scope.Branch,
		Author:      in.Author,
		Content:     in.Content,
		Type:        in.Type,
		AnchorStart: in.AnchorStart,
		AnchorEnd:   in.AnchorEnd,
		AnchorText:  in.AnchorText,
		Status:      model.CommentStatusActive,
	}

	id, err := s.store.Create(ctx, comment)
	if err != nil {
		return nil, fmt.Errorf("creating comment: %w", err)
	}

	return s.store.Get(ctx, id)
}

// Reply stores a reply under the thread root of parentID. Replying to a
// reply attaches to its root: threading is one level deep. The reply
// inherits the root's anchor fields and branch.
func (s *CommentService) Reply(ctx context.Context, parentID string, author model.Author, content string) (*model.Comment, error) {
	parent, err := s.store.Get(ctx, parentID)
	if err != nil {
		return nil, fmt.Errorf("loading parent comment: %w", err)
	}
	if parent.IsReply() {
		root, err := s.store.Get(ctx, parent.ParentCommentID)
		if err != nil {
			return nil, fmt.Errorf("loading thread root: %w", err)
		}
		parent = root
	}

	reply := model.Comment{
		RepoKey:         parent.RepoKey,
		FilePath:        parent.FilePath,
		Branch:          parent.Branch,
		Author:          author,
		Content:         content,
		Type:            model.CommentTypeComment,
		AnchorStart:     parent.AnchorStart,
		AnchorEnd:       parent.AnchorEnd,
		AnchorText:      parent.AnchorText,
		ParentCommentID: parent.ID,
		Status:          model.CommentStatusActive,
	}

	id, err := s.store.Create(ctx, reply)
	if err != nil {
		return nil, fmt.Errorf("creating reply: %w", err)
	}

	return s.store.Get(ctx, id)
}

// Edit replaces the comment body. Already-synced comments are marked dirty
// so the next outbound pass propagates the edit to the remote host.
func (s *CommentService) Edit(ctx context.Context, id, content string) error {
	comment, err := s.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("loading comment: %w", err)
	}

	patch := driven.CommentPatch{Content: &content}
	if comment.IsSynced() {
		dirty := true
		patch.Dirty = &dirty
	}

	if err := s.store.Update(ctx, id, patch); err != nil {
		return fmt.Errorf("updating comment: %w", err)
	}
	return nil
}

// React toggles the user's reaction with the given emoji. Removing the last
// user for an emoji deletes the key; empty sets are never retained.
func (s *CommentService) React(ctx context.Context, id, emoji, uid string) error {
	comment, err := s.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("loading comment: %w", err)
	}

	reactions := comment.Reactions.Clone()
	users := reactions[emoji]

	if containsString(users, uid) {
		next := make([]string, 0, len(users)-1)
		for _, u := range users {
			if u != uid {
				next = append(next, u)
			}
		}
		if len(next) == 0 {
			delete(reactions, emoji)
		} else {
			reactions[emoji] = next
		}
	} else {
		reactions[emoji] = append(users, uid)
	}

	if err := s.store.Update(ctx, id, driven.CommentPatch{Reactions: &reactions}); err != nil {
		return fmt.Errorf("updating reactions: %w", err)
	}
	return nil
}

// Resolve marks a comment thread resolved locally. The remote side remains
// authoritative once a remote thread exists; a later sync pass may confirm
// or revert this.
func (s *CommentService) Resolve(ctx context.Context, id string) error {
	resolved := model.CommentStatusResolved
	if err := s.store.Update(ctx, id, driven.CommentPatch{Status: &resolved}); err != nil {
		return fmt.Errorf("resolving comment: %w", err)
	}
	return nil
}

// Delete removes the comment locally and fires a best-effort delete of its
// remote counterpart. Remote failure is logged, not propagated: the local
// delete is the user-visible contract.
func (s *CommentService) Delete(ctx context.Context, id string) error {
	comment, err := s.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("loading comment: %w", err)
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("deleting comment: %w", err)
	}

	if comment.IsSynced() {
		if err := s.remote.DeleteComment(ctx, comment.RepoKey, comment.RemoteCommentID); err != nil {
			slog.Warn("remote comment delete failed", "comment", id, "remote_id", comment.RemoteCommentID, "error", err)
		}
	}

	return nil
}
