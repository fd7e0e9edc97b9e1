package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmswint/marginalia/internal/domain/model"
	"github.com/jmswint/marginalia/internal/domain/port/driven"
)

// InboundReport holds the counts of an inbound pass.
type InboundReport struct {
	Imported int
	Resolved int
}

// SyncInbound pulls all remote review comments for the file, imports new
// ones, updates changed ones, threads replies through the correlation map,
// and folds in batched thread metadata (resolution, thread ids, reactions).
//
// Re-running with no new remote activity is a no-op: zero imported, zero
// resolved, no store writes.
func (s *SyncService) SyncInbound(ctx context.Context, scope model.FileScope, pr model.PullRequestRef) (InboundReport, error) {
	var report InboundReport

	// Document text is best effort: absence degrades anchor precision but
	// never aborts the sync.
	documentText, err := s.content.GetContent(ctx, scope.RepoKey, scope.FilePath, scope.Branch)
	if err != nil {
		if !errors.Is(err, driven.ErrContentUnavailable) {
			slog.Warn("fetch document content failed", "repo", scope.RepoKey, "file", scope.FilePath, "error", err)
		}
		documentText = ""
	}

	remoteComments, err := s.remote.ListReviewComments(ctx, scope.RepoKey, pr.Number, scope.FilePath)
	if err != nil {
		return report, fmt.Errorf("listing remote review comments for %s#%d: %w", scope.RepoKey, pr.Number, err)
	}

	locals, err := s.store.ListByFile(ctx, scope.RepoKey, scope.FilePath)
	if err != nil {
		return report, fmt.Errorf("listing local comments for %s: %w", scope.RepoKey, err)
	}
	cm := buildCorrelationMap(locals)

	// Thread roots first so replies arriving in the same batch can correlate
	// to parents imported moments earlier.
	for _, rc := range remoteComments {
		if rc.InReplyToID != "" {
			continue
		}
		if s.applyRemoteComment(ctx, scope, cm, rc, documentText) {
			report.Imported++
		}
	}
	for _, rc := range remoteComments {
		if rc.InReplyToID == "" {
			continue
		}
		if s.applyRemoteComment(ctx, scope, cm, rc, documentText) {
			report.Imported++
		}
	}

	resolved, err := s.mergeRemoteThreadState(ctx, scope, pr, cm)
	if err != nil {
		slog.Warn("thread metadata merge skipped", "repo", scope.RepoKey, "pr", pr.Number, "error", err)
	}
	report.Resolved = resolved

	return report, nil
}

// applyRemoteComment imports one remote comment or reconciles it with its
// correlated local record. Returns true when a new local record was created.
func (s *SyncService) applyRemoteComment(ctx context.Context, scope model.FileScope, cm *correlationMap, rc model.RemoteComment, documentText string) bool {
	if local, ok := cm.lookup(rc.ID); ok {
		s.reconcileCorrelated(ctx, cm, local, rc)
		return false
	}

	anchor := resolveAnchorFromLine(documentText, rc.Line, rc.DiffHunk)

	comment := model.Comment{
		RepoKey:  scope.RepoKey,
		FilePath: scope.FilePath,
		Branch:   scope.Branch,
		Author: model.Author{
			DisplayName:    rc.AuthorLogin,
			SourceUsername: rc.AuthorLogin,
		},
		Content:         rc.Body,
		Type:            model.CommentTypeComment,
		AnchorStart:     anchor.Start,
		AnchorEnd:       anchor.End,
		AnchorText:      anchor.Text,
		Status:          model.CommentStatusActive,
		RemoteCommentID: rc.ID,
	}

	if rc.InReplyToID != "" {
		if parent, ok := cm.lookup(rc.InReplyToID); ok {
			// Replies share anchor fields and branch with the thread root.
			comment.ParentCommentID = parent.ID
			comment.Branch = parent.Branch
			comment.AnchorStart = parent.AnchorStart
			comment.AnchorEnd = parent.AnchorEnd
			comment.AnchorText = parent.AnchorText
		}
		// An unresolvable parent leaves the reply as a standalone root; a
		// later pass re-links it once the parent has been imported.
	}

	id, err := s.store.Create(ctx, comment)
	if err != nil {
		slog.Error("import remote comment failed", "repo", scope.RepoKey, "remote_id", rc.ID, "error", err)
		return false
	}
	comment.ID = id
	cm.register(comment)

	return true
}

// reconcileCorrelated updates an already-imported record when the remote
// side changed: body edits, and replies whose parent has since appeared.
func (s *SyncService) reconcileCorrelated(ctx context.Context, cm *correlationMap, local model.Comment, rc model.RemoteComment) {
	var patch driven.CommentPatch

	if local.Content != rc.Body && !local.Dirty {
		body := rc.Body
		patch.Content = &body
	}

	// Repair the parent link for replies imported before their parent
	// (out-of-order delivery, or a parent that failed an earlier pass).
	if rc.InReplyToID != "" && local.ParentCommentID == "" {
		if parent, ok := cm.lookup(rc.InReplyToID); ok && parent.ID != local.ID {
			patch.ParentCommentID = &parent.ID
			patch.Branch = &parent.Branch
			patch.AnchorStart = &parent.AnchorStart
			patch.AnchorEnd = &parent.AnchorEnd
			patch.AnchorText = &parent.AnchorText
		}
	}

	if patch.IsZero() {
		return
	}

	if err := s.store.Update(ctx, local.ID, patch); err != nil {
		slog.Error("update imported comment failed", "comment", local.ID, "error", err)
		return
	}

	if patch.Content != nil {
		local.Content = *patch.Content
	}
	if patch.ParentCommentID != nil {
		local.ParentCommentID = *patch.ParentCommentID
		local.Branch = *patch.Branch
		local.AnchorStart = *patch.AnchorStart
		local.AnchorEnd = *patch.AnchorEnd
		local.AnchorText = *patch.AnchorText
	}
	cm.register(local)
}

// mergeRemoteThreadState fetches thread metadata for the whole pull request
// in one batched call and applies the merge policy to every correlated
// record. Returns the number of records newly flipped to resolved.
func (s *SyncService) mergeRemoteThreadState(ctx context.Context, scope model.FileScope, pr model.PullRequestRef, cm *correlationMap) (int, error) {
	metadata, err := s.remote.FetchThreadMetadata(ctx, scope.RepoKey, pr.Number)
	if err != nil {
		return 0, err
	}

	var resolved int
	for _, remoteID := range cm.remoteIDs() {
		meta, ok := metadata[remoteID]
		if !ok {
			continue
		}
		local, _ := cm.lookup(remoteID)

		patch := mergeThreadMetadata(local, meta)
		if patch == nil {
			continue
		}

		if err := s.store.Update(ctx, local.ID, *patch); err != nil {
			slog.Error("apply thread metadata failed", "comment", local.ID, "error", err)
			continue
		}

		if patch.Status != nil && *patch.Status == model.CommentStatusResolved {
			resolved++
		}

		if patch.Status != nil {
			local.Status = *patch.Status
		}
		if patch.RemoteThreadID != nil {
			local.RemoteThreadID = *patch.RemoteThreadID
		}
		if patch.Reactions != nil {
			local.Reactions = *patch.Reactions
		}
		cm.register(local)
	}

	return resolved, nil
}
