package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmswint/marginalia/internal/domain/model"
	"github.com/jmswint/marginalia/internal/domain/port/driven"
)

// OutboundReport holds the counts of an outbound pass.
type OutboundReport struct {
	Pushed int
}

// SyncOutbound pushes local comments that do not yet exist on the remote
// host, and propagates local body edits to already-synced comments.
//
// Replies whose parent has not been pushed yet are skipped and retried on
// the next pass. A position rejected as outside the pull request's diff is
// an expected outcome and is skipped silently. Any other push failure is
// logged, surfaced through the warn callback, and left unsynced for retry;
// the local record is never rolled back.
func (s *SyncService) SyncOutbound(ctx context.Context, scope model.FileScope, pr model.PullRequestRef, commitSHA string) (OutboundReport, error) {
	var report OutboundReport

	locals, err := s.store.ListByFile(ctx, scope.RepoKey, scope.FilePath)
	if err != nil {
		return report, fmt.Errorf("listing local comments for %s: %w", scope.RepoKey, err)
	}

	documentText, err := s.content.GetContent(ctx, scope.RepoKey, scope.FilePath, scope.Branch)
	if err != nil {
		documentText = ""
	}

	byID := make(map[string]model.Comment, len(locals))
	for _, c := range locals {
		byID[c.ID] = c
	}

	// Creation-time order from the store means roots come before their
	// replies, so a parent pushed in this pass unblocks its replies below.
	for _, c := range locals {
		if c.Branch != "" && c.Branch != scope.Branch {
			continue
		}

		if c.IsSynced() {
			if c.Dirty {
				s.pushLocalEdit(ctx, scope, byID[c.ID])
			}
			continue
		}

		var remoteID string
		var pushErr error

		if c.IsReply() {
			parent, ok := byID[c.ParentCommentID]
			if !ok || !parent.IsSynced() {
				// Cannot post a reply before its parent exists remotely.
				// Left pending; not an error.
				continue
			}
			remoteID, pushErr = s.remote.ReplyToComment(ctx, scope.RepoKey, pr.Number, parent.RemoteCommentID, outboundBody(c))
		} else {
			input := driven.ReviewCommentInput{
				Body:     outboundBody(c),
				CommitID: commitSHA,
				Path:     scope.FilePath,
				Line:     1, // Fallback when the anchor resolves nowhere.
			}
			if pos := resolveLineFromAnchor(documentText, c.AnchorText, c.AnchorStart); pos != nil {
				input.Line = pos.Line
				input.StartLine = pos.StartLine
			}
			remoteID, pushErr = s.remote.CreateReviewComment(ctx, scope.RepoKey, pr.Number, input)
		}

		if pushErr != nil {
			if errors.Is(pushErr, driven.ErrOutsideDiff) {
				// The file wasn't touched in this PR; nothing to do here yet.
				slog.Debug("comment outside pull request diff, skipping", "comment", c.ID)
				continue
			}
			slog.Error("push comment failed", "comment", c.ID, "repo", scope.RepoKey, "error", pushErr)
			s.warn(c.ID, "comment saved locally but couldn't sync")
			continue
		}

		id := remoteID
		clean := false
		if err := s.store.Update(ctx, c.ID, driven.CommentPatch{RemoteCommentID: &id, Dirty: &clean}); err != nil {
			slog.Error("record remote comment id failed", "comment", c.ID, "remote_id", remoteID, "error", err)
			continue
		}

		c.RemoteCommentID = remoteID
		byID[c.ID] = c
		report.Pushed++
	}

	return report, nil
}

// pushLocalEdit propagates a locally edited body to the remote comment and
// clears the dirty flag on success.
func (s *SyncService) pushLocalEdit(ctx context.Context, scope model.FileScope, c model.Comment) {
	if err := s.remote.UpdateComment(ctx, scope.RepoKey, c.RemoteCommentID, outboundBody(c)); err != nil {
		slog.Error("push comment edit failed", "comment", c.ID, "error", err)
		s.warn(c.ID, "comment edit saved locally but couldn't sync")
		return
	}

	clean := false
	if err := s.store.Update(ctx, c.ID, driven.CommentPatch{Dirty: &clean}); err != nil {
		slog.Error("clear dirty flag failed", "comment", c.ID, "error", err)
	}
}

// outboundBody renders the comment content for the remote host. Suggestion
// comments are fenced into the host's suggestion block format so they show
// up as applyable changes.
func outboundBody(c model.Comment) string {
	if c.Type != model.CommentTypeSuggestion {
		return c.Content
	}
	if strings.Contains(c.Content, "```suggestion") {
		return c.Content
	}
	return "```suggestion\n" + strings.TrimRight(c.Content, "\n") + "\n```"
}
