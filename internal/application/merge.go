package application

import (
	"github.com/jmswint/marginalia/internal/domain/model"
	"github.com/jmswint/marginalia/internal/domain/port/driven"
)

// mergeThreadMetadata computes the partial update needed to fold remote
// thread state into a local record. Returns nil when the merge is a deep
// no-op, so idempotent re-application produces zero writes.
//
// The remote side is authoritative for resolution once a thread exists.
// Reactions merge per emoji: local users without a remote identity are
// preserved; the remote-sourced portion is replaced wholesale so remote
// removals propagate.
func mergeThreadMetadata(local model.Comment, meta model.ThreadMetadata) *driven.CommentPatch {
	var patch driven.CommentPatch

	remoteResolved := meta.IsResolved
	localResolved := local.Status == model.CommentStatusResolved
	if remoteResolved != localResolved {
		status := model.CommentStatusActive
		if remoteResolved {
			status = model.CommentStatusResolved
		}
		patch.Status = &status
	}

	if meta.ThreadID != "" && meta.ThreadID != local.RemoteThreadID {
		threadID := meta.ThreadID
		patch.RemoteThreadID = &threadID
	}

	merged := mergeReactions(local.Reactions, meta.Reactions)
	if !merged.Equal(local.Reactions) {
		patch.Reactions = &merged
	}

	if patch.IsZero() {
		return nil
	}
	return &patch
}

// mergeReactions unions, per emoji, the local non-remote-sourced users with
// the remote-sourced users supplied now. Emoji keys whose resulting set is
// empty are dropped, never retained.
func mergeReactions(local model.Reactions, remote []model.RemoteReaction) model.Reactions {
	merged := model.Reactions{}

	for emoji, users := range local {
		for _, uid := range users {
			if !model.IsRemoteUserID(uid) {
				merged[emoji] = append(merged[emoji], uid)
			}
		}
	}

	for _, rr := range remote {
		uid := model.RemoteUserID(rr.UserLogin)
		if !containsString(merged[rr.Content], uid) {
			merged[rr.Content] = append(merged[rr.Content], uid)
		}
	}

	return merged
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
