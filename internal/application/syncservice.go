package application

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/jmswint/marginalia/internal/domain/model"
	"github.com/jmswint/marginalia/internal/domain/port/driven"
)

// Watch binds a document scope to the pull request whose review threads
// mirror its comments.
type Watch struct {
	Scope model.FileScope
	PR    model.PullRequestRef
}

// SyncReport summarizes one full sync pass for observability.
type SyncReport struct {
	Imported int
	Resolved int
	Pushed   int
	Orphaned int
}

// WarnFunc surfaces a non-blocking, user-visible warning for an outbound
// push failure. The local comment is never rolled back.
type WarnFunc func(commentID, message string)

// refreshRequest represents a manual sync trigger for one watch.
type refreshRequest struct {
	watch Watch
	done  chan error
}

// SyncService orchestrates periodic bidirectional synchronization between
// the local comment store and the remote host's review threads.
//
// At most one pass runs at a time for a given (repository, file) scope; a
// concurrent trigger while one is in flight is dropped, not queued -- the
// next tick picks up any missed state. Consistency is eventual, achieved by
// idempotent re-application rather than locking across the two stores.
type SyncService struct {
	store    driven.CommentStore
	remote   driven.RemoteReview
	content  driven.ContentProvider
	watches  []Watch
	interval time.Duration
	warn     WarnFunc

	refreshCh chan refreshRequest

	mu         sync.Mutex
	inFlight   map[string]bool
	orphanSeen map[string]uint64 // scope key -> last scanned content hash
}

// NewSyncService creates a SyncService with all required dependencies.
// warn may be nil; warnings are then only logged.
func NewSyncService(
	store driven.CommentStore,
	remote driven.RemoteReview,
	content driven.ContentProvider,
	watches []Watch,
	interval time.Duration,
	warn WarnFunc,
) *SyncService {
	if warn == nil {
		warn = func(commentID, message string) {
			slog.Warn("comment sync warning", "comment", commentID, "message", message)
		}
	}
	return &SyncService{
		store:      store,
		remote:     remote,
		content:    content,
		watches:    watches,
		interval:   interval,
		warn:       warn,
		refreshCh:  make(chan refreshRequest),
		inFlight:   make(map[string]bool),
		orphanSeen: make(map[string]uint64),
	}
}

// Start begins the sync loop. It runs an immediate pass over all watches,
// then repeats on the configured interval, and serves manual refresh
// requests in between. Start blocks until the context is canceled.
func (s *SyncService) Start(ctx context.Context) {
	s.syncAll(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("sync service stopped")
			return
		case <-ticker.C:
			s.syncAll(ctx)
		case req := <-s.refreshCh:
			_, err := s.SyncFile(ctx, req.watch)
			req.done <- err
		}
	}
}

// Refresh triggers a manual sync for one watch, bypassing the interval.
// It blocks until the pass completes or the context is canceled.
func (s *SyncService) Refresh(ctx context.Context, w Watch) error {
	done := make(chan error, 1)

	select {
	case s.refreshCh <- refreshRequest{watch: w, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// syncAll runs a pass over every configured watch.
func (s *SyncService) syncAll(ctx context.Context) {
	start := time.Now()
	var syncErrors int

	for _, w := range s.watches {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.SyncFile(ctx, w); err != nil {
			slog.Error("sync pass failed", "repo", w.Scope.RepoKey, "file", w.Scope.FilePath, "error", err)
			syncErrors++
		}
	}

	slog.Info("sync cycle complete",
		"watches", len(s.watches),
		"errors", syncErrors,
		"duration", time.Since(start).Round(time.Millisecond),
	)
}

// SyncFile runs one full pass for a watch: inbound import, outbound push,
// then an orphan scan against current document content. If a pass for the
// same scope is already in flight the trigger is dropped and a zero report
// is returned.
func (s *SyncService) SyncFile(ctx context.Context, w Watch) (SyncReport, error) {
	key := scopeKey(w.Scope)
	if !s.acquire(key) {
		slog.Debug("sync already in flight, dropping trigger", "scope", key)
		return SyncReport{}, nil
	}
	defer s.release(key)

	var report SyncReport

	inbound, err := s.SyncInbound(ctx, w.Scope, w.PR)
	if err != nil {
		return report, err
	}
	report.Imported = inbound.Imported
	report.Resolved = inbound.Resolved

	outbound, err := s.SyncOutbound(ctx, w.Scope, w.PR, "")
	if err != nil {
		return report, err
	}
	report.Pushed = outbound.Pushed

	doc, err := s.content.GetContent(ctx, w.Scope.RepoKey, w.Scope.FilePath, w.Scope.Branch)
	if err == nil {
		orphaned, err := s.ScanForOrphans(ctx, w.Scope, doc)
		if err != nil {
			slog.Error("orphan scan failed", "scope", key, "error", err)
		}
		report.Orphaned = orphaned
	}

	slog.Debug("sync pass complete",
		"scope", key,
		"imported", report.Imported,
		"resolved", report.Resolved,
		"pushed", report.Pushed,
		"orphaned", report.Orphaned,
	)

	return report, nil
}

// ScanForOrphans resolves active root comments whose anchor text no longer
// appears in the document. It runs at most once per distinct content value
// for a given scope; repeated calls with identical content are no-ops.
func (s *SyncService) ScanForOrphans(ctx context.Context, scope model.FileScope, documentText string) (int, error) {
	key := scopeKey(scope)
	h := contentHash(documentText)

	s.mu.Lock()
	if s.orphanSeen[key] == h {
		s.mu.Unlock()
		return 0, nil
	}
	s.orphanSeen[key] = h
	s.mu.Unlock()

	comments, err := s.store.ListByFile(ctx, scope.RepoKey, scope.FilePath)
	if err != nil {
		return 0, err
	}

	resolved := model.CommentStatusResolved
	var count int
	for _, id := range DetectOrphans(documentText, comments) {
		if err := s.store.Update(ctx, id, driven.CommentPatch{Status: &resolved}); err != nil {
			slog.Error("resolve orphaned comment failed", "comment", id, "error", err)
			continue
		}
		count++
	}

	return count, nil
}

func (s *SyncService) acquire(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[key] {
		return false
	}
	s.inFlight[key] = true
	return true
}

func (s *SyncService) release(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, key)
}

func scopeKey(scope model.FileScope) string {
	return scope.RepoKey + "\x00" + scope.FilePath + "\x00" + scope.Branch
}

func contentHash(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}
