package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jmswint/marginalia/internal/domain/model"
	"github.com/jmswint/marginalia/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CommentStore = (*CommentRepo)(nil)

// CommentRepo is the SQLite implementation of the CommentStore port
// interface. Record ids are uuids assigned on create; Reactions are
// serialized as a JSON object in a TEXT column.
//
// Subscriptions have snapshot semantics: after every mutation in a scope,
// each subscriber receives the full current comment set for that scope,
// ordered by creation time ascending.
type CommentRepo struct {
	db *DB

	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]func([]model.Comment) // scope key -> subscriber id -> callback
}

// NewCommentRepo creates a new CommentRepo backed by the given DB.
func NewCommentRepo(db *DB) *CommentRepo {
	return &CommentRepo{
		db:   db,
		subs: make(map[string]map[int]func([]model.Comment)),
	}
}

const commentColumns = `
	id, repo_key, file_path, branch,
	author_uid, author_display_name, author_photo_url, author_source_username,
	content, type, anchor_start, anchor_end, anchor_text,
	reactions, parent_comment_id, remote_comment_id, remote_thread_id,
	status, dirty, created_at, updated_at`

// ListByFile returns all comments for the repo+file scope, ordered by
// creation time ascending.
func (r *CommentRepo) ListByFile(ctx context.Context, repoKey, filePath string) ([]model.Comment, error) {
	query := `SELECT` + commentColumns + `
		FROM comments
		WHERE repo_key = ? AND file_path = ?
		ORDER BY created_at, id`

	rows, err := r.db.Reader.QueryContext(ctx, query, repoKey, filePath)
	if err != nil {
		return nil, fmt.Errorf("query comments for %s:%s: %w", repoKey, filePath, err)
	}
	defer rows.Close()

	var comments []model.Comment
	for rows.Next() {
		comment, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, *comment)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}

	return comments, nil
}

// Get returns a single comment by id.
func (r *CommentRepo) Get(ctx context.Context, id string) (*model.Comment, error) {
	query := `SELECT` + commentColumns + ` FROM comments WHERE id = ?`

	comment, err := scanComment(r.db.Reader.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, driven.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get comment %s: %w", id, err)
	}

	return comment, nil
}

// Create inserts a new comment, assigning its id and timestamps. Returns the
// new record id.
func (r *CommentRepo) Create(ctx context.Context, comment model.Comment) (string, error) {
	const query = `
		INSERT INTO comments (` + commentColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	id := uuid.NewString()
	now := time.Now().UTC()

	reactionsJSON, err := marshalReactions(comment.Reactions)
	if err != nil {
		return "", fmt.Errorf("marshal reactions: %w", err)
	}

	_, err = r.db.Writer.ExecContext(ctx, query,
		id, comment.RepoKey, comment.FilePath, comment.Branch,
		comment.Author.UID, comment.Author.DisplayName, comment.Author.PhotoURL, comment.Author.SourceUsername,
		comment.Content, string(comment.Type), comment.AnchorStart, comment.AnchorEnd, comment.AnchorText,
		reactionsJSON, nullable(comment.ParentCommentID), nullable(comment.RemoteCommentID), nullable(comment.RemoteThreadID),
		string(comment.Status), boolToInt(comment.Dirty), now.Format(timeFormat), now.Format(timeFormat),
	)
	if err != nil {
		return "", fmt.Errorf("insert comment: %w", err)
	}

	r.notify(ctx, comment.RepoKey, comment.FilePath)
	return id, nil
}

// Update applies a partial update and bumps updated_at. An empty patch is a
// no-op that produces no write and no notification.
func (r *CommentRepo) Update(ctx context.Context, id string, patch driven.CommentPatch) error {
	if patch.IsZero() {
		return nil
	}

	existing, err := r.Get(ctx, id)
	if err != nil {
		return err
	}

	var sets []string
	var args []any

	appendSet := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}

	if patch.Content != nil {
		appendSet("content", *patch.Content)
	}
	if patch.Status != nil {
		appendSet("status", string(*patch.Status))
	}
	if patch.RemoteCommentID != nil {
		appendSet("remote_comment_id", nullable(*patch.RemoteCommentID))
	}
	if patch.RemoteThreadID != nil {
		appendSet("remote_thread_id", nullable(*patch.RemoteThreadID))
	}
	if patch.Reactions != nil {
		reactionsJSON, err := marshalReactions(*patch.Reactions)
		if err != nil {
			return fmt.Errorf("marshal reactions: %w", err)
		}
		appendSet("reactions", reactionsJSON)
	}
	if patch.ParentCommentID != nil {
		appendSet("parent_comment_id", nullable(*patch.ParentCommentID))
	}
	if patch.Branch != nil {
		appendSet("branch", *patch.Branch)
	}
	if patch.AnchorStart != nil {
		appendSet("anchor_start", *patch.AnchorStart)
	}
	if patch.AnchorEnd != nil {
		appendSet("anchor_end", *patch.AnchorEnd)
	}
	if patch.AnchorText != nil {
		appendSet("anchor_text", *patch.AnchorText)
	}
	if patch.Dirty != nil {
		appendSet("dirty", boolToInt(*patch.Dirty))
	}
	appendSet("updated_at", time.Now().UTC().Format(timeFormat))

	query := "UPDATE comments SET "
	for i, set := range sets {
		if i > 0 {
			query += ", "
		}
		query += set
	}
	query += " WHERE id = ?"
	args = append(args, id)

	result, err := r.db.Writer.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update comment %s: %w", id, err)
	}

	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return driven.ErrNotFound
	}

	r.notify(ctx, existing.RepoKey, existing.FilePath)
	return nil
}

// Delete removes a comment by id.
func (r *CommentRepo) Delete(ctx context.Context, id string) error {
	existing, err := r.Get(ctx, id)
	if err != nil {
		return err
	}

	if _, err := r.db.Writer.ExecContext(ctx, `DELETE FROM comments WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete comment %s: %w", id, err)
	}

	r.notify(ctx, existing.RepoKey, existing.FilePath)
	return nil
}

// Subscribe registers a callback for snapshot notifications on the scope.
// The returned func removes the subscription.
func (r *CommentRepo) Subscribe(repoKey, filePath string, fn func([]model.Comment)) func() {
	key := repoKey + "\x00" + filePath

	r.mu.Lock()
	r.nextID++
	subID := r.nextID
	if r.subs[key] == nil {
		r.subs[key] = make(map[int]func([]model.Comment))
	}
	r.subs[key][subID] = fn
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.subs[key], subID)
		if len(r.subs[key]) == 0 {
			delete(r.subs, key)
		}
	}
}

// notify delivers the current full comment set for the scope to every
// subscriber. Failures to load the snapshot are logged, not propagated;
// the mutation itself already succeeded.
func (r *CommentRepo) notify(ctx context.Context, repoKey, filePath string) {
	key := repoKey + "\x00" + filePath

	r.mu.Lock()
	callbacks := make([]func([]model.Comment), 0, len(r.subs[key]))
	for _, fn := range r.subs[key] {
		callbacks = append(callbacks, fn)
	}
	r.mu.Unlock()

	if len(callbacks) == 0 {
		return
	}

	snapshot, err := r.ListByFile(ctx, repoKey, filePath)
	if err != nil {
		slog.Error("load snapshot for subscribers failed", "repo", repoKey, "file", filePath, "error", err)
		return
	}

	for _, fn := range callbacks {
		fn(snapshot)
	}
}

// timeFormat is the canonical stored timestamp layout.
const timeFormat = "2006-01-02T15:04:05.000Z"

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanComment(s scanner) (*model.Comment, error) {
	var comment model.Comment
	var typ, status, reactionsJSON string
	var parentID, remoteID, threadID sql.NullString
	var dirty int
	var createdAt, updatedAt string

	err := s.Scan(
		&comment.ID, &comment.RepoKey, &comment.FilePath, &comment.Branch,
		&comment.Author.UID, &comment.Author.DisplayName, &comment.Author.PhotoURL, &comment.Author.SourceUsername,
		&comment.Content, &typ, &comment.AnchorStart, &comment.AnchorEnd, &comment.AnchorText,
		&reactionsJSON, &parentID, &remoteID, &threadID,
		&status, &dirty, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	comment.Type = model.CommentType(typ)
	comment.Status = model.CommentStatus(status)
	comment.Dirty = dirty != 0
	comment.ParentCommentID = parentID.String
	comment.RemoteCommentID = remoteID.String
	comment.RemoteThreadID = threadID.String

	if err := json.Unmarshal([]byte(reactionsJSON), &comment.Reactions); err != nil {
		return nil, fmt.Errorf("parse reactions: %w", err)
	}
	if len(comment.Reactions) == 0 {
		comment.Reactions = nil
	}

	comment.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	comment.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return &comment, nil
}

func marshalReactions(r model.Reactions) (string, error) {
	if len(r) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// parseTime tries multiple SQLite datetime formats.
func parseTime(s string) (time.Time, error) {
	formats := []string{
		timeFormat,
		"2006-01-02T15:04:05Z",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05.000",
		time.RFC3339,
		time.RFC3339Nano,
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized time format: %s", s)
}
