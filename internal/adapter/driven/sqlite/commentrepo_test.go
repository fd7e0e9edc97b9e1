package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmswint/marginalia/internal/domain/model"
	"github.com/jmswint/marginalia/internal/domain/port/driven"
)

func makeComment(content string) model.Comment {
	return model.Comment{
		RepoKey:  "acme/docs",
		FilePath: "guides/setup.md",
		Branch:   "feature-1",
		Author: model.Author{
			UID:            "u1",
			DisplayName:    "Alice",
			SourceUsername: "alice",
		},
		Content:     content,
		Type:        model.CommentTypeComment,
		AnchorStart: 10,
		AnchorEnd:   25,
		AnchorText:  "this paragraph",
		Status:      model.CommentStatusActive,
	}
}

func TestCommentRepo_CreateAndGet(t *testing.T) {
	repo := NewCommentRepo(setupTestDB(t))
	ctx := context.Background()

	id, err := repo.Create(ctx, makeComment("first draft"))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := repo.Get(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, id, got.ID)
	assert.Equal(t, "acme/docs", got.RepoKey)
	assert.Equal(t, "guides/setup.md", got.FilePath)
	assert.Equal(t, "feature-1", got.Branch)
	assert.Equal(t, "Alice", got.Author.DisplayName)
	assert.Equal(t, "first draft", got.Content)
	assert.Equal(t, model.CommentTypeComment, got.Type)
	assert.Equal(t, 10, got.AnchorStart)
	assert.Equal(t, 25, got.AnchorEnd)
	assert.Equal(t, "this paragraph", got.AnchorText)
	assert.Equal(t, model.CommentStatusActive, got.Status)
	assert.Empty(t, got.ParentCommentID)
	assert.Empty(t, got.RemoteCommentID)
	assert.False(t, got.Dirty)
	assert.False(t, got.CreatedAt.IsZero())
	assert.Equal(t, got.CreatedAt, got.UpdatedAt)
}

func TestCommentRepo_Get_NotFound(t *testing.T) {
	repo := NewCommentRepo(setupTestDB(t))

	_, err := repo.Get(context.Background(), "no-such-id")
	assert.ErrorIs(t, err, driven.ErrNotFound)
}

func TestCommentRepo_ListByFile_OrdersByCreation(t *testing.T) {
	repo := NewCommentRepo(setupTestDB(t))
	ctx := context.Background()

	first, err := repo.Create(ctx, makeComment("first"))
	require.NoError(t, err)
	// Stored timestamps have millisecond precision; keep the two creates in
	// distinct milliseconds so ordering is deterministic.
	time.Sleep(2 * time.Millisecond)
	second, err := repo.Create(ctx, makeComment("second"))
	require.NoError(t, err)

	other := makeComment("other file")
	other.FilePath = "README.md"
	_, err = repo.Create(ctx, other)
	require.NoError(t, err)

	comments, err := repo.ListByFile(ctx, "acme/docs", "guides/setup.md")
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, first, comments[0].ID)
	assert.Equal(t, second, comments[1].ID)
}

func TestCommentRepo_Update(t *testing.T) {
	repo := NewCommentRepo(setupTestDB(t))
	ctx := context.Background()

	id, err := repo.Create(ctx, makeComment("original"))
	require.NoError(t, err)

	content := "edited"
	status := model.CommentStatusResolved
	remoteID := "12345"
	threadID := "THREAD_1"
	dirty := true
	err = repo.Update(ctx, id, driven.CommentPatch{
		Content:         &content,
		Status:          &status,
		RemoteCommentID: &remoteID,
		RemoteThreadID:  &threadID,
		Dirty:           &dirty,
	})
	require.NoError(t, err)

	got, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "edited", got.Content)
	assert.Equal(t, model.CommentStatusResolved, got.Status)
	assert.Equal(t, "12345", got.RemoteCommentID)
	assert.Equal(t, "THREAD_1", got.RemoteThreadID)
	assert.True(t, got.Dirty)
}

func TestCommentRepo_Update_EmptyPatchIsNoOp(t *testing.T) {
	repo := NewCommentRepo(setupTestDB(t))
	ctx := context.Background()

	id, err := repo.Create(ctx, makeComment("unchanged"))
	require.NoError(t, err)
	before, err := repo.Get(ctx, id)
	require.NoError(t, err)

	require.NoError(t, repo.Update(ctx, id, driven.CommentPatch{}))

	after, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, before.UpdatedAt, after.UpdatedAt)
}

func TestCommentRepo_Update_NotFound(t *testing.T) {
	repo := NewCommentRepo(setupTestDB(t))

	content := "ghost"
	err := repo.Update(context.Background(), "no-such-id", driven.CommentPatch{Content: &content})
	assert.ErrorIs(t, err, driven.ErrNotFound)
}

func TestCommentRepo_ReactionsRoundTrip(t *testing.T) {
	repo := NewCommentRepo(setupTestDB(t))
	ctx := context.Background()

	c := makeComment("with reactions")
	c.Reactions = model.Reactions{"+1": {"u1", "github:bob"}, "eyes": {"u2"}}
	id, err := repo.Create(ctx, c)
	require.NoError(t, err)

	got, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, c.Reactions, got.Reactions)

	// Clearing reactions via patch stores an empty object, read back as nil.
	empty := model.Reactions{}
	require.NoError(t, repo.Update(ctx, id, driven.CommentPatch{Reactions: &empty}))

	got, err = repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, got.Reactions)
}

func TestCommentRepo_ParentLink(t *testing.T) {
	repo := NewCommentRepo(setupTestDB(t))
	ctx := context.Background()

	rootID, err := repo.Create(ctx, makeComment("root"))
	require.NoError(t, err)

	reply := makeComment("reply")
	reply.ParentCommentID = rootID
	replyID, err := repo.Create(ctx, reply)
	require.NoError(t, err)

	got, err := repo.Get(ctx, replyID)
	require.NoError(t, err)
	assert.Equal(t, rootID, got.ParentCommentID)
	assert.True(t, got.IsReply())

	// Detaching sets the column back to NULL.
	none := ""
	require.NoError(t, repo.Update(ctx, replyID, driven.CommentPatch{ParentCommentID: &none}))

	got, err = repo.Get(ctx, replyID)
	require.NoError(t, err)
	assert.Empty(t, got.ParentCommentID)
}

func TestCommentRepo_Delete(t *testing.T) {
	repo := NewCommentRepo(setupTestDB(t))
	ctx := context.Background()

	id, err := repo.Create(ctx, makeComment("doomed"))
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, id))

	_, err = repo.Get(ctx, id)
	assert.ErrorIs(t, err, driven.ErrNotFound)

	assert.ErrorIs(t, repo.Delete(ctx, id), driven.ErrNotFound)
}

func TestCommentRepo_Subscribe(t *testing.T) {
	repo := NewCommentRepo(setupTestDB(t))
	ctx := context.Background()

	var snapshots [][]model.Comment
	unsubscribe := repo.Subscribe("acme/docs", "guides/setup.md", func(comments []model.Comment) {
		snapshots = append(snapshots, comments)
	})

	id, err := repo.Create(ctx, makeComment("first"))
	require.NoError(t, err)
	require.Len(t, snapshots, 1)
	require.Len(t, snapshots[0], 1)
	assert.Equal(t, "first", snapshots[0][0].Content)

	content := "edited"
	require.NoError(t, repo.Update(ctx, id, driven.CommentPatch{Content: &content}))
	require.Len(t, snapshots, 2)
	assert.Equal(t, "edited", snapshots[1][0].Content)

	// Mutations in other scopes never notify this subscriber.
	other := makeComment("elsewhere")
	other.FilePath = "README.md"
	_, err = repo.Create(ctx, other)
	require.NoError(t, err)
	assert.Len(t, snapshots, 2)

	unsubscribe()
	require.NoError(t, repo.Delete(ctx, id))
	assert.Len(t, snapshots, 2)
}
