package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jmswint/marginalia/internal/domain/model"
	"github.com/jmswint/marginalia/internal/domain/port/driven"
)

// --- In-memory CommentStore ---

// memStore is an in-memory CommentStore that counts writes so tests can
// assert idempotency (a second pass with no remote changes performs zero
// writes).
type memStore struct {
	mu       sync.Mutex
	seq      int
	comments map[string]model.Comment

	creates int
	updates int
	deletes int
}

func newMemStore() *memStore {
	return &memStore{comments: make(map[string]model.Comment)}
}

func (s *memStore) ListByFile(_ context.Context, repoKey, filePath string) ([]model.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Comment
	for _, c := range s.comments {
		if c.RepoKey == repoKey && c.FilePath == filePath {
			out = append(out, c)
		}
	}
	// Creation time ascending, matching store contract.
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].CreatedAt.Before(out[i].CreatedAt) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (s *memStore) Get(_ context.Context, id string) (*model.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.comments[id]
	if !ok {
		return nil, driven.ErrNotFound
	}
	return &c, nil
}

func (s *memStore) Create(_ context.Context, comment model.Comment) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	s.creates++
	comment.ID = fmt.Sprintf("local-%d", s.seq)
	comment.CreatedAt = time.Unix(int64(s.seq), 0).UTC()
	comment.UpdatedAt = comment.CreatedAt
	s.comments[comment.ID] = comment
	return comment.ID, nil
}

func (s *memStore) Update(_ context.Context, id string, patch driven.CommentPatch) error {
	if patch.IsZero() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.comments[id]
	if !ok {
		return driven.ErrNotFound
	}

	s.updates++
	if patch.Content != nil {
		c.Content = *patch.Content
	}
	if patch.Status != nil {
		c.Status = *patch.Status
	}
	if patch.RemoteCommentID != nil {
		c.RemoteCommentID = *patch.RemoteCommentID
	}
	if patch.RemoteThreadID != nil {
		c.RemoteThreadID = *patch.RemoteThreadID
	}
	if patch.Reactions != nil {
		c.Reactions = *patch.Reactions
	}
	if patch.ParentCommentID != nil {
		c.ParentCommentID = *patch.ParentCommentID
	}
	if patch.Branch != nil {
		c.Branch = *patch.Branch
	}
	if patch.AnchorStart != nil {
		c.AnchorStart = *patch.AnchorStart
	}
	if patch.AnchorEnd != nil {
		c.AnchorEnd = *patch.AnchorEnd
	}
	if patch.AnchorText != nil {
		c.AnchorText = *patch.AnchorText
	}
	if patch.Dirty != nil {
		c.Dirty = *patch.Dirty
	}
	c.UpdatedAt = time.Now().UTC()
	s.comments[id] = c
	return nil
}

func (s *memStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.comments[id]; !ok {
		return driven.ErrNotFound
	}
	s.deletes++
	delete(s.comments, id)
	return nil
}

func (s *memStore) Subscribe(_, _ string, _ func([]model.Comment)) func() {
	return func() {}
}

func (s *memStore) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creates + s.updates + s.deletes
}

func (s *memStore) byRemoteID(remoteID string) []model.Comment {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Comment
	for _, c := range s.comments {
		if c.RemoteCommentID == remoteID {
			out = append(out, c)
		}
	}
	return out
}

// --- Fake RemoteReview ---

type pushedComment struct {
	input driven.ReviewCommentInput
	id    string
}

type pushedReply struct {
	parentID string
	body     string
	id       string
}

// fakeRemote is a scriptable RemoteReview.
type fakeRemote struct {
	mu       sync.Mutex
	nextID   int
	comments []model.RemoteComment
	metadata map[string]model.ThreadMetadata

	listErr   error
	createErr error
	replyErr  error
	metaErr   error

	created []pushedComment
	replied []pushedReply
	updated map[string]string // remote id -> last pushed body
	deleted []string
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		metadata: make(map[string]model.ThreadMetadata),
		updated:  make(map[string]string),
		nextID:   1000,
	}
}

func (f *fakeRemote) ListReviewComments(_ context.Context, _ string, _ int, path string) ([]model.RemoteComment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []model.RemoteComment
	for _, c := range f.comments {
		if c.Path == path {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeRemote) CreateReviewComment(_ context.Context, _ string, _ int, input driven.ReviewCommentInput) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.createErr != nil {
		return "", f.createErr
	}
	f.nextID++
	id := fmt.Sprintf("%d", f.nextID)
	f.created = append(f.created, pushedComment{input: input, id: id})
	return id, nil
}

func (f *fakeRemote) ReplyToComment(_ context.Context, _ string, _ int, parentID, body string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.replyErr != nil {
		return "", f.replyErr
	}
	f.nextID++
	id := fmt.Sprintf("%d", f.nextID)
	f.replied = append(f.replied, pushedReply{parentID: parentID, body: body, id: id})
	return id, nil
}

func (f *fakeRemote) UpdateComment(_ context.Context, _, commentID, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated[commentID] = body
	return nil
}

func (f *fakeRemote) DeleteComment(_ context.Context, _, commentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, commentID)
	return nil
}

func (f *fakeRemote) FetchThreadMetadata(_ context.Context, _ string, _ int) (map[string]model.ThreadMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.metaErr != nil {
		return nil, f.metaErr
	}
	out := make(map[string]model.ThreadMetadata, len(f.metadata))
	for k, v := range f.metadata {
		out[k] = v
	}
	return out, nil
}

// --- Fake ContentProvider ---

type fakeContent struct {
	mu   sync.Mutex
	docs map[string]string
}

func newFakeContent() *fakeContent {
	return &fakeContent{docs: make(map[string]string)}
}

func (f *fakeContent) set(repoKey, filePath, branch, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[repoKey+"\x00"+filePath+"\x00"+branch] = content
}

func (f *fakeContent) GetContent(_ context.Context, repoKey, filePath, branch string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, ok := f.docs[repoKey+"\x00"+filePath+"\x00"+branch]
	if !ok {
		return "", driven.ErrContentUnavailable
	}
	return doc, nil
}

// --- Harness ---

type syncFixture struct {
	store   *memStore
	remote  *fakeRemote
	content *fakeContent
	svc     *SyncService

	mu       sync.Mutex
	warnings []string
}

func newSyncFixture(watches ...Watch) *syncFixture {
	f := &syncFixture{
		store:   newMemStore(),
		remote:  newFakeRemote(),
		content: newFakeContent(),
	}
	f.svc = NewSyncService(f.store, f.remote, f.content, watches, time.Minute, func(commentID, message string) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.warnings = append(f.warnings, commentID+": "+message)
	})
	return f
}

func (f *syncFixture) warningCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.warnings)
}
