package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmswint/marginalia/internal/domain/model"
)

func TestSyncFile_FullPass(t *testing.T) {
	f := newSyncFixture()
	f.content.set(testScope.RepoKey, testScope.FilePath, testScope.Branch, "alpha\nbeta\n")
	f.remote.comments = []model.RemoteComment{
		{ID: "100", Body: "from reviewer", Path: testScope.FilePath, Line: 2},
	}
	seedLocalComment(t, f, model.Comment{
		Branch:     testScope.Branch,
		Content:    "from editor",
		AnchorText: "alpha",
	})
	seedLocalComment(t, f, model.Comment{
		Branch:     testScope.Branch,
		Content:    "anchored to deleted text",
		AnchorText: "vanished",
	})

	report, err := f.svc.SyncFile(context.Background(), Watch{Scope: testScope, PR: testPR})

	require.NoError(t, err)
	assert.Equal(t, 1, report.Imported)
	// Both local roots push: the orphan scan runs after outbound, so the
	// stale comment still goes out before being resolved.
	assert.Equal(t, 2, report.Pushed)
	assert.Equal(t, 1, report.Orphaned)
}

func TestSyncFile_DropsTriggerWhileInFlight(t *testing.T) {
	f := newSyncFixture()
	f.remote.comments = []model.RemoteComment{
		{ID: "100", Body: "note", Path: testScope.FilePath, Line: 1},
	}

	// Simulate a pass already holding the scope.
	require.True(t, f.svc.acquire(scopeKey(testScope)))

	report, err := f.svc.SyncFile(context.Background(), Watch{Scope: testScope, PR: testPR})

	require.NoError(t, err)
	assert.Equal(t, SyncReport{}, report)
	assert.Empty(t, f.store.byRemoteID("100"), "dropped trigger must not touch the store")

	// After release, the next trigger proceeds normally.
	f.svc.release(scopeKey(testScope))
	report, err = f.svc.SyncFile(context.Background(), Watch{Scope: testScope, PR: testPR})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Imported)
}

func TestScanForOrphans_DebouncesByContent(t *testing.T) {
	f := newSyncFixture()
	seedLocalComment(t, f, model.Comment{Content: "note", AnchorText: "stale"})

	count, err := f.svc.ScanForOrphans(context.Background(), testScope, "fresh content")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Identical content: the scan is skipped entirely.
	writes := f.store.writeCount()
	count, err = f.svc.ScanForOrphans(context.Background(), testScope, "fresh content")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Equal(t, writes, f.store.writeCount())

	// New content triggers a fresh scan.
	seedLocalComment(t, f, model.Comment{Content: "another", AnchorText: "also stale"})
	count, err = f.svc.ScanForOrphans(context.Background(), testScope, "changed content")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestScanForOrphans_ResolvesOnlyMissingAnchors(t *testing.T) {
	f := newSyncFixture()
	kept := seedLocalComment(t, f, model.Comment{Content: "alive", AnchorText: "present"})
	gone := seedLocalComment(t, f, model.Comment{Content: "dead", AnchorText: "absent"})

	_, err := f.svc.ScanForOrphans(context.Background(), testScope, "still present here")
	require.NoError(t, err)

	keptAfter, err := f.store.Get(context.Background(), kept.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CommentStatusActive, keptAfter.Status)

	goneAfter, err := f.store.Get(context.Background(), gone.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CommentStatusResolved, goneAfter.Status)
}
