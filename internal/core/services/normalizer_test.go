package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/cloudpoll/internal/core/domain"
)

// mockResolver serves parent refs from a map and counts lookups.
type mockResolver struct {
	refs  map[string]domain.ParentRef
	calls map[string]int
	err   error
}

func newMockResolver(refs ...domain.ParentRef) *mockResolver {
	r := &mockResolver{refs: make(map[string]domain.ParentRef), calls: make(map[string]int)}
	for _, ref := range refs {
		r.refs[ref.ID] = ref
	}
	return r
}

func (r *mockResolver) ResolveParent(_ context.Context, id string) (domain.ParentRef, error) {
	r.calls[id]++
	if r.err != nil {
		return domain.ParentRef{}, r.err
	}
	ref, ok := r.refs[id]
	if !ok {
		return domain.ParentRef{}, domain.ErrNotFound
	}
	return ref, nil
}

// mockInspector answers deleted-item lookups.
type mockInspector struct {
	found domain.RawChangeItem
	err   error
	calls int
}

func (m *mockInspector) InspectDeleted(_ context.Context, _ domain.RawChangeItem) (domain.RawChangeItem, error) {
	m.calls++
	return m.found, m.err
}

func testAccount(t domain.AccountType) domain.Account {
	return domain.Account{ID: "acct-1", Type: t, Position: "42"}
}

func TestNormalize_PathHintAndWalkAgree(t *testing.T) {
	resolver := newMockResolver(
		domain.ParentRef{ID: "root", IsRoot: true},
		domain.ParentRef{ID: "fa", Name: "a", ParentID: "root"},
		domain.ParentRef{ID: "fb", Name: "b", ParentID: "fa"},
	)
	n := NewChangeNormalizer()
	account := testAccount(domain.AccountTypeGoogleDrive)

	hinted, ok, err := n.Normalize(context.Background(), account, domain.RawChangeItem{
		ID: "f1", Name: "c.txt", PathHint: "/a/b/c.txt", Kind: domain.ItemKindFile, Event: domain.EventUpload,
	}, NormalizeInput{})
	require.NoError(t, err)
	require.True(t, ok)

	walked, ok, err := n.Normalize(context.Background(), account, domain.RawChangeItem{
		ID: "f1", Name: "c.txt", ParentIDs: []string{"fb"}, Kind: domain.ItemKindFile, Event: domain.EventUpload,
	}, NormalizeInput{Parents: NewParentCache(resolver)})
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, "a/b/c.txt", hinted.SourcePath)
	assert.Equal(t, hinted.SourcePath, walked.SourcePath)
	assert.Equal(t, "fb", walked.ParentID)
	assert.Equal(t, domain.RootParentID, hinted.ParentID)
}

func TestNormalize_Classification(t *testing.T) {
	tests := []struct {
		name       string
		item       domain.RawChangeItem
		wantAction domain.Action
		wantType   domain.SourceType
		wantOK     bool
	}{
		{
			name:       "uploaded file downloads",
			item:       domain.RawChangeItem{ID: "1", PathHint: "x.txt", Kind: domain.ItemKindFile, Event: domain.EventUpload},
			wantAction: domain.ActionDownload, wantType: domain.SourceTypeFile, wantOK: true,
		},
		{
			name:       "created folder makes directory",
			item:       domain.RawChangeItem{ID: "2", PathHint: "dir", Kind: domain.ItemKindFolder, Event: domain.EventCreate},
			wantAction: domain.ActionMakeDirectory, wantType: domain.SourceTypeFolder, wantOK: true,
		},
		{
			name:       "moved file downloads at new path",
			item:       domain.RawChangeItem{ID: "3", PathHint: "new/x.txt", Kind: domain.ItemKindFile, Event: domain.EventMove},
			wantAction: domain.ActionDownload, wantType: domain.SourceTypeFile, wantOK: true,
		},
		{
			name:       "trashed folder deletes folder",
			item:       domain.RawChangeItem{ID: "4", PathHint: "dir", Kind: domain.ItemKindFolder, Event: domain.EventTrash},
			wantAction: domain.ActionDelete, wantType: domain.SourceTypeFolder, wantOK: true,
		},
		{
			name:       "deleted kind deletes file",
			item:       domain.RawChangeItem{ID: "5", PathHint: "x.txt", Kind: domain.ItemKindDeleted},
			wantAction: domain.ActionDelete, wantType: domain.SourceTypeFile, wantOK: true,
		},
		{
			name:   "unknown event is dropped",
			item:   domain.RawChangeItem{ID: "6", PathHint: "x.txt", Kind: domain.ItemKindFile, Event: domain.EventUnknown},
			wantOK: false,
		},
		{
			name:   "deletion during first sync is dropped",
			item:   domain.RawChangeItem{ID: "7", PathHint: "x.txt", Kind: domain.ItemKindDeleted, IsFirstSync: true},
			wantOK: false,
		},
	}

	n := NewChangeNormalizer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, ok, err := n.Normalize(context.Background(), testAccount(domain.AccountTypeBox), tt.item, NormalizeInput{})
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			if !tt.wantOK {
				return
			}
			assert.Equal(t, tt.wantAction, rec.Action)
			assert.Equal(t, tt.wantType, rec.SourceType)
			assert.NoError(t, rec.Validate())
		})
	}
}

func TestNormalize_CarriesAccountAndFlags(t *testing.T) {
	n := NewChangeNormalizer()
	rec, ok, err := n.Normalize(context.Background(), testAccount(domain.AccountTypeDropbox), domain.RawChangeItem{
		ID: "id:abc", PathHint: "/docs/report.pdf", Kind: domain.ItemKindFile,
		Event: domain.EventEdit, Revision: "r9", Details: "r9", IsFirstSync: true,
	}, NormalizeInput{})

	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "acct-1", rec.AccountID)
	assert.Equal(t, domain.AccountTypeDropbox, rec.AccountType)
	assert.Equal(t, "report.pdf", rec.SourceName)
	assert.Equal(t, "docs/report.pdf", rec.SourcePath)
	assert.Equal(t, "r9", rec.Details)
	assert.Equal(t, "r9", rec.Revision)
	assert.True(t, rec.IsInitialSync)
}

func TestNormalize_RevisionKeptBesideMimeType(t *testing.T) {
	resolver := newMockResolver(domain.ParentRef{ID: "root", IsRoot: true})
	n := NewChangeNormalizer()

	rec, ok, err := n.Normalize(context.Background(), testAccount(domain.AccountTypeGoogleDrive), domain.RawChangeItem{
		ID: "f1", Name: "notes.txt", ParentIDs: []string{"root"}, Kind: domain.ItemKindFile,
		Event: domain.EventEdit, Revision: "REV42", Details: "text/plain",
	}, NormalizeInput{Parents: NewParentCache(resolver)})

	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "REV42", rec.Revision)
	assert.Equal(t, "text/plain", rec.Details)
}

func TestNormalize_ItemAtRootUsesName(t *testing.T) {
	resolver := newMockResolver(domain.ParentRef{ID: "root", IsRoot: true})
	n := NewChangeNormalizer()

	rec, ok, err := n.Normalize(context.Background(), testAccount(domain.AccountTypeGoogleDrive), domain.RawChangeItem{
		ID: "f1", Name: "top.txt", ParentIDs: []string{"root", "other"}, Kind: domain.ItemKindFile, Event: domain.EventCreate,
	}, NormalizeInput{Parents: NewParentCache(resolver)})

	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "top.txt", rec.SourcePath)
	assert.Equal(t, "root", rec.ParentID)
}

func TestNormalize_ParentWithoutResolverFails(t *testing.T) {
	n := NewChangeNormalizer()

	_, ok, err := n.Normalize(context.Background(), testAccount(domain.AccountTypeGoogleDrive), domain.RawChangeItem{
		ID: "f1", Name: "x", ParentIDHint: "p1", Kind: domain.ItemKindFile, Event: domain.EventCreate,
	}, NormalizeInput{})

	assert.False(t, ok)
	assert.ErrorIs(t, err, domain.ErrNormalization)
}

func TestNormalize_NoPathFails(t *testing.T) {
	n := NewChangeNormalizer()

	_, _, err := n.Normalize(context.Background(), testAccount(domain.AccountTypeBox), domain.RawChangeItem{
		ID: "f1", Kind: domain.ItemKindFile, Event: domain.EventCreate,
	}, NormalizeInput{})

	assert.ErrorIs(t, err, domain.ErrNormalization)
}

func TestNormalize_DeletedRecoveredByInspector(t *testing.T) {
	inspector := &mockInspector{found: domain.RawChangeItem{
		ID: "f1", Name: "old", PathHint: "/a/old", Kind: domain.ItemKindFolder,
	}}
	n := NewChangeNormalizer()

	rec, ok, err := n.Normalize(context.Background(), testAccount(domain.AccountTypeDropbox), domain.RawChangeItem{
		ID: "f1", Kind: domain.ItemKindDeleted, Event: domain.EventDelete,
	}, NormalizeInput{Inspector: inspector})

	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, inspector.calls)
	assert.Equal(t, domain.SourceTypeFolder, rec.SourceType)
	assert.Equal(t, "a/old", rec.SourcePath)
	assert.Equal(t, "old", rec.SourceName)
}

func TestNormalize_DeletedTakesRecoveredID(t *testing.T) {
	inspector := &mockInspector{found: domain.RawChangeItem{
		ID: "id:G", Name: "gone.txt", PathHint: "/a/gone.txt", Kind: domain.ItemKindFile, Revision: "r5",
	}}
	n := NewChangeNormalizer()

	rec, ok, err := n.Normalize(context.Background(), testAccount(domain.AccountTypeDropbox), domain.RawChangeItem{
		ID: "/a/gone.txt", PathHint: "/a/gone.txt", Kind: domain.ItemKindDeleted, Event: domain.EventDelete,
	}, NormalizeInput{Inspector: inspector})

	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "id:G", rec.SourceID)
	assert.Equal(t, "r5", rec.Revision)
	assert.Equal(t, "a/gone.txt", rec.SourcePath)
}

func TestNormalize_DeletedLookupFailureDefaultsToFile(t *testing.T) {
	inspector := &mockInspector{err: errors.New("lookup failed")}
	n := NewChangeNormalizer()

	rec, ok, err := n.Normalize(context.Background(), testAccount(domain.AccountTypeDropbox), domain.RawChangeItem{
		ID: "f1", PathHint: "/a/gone", Kind: domain.ItemKindDeleted, Event: domain.EventDelete,
	}, NormalizeInput{Inspector: inspector})

	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.ActionDelete, rec.Action)
	assert.Equal(t, domain.SourceTypeFile, rec.SourceType)
	assert.Equal(t, "a/gone", rec.SourcePath)
}

func TestNormalize_KnownDeletedWithPathSkipsInspector(t *testing.T) {
	inspector := &mockInspector{}
	n := NewChangeNormalizer()

	_, ok, err := n.Normalize(context.Background(), testAccount(domain.AccountTypeBox), domain.RawChangeItem{
		ID: "f1", PathHint: "a/b", Kind: domain.ItemKindFile, Event: domain.EventTrash,
	}, NormalizeInput{Inspector: inspector})

	require.NoError(t, err)
	require.True(t, ok)
	assert.Zero(t, inspector.calls)
}

func TestNormalize_KnownDeletedWithParentSkipsInspector(t *testing.T) {
	resolver := newMockResolver(
		domain.ParentRef{ID: "root", IsRoot: true},
		domain.ParentRef{ID: "fa", Name: "a", ParentID: "root"},
	)
	inspector := &mockInspector{}
	n := NewChangeNormalizer()

	rec, ok, err := n.Normalize(context.Background(), testAccount(domain.AccountTypeGoogleDrive), domain.RawChangeItem{
		ID: "d1", Name: "old", ParentIDs: []string{"fa"}, Kind: domain.ItemKindFolder, Event: domain.EventTrash,
	}, NormalizeInput{Parents: NewParentCache(resolver), Inspector: inspector})

	require.NoError(t, err)
	require.True(t, ok)
	assert.Zero(t, inspector.calls)
	assert.Equal(t, domain.SourceTypeFolder, rec.SourceType)
	assert.Equal(t, "a/old", rec.SourcePath)
}

func TestNormalize_UnknownKindWithParentStillInspected(t *testing.T) {
	resolver := newMockResolver(domain.ParentRef{ID: "root", IsRoot: true})
	inspector := &mockInspector{found: domain.RawChangeItem{Kind: domain.ItemKindFile}}
	n := NewChangeNormalizer()

	rec, ok, err := n.Normalize(context.Background(), testAccount(domain.AccountTypeGoogleDrive), domain.RawChangeItem{
		ID: "d2", Name: "gone.txt", ParentIDs: []string{"root"}, Kind: domain.ItemKindDeleted, Event: domain.EventDelete,
	}, NormalizeInput{Parents: NewParentCache(resolver), Inspector: inspector})

	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, inspector.calls)
	assert.Equal(t, "gone.txt", rec.SourcePath)
}

func TestParentCache_MemoisesLookups(t *testing.T) {
	resolver := newMockResolver(
		domain.ParentRef{ID: "root", IsRoot: true},
		domain.ParentRef{ID: "fa", Name: "a", ParentID: "root"},
		domain.ParentRef{ID: "fb", Name: "b", ParentID: "fa"},
	)
	cache := NewParentCache(resolver)

	p, err := cache.Path(context.Background(), "fb")
	require.NoError(t, err)
	assert.Equal(t, "a/b", p)

	p, err = cache.Path(context.Background(), "fa")
	require.NoError(t, err)
	assert.Equal(t, "a", p)

	assert.Equal(t, 1, resolver.calls["fb"])
	assert.Equal(t, 1, resolver.calls["fa"])
}

func TestParentCache_Cycle(t *testing.T) {
	resolver := newMockResolver(
		domain.ParentRef{ID: "x", Name: "x", ParentID: "y"},
		domain.ParentRef{ID: "y", Name: "y", ParentID: "x"},
	)

	_, err := NewParentCache(resolver).Path(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parent cycle")
}

func TestParentCache_ResolverError(t *testing.T) {
	resolver := newMockResolver()
	resolver.err = errors.New("boom")

	_, err := NewParentCache(resolver).Path(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestParentCache_NilResolver(t *testing.T) {
	assert.Nil(t, NewParentCache(nil))
}

func TestCleanSourcePath(t *testing.T) {
	tests := map[string]string{
		"/a/b/c.txt":     "a/b/c.txt",
		"a//b/":          "a/b",
		`folder\sub\x`:   "folder/sub/x",
		"":               "",
		"/":              "",
		"plain.txt":      "plain.txt",
		"/All Files/x y": "All Files/x y",
	}
	for in, want := range tests {
		assert.Equal(t, want, CleanSourcePath(in), "input %q", in)
	}
}
