package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/ListingHub/internal/pkg/media"
	"github.com/ManuelReschke/ListingHub/internal/pkg/plans"
	"github.com/ManuelReschke/ListingHub/internal/pkg/submission"
)

type staticCatalog struct{ loads int }

func (s *staticCatalog) Load(context.Context) (plans.Catalog, error) {
	s.loads++
	return testCatalog(), nil
}

func newTestManager() (*Manager, *MemoryStore, *fakeSubmitter, *[]string) {
	store := NewMemoryStore()
	sub := &fakeSubmitter{}
	records := &fakeRecords{recs: map[uint]*submission.Record{42: editRecord()}}
	m := NewManager(store, &staticCatalog{}, records, Deps{Provider: &fakeProvider{}, Accounts: &fakeAccounts{}, Submitter: sub}, Config{TTL: time.Hour})
	var removed []string
	m.Cleanup = func(paths []string) { removed = append(removed, paths...) }
	return m, store, sub, &removed
}

func TestManagerPersistsBetweenCommands(t *testing.T) {
	ctx := context.Background()
	m, _, _, _ := newTestManager()

	view, err := m.Open(ctx, "owner-1", ModeCreate, 0)
	require.NoError(t, err)
	assert.Equal(t, StepDetails, view.Step)
	assert.Len(t, view.Offers, 3)

	_, err = m.Dispatch(ctx, view.ID, "owner-1", UpdateDetails{Details: validDetails("cafe")})
	require.NoError(t, err)
	view, err = m.Dispatch(ctx, view.ID, "owner-1", Advance{})
	require.NoError(t, err)
	assert.Equal(t, StepPlanSelection, view.Step)

	got, err := m.Get(ctx, view.ID, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, StepPlanSelection, got.Step)
	assert.Equal(t, "Corner Cafe", got.Draft.Name)

	_, err = m.Get(ctx, view.ID, "someone-else")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManagerFailedCommandStillSaves(t *testing.T) {
	ctx := context.Background()
	m, _, _, _ := newTestManager()
	view, err := m.Open(ctx, "owner-1", ModeCreate, 0)
	require.NoError(t, err)

	_, err = m.Dispatch(ctx, view.ID, "owner-1", AddMedia{Kind: media.KindPhoto, File: media.LocalFile{Path: "/tmp/p.jpg"}})
	require.NoError(t, err)
	_, err = m.Dispatch(ctx, view.ID, "owner-1", Advance{})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	got, err := m.Get(ctx, view.ID, "owner-1")
	require.NoError(t, err)
	assert.Len(t, got.Draft.Photos, 1)
	assert.Equal(t, StepDetails, got.Step)
}

func TestManagerRejectsConcurrentCommand(t *testing.T) {
	ctx := context.Background()
	m, store, _, _ := newTestManager()
	view, err := m.Open(ctx, "owner-1", ModeCreate, 0)
	require.NoError(t, err)

	token, err := store.Lock(ctx, view.ID, time.Minute)
	require.NoError(t, err)
	_, err = m.Dispatch(ctx, view.ID, "owner-1", Back{})
	assert.ErrorIs(t, err, ErrBusy)

	require.NoError(t, store.Unlock(ctx, view.ID, token))
	_, err = m.Dispatch(ctx, view.ID, "owner-1", UpdateDetails{Details: validDetails("bar")})
	assert.NoError(t, err)
}

func TestManagerCompletionDiscardsDraft(t *testing.T) {
	ctx := context.Background()
	m, _, sub, removed := newTestManager()

	view, err := m.Open(ctx, "owner-1", ModeEdit, 42)
	require.NoError(t, err)
	assert.Equal(t, "Old Name", view.Draft.Name)

	_, err = m.Dispatch(ctx, view.ID, "owner-1", AddMedia{Kind: media.KindMenu, File: media.LocalFile{Path: "/tmp/menu.jpg"}})
	require.NoError(t, err)
	done, err := m.Dispatch(ctx, view.ID, "owner-1", Submit{})
	require.NoError(t, err)
	assert.True(t, done.Completed)
	assert.Len(t, sub.updates, 1)
	assert.Equal(t, []string{"/tmp/menu.jpg"}, *removed)

	_, err = m.Get(ctx, view.ID, "owner-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManagerOpenChecksRecordOwner(t *testing.T) {
	ctx := context.Background()
	m, _, _, _ := newTestManager()

	_, err := m.Open(ctx, "intruder", ModeUpdatePlan, 42)
	assert.ErrorIs(t, err, submission.ErrRecordNotFound)

	_, err = m.Open(ctx, "owner-1", ModeUpdatePlan, 0)
	assert.ErrorIs(t, err, ErrRecordRequired)

	_, err = m.Open(ctx, "owner-1", ModeEdit, 99)
	assert.ErrorIs(t, err, submission.ErrRecordNotFound)

	view, err := m.Open(ctx, "owner-1", ModeUpdatePlan, 42)
	require.NoError(t, err)
	assert.Equal(t, StepPlanSelection, view.Step)
}

func TestManagerCancel(t *testing.T) {
	ctx := context.Background()
	m, _, _, removed := newTestManager()
	view, err := m.Open(ctx, "owner-1", ModeCreate, 0)
	require.NoError(t, err)

	_, err = m.Dispatch(ctx, view.ID, "owner-1", AddMedia{Kind: media.KindLogo, File: media.LocalFile{Path: "/tmp/logo.png"}})
	require.NoError(t, err)

	require.NoError(t, m.Cancel(ctx, view.ID, "owner-1"))
	assert.Equal(t, []string{"/tmp/logo.png"}, *removed)
	_, err = m.Get(ctx, view.ID, "owner-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now()
	s.now = func() time.Time { return now }

	require.NoError(t, s.Save(ctx, Snapshot{ID: "a"}, time.Minute))
	_, err := s.Load(ctx, "a")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = s.Load(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Lock(ctx, "a", time.Second)
	require.NoError(t, err)
	_, err = s.Lock(ctx, "a", time.Second)
	assert.ErrorIs(t, err, ErrBusy)
	now = now.Add(2 * time.Second)
	_, err = s.Lock(ctx, "a", time.Second)
	assert.NoError(t, err)
}
