package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Dr1DeX/orgtree/modules/org/domain/department"
	"github.com/Dr1DeX/orgtree/pkg/orgpath"
)

func TestMemorySnapshotCache_TTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := NewMemorySnapshotCache()
	c.now = func() time.Time { return now }

	_, ok, err := c.Get(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	snap := &TreeSnapshot{GeneratedAt: now}
	stored, err := c.Set(ctx, snap, 0, time.Minute)
	require.NoError(t, err)
	require.True(t, stored)

	got, ok, err := c.Get(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Same(t, snap, got)

	now = now.Add(time.Minute)
	_, ok, err = c.Get(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	stored, err = c.Set(ctx, snap, 0, 0)
	require.NoError(t, err)
	require.True(t, stored)
	now = now.Add(24 * time.Hour)
	_, ok, _ = c.Get(ctx)
	require.True(t, ok, "zero ttl never expires")

	require.NoError(t, c.Invalidate(ctx))
	_, ok, _ = c.Get(ctx)
	require.False(t, ok)
}

func TestMemorySnapshotCache_SkipsSetAfterInvalidation(t *testing.T) {
	ctx := context.Background()
	c := NewMemorySnapshotCache()

	gen, err := c.Generation(ctx)
	require.NoError(t, err)
	require.NoError(t, c.Invalidate(ctx))

	stored, err := c.Set(ctx, &TreeSnapshot{}, gen, time.Minute)
	require.NoError(t, err)
	require.False(t, stored)
	_, ok, _ := c.Get(ctx)
	require.False(t, ok)

	gen, err = c.Generation(ctx)
	require.NoError(t, err)
	stored, err = c.Set(ctx, &TreeSnapshot{}, gen, time.Minute)
	require.NoError(t, err)
	require.True(t, stored)
}

type failingCache struct{ NoopSnapshotCache }

func (failingCache) Invalidate(context.Context) error { return errors.New("redis down") }

func TestInvalidateSnapshot_SwallowsErrors(t *testing.T) {
	require.NotPanics(t, func() {
		invalidateSnapshot(context.Background(), failingCache{}, "test")
		invalidateSnapshot(context.Background(), nil, "test")
	})
}

func TestBuildSnapshot_AggregatesSubtreeCounts(t *testing.T) {
	p := func(id int64) *int64 { return &id }
	ds := []department.Department{
		{ID: 1, Name: "root", Level: 1, Path: "1"},
		{ID: 2, Name: "a", ParentID: p(1), Level: 2, Path: "1.2"},
		{ID: 4, Name: "a1", ParentID: p(2), Level: 3, Path: "1.2.4"},
		{ID: 3, Name: "b", ParentID: p(1), Level: 2, Path: "1.3"},
		{ID: 5, Name: "other", Level: 1, Path: "5"},
	}
	counts := map[orgpath.Label]int64{"1": 1, "1.2": 2, "1.2.4": 4, "1.3": 8, "5": 16}
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	snap := buildSnapshot(ds, counts, at)
	require.Equal(t, at, snap.GeneratedAt)
	require.Equal(t, []int64{1, 5}, snap.RootIDs)
	require.Equal(t, []int64{2, 3}, snap.Departments[1].ChildIDs)
	require.Equal(t, int64(15), snap.Departments[1].SubtreeEmployeesCount)
	require.Equal(t, int64(1), snap.Departments[1].EmployeesCount)
	require.Equal(t, int64(6), snap.Departments[2].SubtreeEmployeesCount)
	require.Equal(t, int64(16), snap.Departments[5].SubtreeEmployeesCount)
	require.Empty(t, snap.Departments[4].ChildIDs)
}
