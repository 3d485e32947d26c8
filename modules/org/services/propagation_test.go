package services_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Dr1DeX/orgtree/pkg/orgpath"
)

func TestPropagate_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 2)
	root := e.dept(t, "root", nil)
	a := e.dept(t, "a", &root)
	for i := 0; i < 5; i++ {
		emp := e.hire(t, "worker", a)
		require.NoError(t, e.store.Corrupt(ctx, emp.ID, "9.9"))
	}

	first, err := e.propagator.Propagate(ctx, a.ID, "9.9", a.Path)
	require.NoError(t, err)
	require.Equal(t, int64(5), first.Rewritten)
	require.Equal(t, 3, first.Batches)

	second, err := e.propagator.Propagate(ctx, a.ID, "9.9", a.Path)
	require.NoError(t, err)
	require.Zero(t, second.Rewritten)
	require.Equal(t, 1, second.Batches)
	requireInvariants(t, e)
}

func TestPropagate_LeavesUnrelatedEmployeesAlone(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 0)
	r := e.dept(t, "r", nil)
	a := e.dept(t, "a", &r)
	other := e.dept(t, "other", nil)
	inA := e.hire(t, "in a", a)
	inOther := e.hire(t, "in other", other)
	require.NoError(t, e.store.Corrupt(ctx, inA.ID, "1"))
	require.NoError(t, e.store.Corrupt(ctx, inOther.ID, "77"))

	res, err := e.propagator.Propagate(ctx, a.ID, a.Path, a.Path)
	require.NoError(t, err)
	require.Equal(t, int64(1), res.Rewritten)

	got, err := e.employees.GetEmployee(ctx, inOther.ID)
	require.NoError(t, err)
	require.Equal(t, orgpath.Label("77"), got.StructurePath)
}

func TestPropagate_ResumesAfterFailedBatch(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 2)
	root := e.dept(t, "root", nil)
	for i := 0; i < 6; i++ {
		emp := e.hire(t, "worker", root)
		require.NoError(t, e.store.Corrupt(ctx, emp.ID, "8"))
	}

	boom := errors.New("store unavailable")
	e.store.SetRewriteHook(func(batch int) error {
		if batch == 2 {
			return boom
		}
		return nil
	})
	_, err := e.propagator.Propagate(ctx, root.ID, "8", root.Path)
	require.ErrorIs(t, err, boom)
	e.store.SetRewriteHook(nil)

	// the first batch committed on its own
	n, err := e.queries.CountUnder(ctx, root.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	res, err := e.propagator.Propagate(ctx, root.ID, "8", root.Path)
	require.NoError(t, err)
	require.Equal(t, int64(4), res.Rewritten)
	requireInvariants(t, e)
}

func TestPropagate_RejectsMalformedLabels(t *testing.T) {
	e := newEnv(t, 0)
	_, err := e.propagator.Propagate(context.Background(), 1, "1..2", "1")
	requireCode(t, err, 500, "ORG_PATH_ENCODING")
	require.ErrorIs(t, err, orgpath.ErrEncoding)
}

func TestPropagateDepartment(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 0)
	root := e.dept(t, "root", nil)
	child := e.dept(t, "child", &root)
	emp := e.hire(t, "worker", child)
	require.NoError(t, e.store.Corrupt(ctx, emp.ID, root.Path))

	res, err := e.propagator.PropagateDepartment(ctx, child.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), res.Rewritten)

	_, err = e.propagator.PropagateDepartment(ctx, 999)
	requireCode(t, err, 404, "ORG_NOT_FOUND")
}
