package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Dr1DeX/orgtree/modules/org/domain/department"
	"github.com/Dr1DeX/orgtree/modules/org/domain/employee"
	"github.com/Dr1DeX/orgtree/modules/org/services"
	"github.com/Dr1DeX/orgtree/pkg/orgpath"
)

func seedRoot(t *testing.T, s *Store) department.Department {
	t.Helper()
	ctx := context.Background()
	id, err := s.NextDepartmentID(ctx)
	require.NoError(t, err)
	d, err := s.InsertDepartment(ctx, department.Department{ID: id, Name: "root", Level: 1, Path: orgpath.Label("1")})
	require.NoError(t, err)
	return d
}

func TestInTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedRoot(t, s)

	boom := errors.New("boom")
	err := s.InTx(ctx, func(txCtx context.Context) error {
		require.NoError(t, s.Rename(txCtx, 1, "renamed"))
		d, err := s.GetDepartment(txCtx, 1, services.LockNone)
		require.NoError(t, err)
		require.Equal(t, "renamed", d.Name)
		return boom
	})
	require.ErrorIs(t, err, boom)

	d, err := s.GetDepartment(ctx, 1, services.LockNone)
	require.NoError(t, err)
	require.Equal(t, "root", d.Name)
}

func TestInTx_CommitChecksConstraints(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedRoot(t, s)

	_, err := s.InsertDepartment(ctx, department.Department{ID: 2, Name: "dup", Level: 1, Path: "1"})
	require.ErrorIs(t, err, services.ErrConflict)

	_, err = s.InsertDepartment(ctx, department.Department{ID: 3, Name: "orphan", ParentID: ptr(int64(9)), Level: 2, Path: "9.3"})
	require.ErrorIs(t, err, services.ErrParentNotFound)

	list, err := s.ListDepartments(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestInReadTx_RejectsWrites(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedRoot(t, s)
	err := s.InReadTx(ctx, func(txCtx context.Context) error {
		return s.Rename(txCtx, 1, "nope")
	})
	require.ErrorIs(t, err, errReadOnly)
}

func TestRebaseSubtreeAndRewrite(t *testing.T) {
	ctx := context.Background()
	s := New()
	root := seedRoot(t, s)
	_, err := s.InsertDepartment(ctx, department.Department{ID: 2, Name: "a", ParentID: ptr(root.ID), Level: 2, Path: "1.2"})
	require.NoError(t, err)
	_, err = s.InsertDepartment(ctx, department.Department{ID: 3, Name: "other", Level: 1, Path: "3"})
	require.NoError(t, err)
	_, err = s.InsertDepartment(ctx, department.Department{ID: 20, Name: "lookalike", ParentID: ptr(root.ID), Level: 2, Path: "1.20"})
	require.NoError(t, err)

	for _, dept := range []int64{2, 2, 20} {
		path := orgpath.Label("1.2")
		if dept == 20 {
			path = "1.20"
		}
		_, err := s.InsertEmployee(ctx, employee.Employee{FullName: "x", Position: "y", DepartmentID: dept, StructurePath: path})
		require.NoError(t, err)
	}

	err = s.InTx(ctx, func(txCtx context.Context) error {
		if err := s.SetParent(txCtx, 2, ptr(int64(3))); err != nil {
			return err
		}
		n, err := s.RebaseSubtree(txCtx, "1.2", "3.2")
		require.Equal(t, int64(1), n)
		return err
	})
	require.NoError(t, err)

	stale, err := s.CountStale(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), stale)

	n, err := s.RewriteStructurePaths(ctx, "1.2", "3.2", 1)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	n, err = s.RewriteStructurePaths(ctx, "1.2", "3.2", 10)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	under, err := s.CountByPath(ctx, "3", true)
	require.NoError(t, err)
	require.Equal(t, int64(2), under)
	lookalike, err := s.CountByPath(ctx, "1.20", false)
	require.NoError(t, err)
	require.Equal(t, int64(1), lookalike)

	page, err := s.ListByPath(ctx, "3", true, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, int64(2), page[0].ID)
}

func TestDeleteDepartment_Restrict(t *testing.T) {
	ctx := context.Background()
	s := New()
	root := seedRoot(t, s)
	_, err := s.InsertEmployee(ctx, employee.Employee{FullName: "x", Position: "y", DepartmentID: root.ID, StructurePath: root.Path})
	require.NoError(t, err)

	require.ErrorIs(t, s.DeleteDepartment(ctx, root.ID), services.ErrHasDependents)
	require.ErrorIs(t, s.DeleteDepartment(ctx, 42), services.ErrNotFound)
}

func ptr[T any](v T) *T { return &v }

func TestLockDepartments_PathOrderSkipsUnknown(t *testing.T) {
	ctx := context.Background()
	s := New()
	root := seedRoot(t, s)
	id, err := s.NextDepartmentID(ctx)
	require.NoError(t, err)
	child, err := s.InsertDepartment(ctx, department.Department{
		ID: id, Name: "child", ParentID: &root.ID, Level: 2, Path: orgpath.Label("1.2"),
	})
	require.NoError(t, err)

	ds, err := s.LockDepartments(ctx, []int64{child.ID, 99, root.ID})
	require.NoError(t, err)
	require.Len(t, ds, 2)
	require.Equal(t, root.ID, ds[0].ID)
	require.Equal(t, child.ID, ds[1].ID)

	ds, err = s.LockDepartments(ctx, nil)
	require.NoError(t, err)
	require.Empty(t, ds)
}
