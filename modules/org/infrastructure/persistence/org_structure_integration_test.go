package persistence_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/Dr1DeX/orgtree/modules/org/domain/department"
	"github.com/Dr1DeX/orgtree/modules/org/infrastructure/persistence"
	"github.com/Dr1DeX/orgtree/modules/org/services"
	"github.com/Dr1DeX/orgtree/pkg/composables"
	"github.com/Dr1DeX/orgtree/pkg/itf"
	"github.com/Dr1DeX/orgtree/pkg/orgpath"
)

type queryCountTracer struct {
	mu sync.Mutex
	n  int
}

func (t *queryCountTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, _ pgx.TraceQueryStartData) context.Context {
	t.mu.Lock()
	t.n++
	t.mu.Unlock()
	return ctx
}

func (t *queryCountTracer) TraceQueryEnd(context.Context, *pgx.Conn, pgx.TraceQueryEndData) {}

func (t *queryCountTracer) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.n
}

func (t *queryCountTracer) Reset() {
	t.mu.Lock()
	t.n = 0
	t.mu.Unlock()
}

type pgEnv struct {
	ctx         context.Context
	pool        *pgxpool.Pool
	tracer      *queryCountTracer
	cache       *services.MemorySnapshotCache
	propagator  *services.Propagator
	hierarchy   *services.HierarchyService
	employees   *services.EmployeeService
	queries     *services.SubtreeQueryService
	consistency *services.ConsistencyService
}

func newPgEnv(t *testing.T, batchSize int) *pgEnv {
	t.Helper()
	tracer := &queryCountTracer{}
	pool := itf.NewDatabase(t, itf.WithQueryTracer(tracer))

	stores := services.Stores{
		Departments: persistence.NewDepartmentRepository(),
		Employees:   persistence.NewEmployeeRepository(),
	}
	cache := services.NewMemorySnapshotCache()
	prop := services.NewPropagator(stores, batchSize)
	return &pgEnv{
		ctx:         itf.Context(t, pool),
		pool:        pool,
		tracer:      tracer,
		cache:       cache,
		propagator:  prop,
		hierarchy:   services.NewHierarchyService(stores, prop, cache, nil),
		employees:   services.NewEmployeeService(stores, cache, nil),
		queries:     services.NewSubtreeQueryService(stores, cache, services.QueryOptions{}),
		consistency: services.NewConsistencyService(stores, prop, cache),
	}
}

func (e *pgEnv) dept(t *testing.T, name string, parent *department.Department) department.Department {
	t.Helper()
	in := services.CreateDepartmentInput{Name: name}
	if parent != nil {
		id := parent.ID
		in.ParentID = &id
	}
	d, err := e.hierarchy.CreateDepartment(e.ctx, in)
	require.NoError(t, err)
	return *d
}

func (e *pgEnv) hire(t *testing.T, name string, d department.Department) int64 {
	t.Helper()
	emp, err := e.employees.CreateEmployee(e.ctx, services.CreateEmployeeInput{
		FullName:     name,
		Position:     "Analyst",
		HiredAt:      time.Date(2023, 11, 20, 0, 0, 0, 0, time.UTC),
		Salary:       decimal.RequireFromString("2100.25"),
		DepartmentID: d.ID,
	})
	require.NoError(t, err)
	require.Equal(t, d.Path, emp.StructurePath)
	return emp.ID
}

func requireServiceCode(t *testing.T, err error, status int, code string) {
	t.Helper()
	var svcErr *services.ServiceError
	require.ErrorAs(t, err, &svcErr)
	require.Equal(t, status, svcErr.Status)
	require.Equal(t, code, svcErr.Code)
}

func TestOrgStructure_Postgres_ReparentPropagatesPaths(t *testing.T) {
	e := newPgEnv(t, 2)

	a := e.dept(t, "A", nil)
	b := e.dept(t, "B", nil)
	b1 := e.dept(t, "B1", &b)
	b11 := e.dept(t, "B11", &b1)
	require.True(t, orgpath.IsStrictDescendant(b11.Path, b.Path))
	require.Equal(t, 3, b11.Level)

	for _, name := range []string{"e1", "e2", "e3"} {
		e.hire(t, name, b11)
	}
	e.hire(t, "e4", b1)
	e.hire(t, "outsider", a)

	count, err := e.queries.CountUnder(e.ctx, b.ID)
	require.NoError(t, err)
	require.EqualValues(t, 4, count)

	res, err := e.hierarchy.ReparentDepartment(e.ctx, services.ReparentDepartmentInput{ID: b.ID, NewParentID: &a.ID})
	require.NoError(t, err)
	require.True(t, res.Moved)
	require.EqualValues(t, 3, res.DepartmentsRewritten)
	require.EqualValues(t, 4, res.EmployeesRewritten)

	movedLeaf, err := e.hierarchy.GetDepartment(e.ctx, b11.ID)
	require.NoError(t, err)
	require.Equal(t, 4, movedLeaf.Level)
	require.Equal(t, a.Path+"."+b11.Path, movedLeaf.Path)

	count, err = e.queries.CountUnder(e.ctx, a.ID)
	require.NoError(t, err)
	require.EqualValues(t, 5, count)

	direct, err := e.queries.CountDirect(e.ctx, a.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, direct)

	again, err := e.propagator.PropagateDepartment(e.ctx, b.ID)
	require.NoError(t, err)
	require.Zero(t, again.Rewritten)

	report, err := e.consistency.Verify(e.ctx)
	require.NoError(t, err)
	require.True(t, report.OK(), "%+v", report)
}

func TestOrgStructure_Postgres_DepthAndCycleRejected(t *testing.T) {
	e := newPgEnv(t, 0)

	chain := []department.Department{e.dept(t, "L1", nil)}
	for i := 2; i <= department.MaxLevel; i++ {
		parent := chain[len(chain)-1]
		chain = append(chain, e.dept(t, "L", &parent))
	}
	deepest := chain[len(chain)-1]
	require.Equal(t, department.MaxLevel, deepest.Level)

	_, err := e.hierarchy.CreateDepartment(e.ctx, services.CreateDepartmentInput{Name: "too deep", ParentID: &deepest.ID})
	requireServiceCode(t, err, 422, services.CodeDepthExceeded)

	_, err = e.hierarchy.ReparentDepartment(e.ctx, services.ReparentDepartmentInput{ID: chain[0].ID, NewParentID: &chain[2].ID})
	requireServiceCode(t, err, 422, services.CodeCycleRejected)

	other := e.dept(t, "Other", nil)
	_, err = e.hierarchy.ReparentDepartment(e.ctx, services.ReparentDepartmentInput{ID: chain[0].ID, NewParentID: &other.ID})
	requireServiceCode(t, err, 422, services.CodeDepthExceeded)

	unchanged, err := e.hierarchy.GetDepartment(e.ctx, deepest.ID)
	require.NoError(t, err)
	require.Equal(t, deepest.Path, unchanged.Path)
}

func TestOrgStructure_Postgres_DeleteIsRestricted(t *testing.T) {
	e := newPgEnv(t, 0)

	root := e.dept(t, "Root", nil)
	child := e.dept(t, "Child", &root)
	empID := e.hire(t, "staff", child)

	err := e.hierarchy.DeleteDepartment(e.ctx, root.ID)
	requireServiceCode(t, err, 409, services.CodeHasChildren)

	err = e.hierarchy.DeleteDepartment(e.ctx, child.ID)
	requireServiceCode(t, err, 409, services.CodeHasDependents)

	require.NoError(t, e.employees.DeleteEmployee(e.ctx, empID))
	require.NoError(t, e.hierarchy.DeleteDepartment(e.ctx, child.ID))
	require.NoError(t, e.hierarchy.DeleteDepartment(e.ctx, root.ID))

	_, err = e.hierarchy.GetDepartment(e.ctx, root.ID)
	requireServiceCode(t, err, 404, services.CodeNotFound)
}

func TestOrgStructure_Postgres_ListUnderAndSnapshotQueryCount(t *testing.T) {
	e := newPgEnv(t, 0)

	root := e.dept(t, "Root", nil)
	child := e.dept(t, "Child", &root)
	for i := 0; i < 3; i++ {
		e.hire(t, "direct", root)
	}
	for i := 0; i < 4; i++ {
		e.hire(t, "nested", child)
	}

	page, err := e.queries.ListUnder(e.ctx, root.ID, services.ListParams{IncludeSubtree: true, Page: 2, PageSize: 3})
	require.NoError(t, err)
	require.EqualValues(t, 7, page.TotalCount)
	require.Equal(t, 3, page.NumPages)
	require.Len(t, page.Items, 3)
	require.True(t, page.HasNext)
	require.True(t, page.HasPrevious)

	directOnly, err := e.queries.ListUnder(e.ctx, root.ID, services.ListParams{PageSize: 10})
	require.NoError(t, err)
	require.EqualValues(t, 3, directOnly.TotalCount)

	require.NoError(t, e.cache.Invalidate(e.ctx))
	e.tracer.Reset()
	snap, err := e.queries.TreeSnapshot(e.ctx)
	require.NoError(t, err)
	// BEGIN, departments, per-path counts, COMMIT.
	require.LessOrEqual(t, e.tracer.Count(), 4)
	require.EqualValues(t, 7, snap.Departments[root.ID].SubtreeEmployeesCount)
	require.EqualValues(t, 3, snap.Departments[root.ID].EmployeesCount)
	require.Equal(t, []int64{child.ID}, snap.Departments[root.ID].ChildIDs)

	e.tracer.Reset()
	_, err = e.queries.TreeSnapshot(e.ctx)
	require.NoError(t, err)
	require.Zero(t, e.tracer.Count())
}

func TestOrgStructure_Postgres_EmployeeUpdateWaitsForMove(t *testing.T) {
	e := newPgEnv(t, 0)

	a := e.dept(t, "A", nil)
	b := e.dept(t, "B", nil)
	empID := e.hire(t, "mover", b)

	tx, err := e.pool.Begin(e.ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tx.Rollback(context.Background()) })
	moveCtx := composables.WithTx(e.ctx, tx)
	res, err := e.hierarchy.ReparentDepartment(moveCtx, services.ReparentDepartmentInput{ID: b.ID, NewParentID: &a.ID})
	require.NoError(t, err)
	require.True(t, res.Moved)

	type result struct {
		path orgpath.Label
		err  error
	}
	done := make(chan result, 1)
	go func() {
		emp, err := e.employees.UpdateEmployee(e.ctx, services.UpdateEmployeeInput{ID: empID, Position: ptrTo("Lead")})
		if err != nil {
			done <- result{err: err}
			return
		}
		done <- result{path: emp.StructurePath}
	}()

	select {
	case r := <-done:
		t.Fatalf("update finished while the move was open: %+v", r)
	case <-time.After(200 * time.Millisecond):
	}
	require.NoError(t, tx.Commit(e.ctx))

	select {
	case r := <-done:
		require.NoError(t, r.err)
		require.Equal(t, a.Path+"."+b.Path, r.path)
	case <-time.After(10 * time.Second):
		t.Fatal("update did not finish after the move committed")
	}
}

func TestOrgStructure_Postgres_ConcurrentMovesAndEmployeeUpdates(t *testing.T) {
	e := newPgEnv(t, 0)

	a := e.dept(t, "A", nil)
	b := e.dept(t, "B", nil)
	d := e.dept(t, "D", &a)
	d1 := e.dept(t, "D1", &d)
	ids := make([]int64, 0, 3)
	for i := 0; i < 3; i++ {
		ids = append(ids, e.hire(t, fmt.Sprintf("worker %d", i), d))
	}

	const rounds = 15
	var g errgroup.Group
	g.Go(func() error {
		for i := 0; i < rounds; i++ {
			parent := b.ID
			if i%2 == 1 {
				parent = a.ID
			}
			if _, err := e.hierarchy.ReparentDepartment(e.ctx, services.ReparentDepartmentInput{ID: d.ID, NewParentID: &parent}); err != nil {
				return fmt.Errorf("move %d: %w", i, err)
			}
		}
		return nil
	})
	for _, id := range ids {
		g.Go(func() error {
			for i := 0; i < rounds; i++ {
				target := d1.ID
				if i%2 == 1 {
					target = d.ID
				}
				_, err := e.employees.UpdateEmployee(e.ctx, services.UpdateEmployeeInput{
					ID:           id,
					Position:     ptrTo(fmt.Sprintf("grade %d", i)),
					DepartmentID: &target,
				})
				if err != nil {
					return fmt.Errorf("update employee %d round %d: %w", id, i, err)
				}
			}
			return nil
		})
	}
	g.Go(func() error {
		batch := make([]services.CreateEmployeeInput, 0, 4)
		for i := 0; i < 4; i++ {
			target := d1.ID
			if i%2 == 0 {
				target = d.ID
			}
			batch = append(batch, services.CreateEmployeeInput{
				FullName:     fmt.Sprintf("imported %d", i),
				Position:     "Analyst",
				HiredAt:      time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
				Salary:       decimal.RequireFromString("1800"),
				DepartmentID: target,
			})
		}
		for i := 0; i < rounds; i++ {
			if _, err := e.employees.ImportEmployees(e.ctx, batch); err != nil {
				return fmt.Errorf("import round %d: %w", i, err)
			}
		}
		return nil
	})
	require.NoError(t, g.Wait())

	report, err := e.consistency.Verify(e.ctx)
	require.NoError(t, err)
	require.True(t, report.OK(), "%+v", report)
}

func ptrTo[T any](v T) *T { return &v }
