package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/Dr1DeX/orgtree/modules/org/domain/department"
	"github.com/Dr1DeX/orgtree/modules/org/domain/employee"
	"github.com/Dr1DeX/orgtree/modules/org/domain/events"
	"github.com/Dr1DeX/orgtree/modules/org/infrastructure/memory"
	"github.com/Dr1DeX/orgtree/modules/org/services"
)

type recordingSink struct {
	mu     sync.Mutex
	events []events.OrgEventV1
}

func (s *recordingSink) Publish(_ context.Context, e events.OrgEventV1) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) changeTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.ChangeType)
	}
	return out
}

// countingCache wraps the memory cache and counts invalidations.
type countingCache struct {
	*services.MemorySnapshotCache
	mu            sync.Mutex
	invalidations int
}

func (c *countingCache) Invalidate(ctx context.Context) error {
	c.mu.Lock()
	c.invalidations++
	c.mu.Unlock()
	return c.MemorySnapshotCache.Invalidate(ctx)
}

func (c *countingCache) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.invalidations
}

type env struct {
	store       *memory.Store
	cache       *countingCache
	sink        *recordingSink
	propagator  *services.Propagator
	hierarchy   *services.HierarchyService
	queries     *services.SubtreeQueryService
	employees   *services.EmployeeService
	consistency *services.ConsistencyService
}

func newEnv(t *testing.T, batchSize int) *env {
	t.Helper()
	store := memory.New()
	stores := store.Stores()
	cache := &countingCache{MemorySnapshotCache: services.NewMemorySnapshotCache()}
	sink := &recordingSink{}
	prop := services.NewPropagator(stores, batchSize)
	return &env{
		store:       store,
		cache:       cache,
		sink:        sink,
		propagator:  prop,
		hierarchy:   services.NewHierarchyService(stores, prop, cache, sink),
		queries:     services.NewSubtreeQueryService(stores, cache, services.QueryOptions{}),
		employees:   services.NewEmployeeService(stores, cache, sink),
		consistency: services.NewConsistencyService(stores, prop, cache),
	}
}

func ptr[T any](v T) *T { return &v }

func (e *env) dept(t *testing.T, name string, parent *department.Department) department.Department {
	t.Helper()
	in := services.CreateDepartmentInput{Name: name}
	if parent != nil {
		in.ParentID = ptr(parent.ID)
	}
	d, err := e.hierarchy.CreateDepartment(context.Background(), in)
	require.NoError(t, err)
	return *d
}

func (e *env) hire(t *testing.T, name string, d department.Department) employee.Employee {
	t.Helper()
	emp, err := e.employees.CreateEmployee(context.Background(), services.CreateEmployeeInput{
		FullName:     name,
		Position:     "Engineer",
		HiredAt:      time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Salary:       decimal.RequireFromString("1500.50"),
		DepartmentID: d.ID,
	})
	require.NoError(t, err)
	return *emp
}

func (e *env) reload(t *testing.T, d department.Department) department.Department {
	t.Helper()
	got, err := e.hierarchy.GetDepartment(context.Background(), d.ID)
	require.NoError(t, err)
	return *got
}

func requireCode(t *testing.T, err error, status int, code string) {
	t.Helper()
	var svcErr *services.ServiceError
	require.ErrorAs(t, err, &svcErr)
	require.Equal(t, status, svcErr.Status)
	require.Equal(t, code, svcErr.Code)
}

// requireInvariants checks level/path agreement for every department and that
// every employee's structure_path equals its department's path.
func requireInvariants(t *testing.T, e *env) {
	t.Helper()
	ctx := context.Background()
	ds, err := e.hierarchy.ListDepartments(ctx)
	require.NoError(t, err)
	byID := map[int64]department.Department{}
	for _, d := range ds {
		byID[d.ID] = d
	}
	for _, d := range ds {
		require.Equal(t, d.Path.Depth(), d.Level, "department %d", d.ID)
		require.LessOrEqual(t, d.Level, department.MaxLevel)
		var parent *department.Department
		if d.ParentID != nil {
			p, ok := byID[*d.ParentID]
			require.True(t, ok)
			parent = &p
		}
		require.True(t, d.Consistent(parent), "department %d path %s", d.ID, d.Path)
	}
	report, err := e.consistency.Verify(ctx)
	require.NoError(t, err)
	require.True(t, report.OK(), "%+v", report)
}
