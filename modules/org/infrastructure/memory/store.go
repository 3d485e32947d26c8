// Package memory is a transactional in-memory implementation of the org
// repositories. Writers are serialized by one mutex and work on a copy of the
// state that replaces the committed state only when the transaction succeeds.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Dr1DeX/orgtree/modules/org/domain/department"
	"github.com/Dr1DeX/orgtree/modules/org/domain/employee"
	"github.com/Dr1DeX/orgtree/modules/org/services"
	"github.com/Dr1DeX/orgtree/pkg/orgpath"
)

var errReadOnly = errors.New("memory: write in read-only transaction")

type state struct {
	departments map[int64]department.Department
	employees   map[int64]employee.Employee
}

func newState() state {
	return state{
		departments: map[int64]department.Department{},
		employees:   map[int64]employee.Employee{},
	}
}

func (s state) clone() state {
	out := state{
		departments: make(map[int64]department.Department, len(s.departments)),
		employees:   make(map[int64]employee.Employee, len(s.employees)),
	}
	for k, v := range s.departments {
		out.departments[k] = cloneDepartment(v)
	}
	for k, v := range s.employees {
		out.employees[k] = v
	}
	return out
}

func cloneDepartment(d department.Department) department.Department {
	if d.ParentID != nil {
		id := *d.ParentID
		d.ParentID = &id
	}
	return d
}

type txKey struct{}

type transaction struct {
	store    *Store
	state    state
	readOnly bool
}

type Store struct {
	mu    sync.RWMutex
	state state

	departmentSeq atomic.Int64
	employeeSeq   atomic.Int64
	now           func() time.Time

	hookMu        sync.Mutex
	rewriteHook   func(batch int) error
	rewriteCalled int
}

func New() *Store {
	return &Store{state: newState(), now: time.Now}
}

// Stores exposes the store through the service ports.
func (s *Store) Stores() services.Stores {
	return services.Stores{
		Departments: s,
		Employees:   s,
		InTx:        s.InTx,
		InReadTx:    s.InReadTx,
	}
}

// SetRewriteHook installs fn to run before every structure_path rewrite batch.
// A non-nil error aborts the batch. Used to inject failures.
func (s *Store) SetRewriteHook(fn func(batch int) error) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.rewriteHook = fn
	s.rewriteCalled = 0
}

func (s *Store) runRewriteHook() error {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.rewriteCalled++
	if s.rewriteHook == nil {
		return nil
	}
	return s.rewriteHook(s.rewriteCalled)
}

func (s *Store) txFrom(ctx context.Context) *transaction {
	t, ok := ctx.Value(txKey{}).(*transaction)
	if !ok || t.store != s {
		return nil
	}
	return t
}

// InTx joins the transaction in ctx or runs fn on a private copy of the state,
// committing it when fn and the constraint checks succeed.
func (s *Store) InTx(ctx context.Context, fn func(context.Context) error) error {
	if t := s.txFrom(ctx); t != nil {
		if t.readOnly {
			return errReadOnly
		}
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	t := &transaction{store: s, state: s.state.clone()}
	if err := fn(context.WithValue(ctx, txKey{}, t)); err != nil {
		return err
	}
	if err := t.state.check(); err != nil {
		return err
	}
	s.state = t.state
	return nil
}

// InReadTx runs fn against a consistent copy of the committed state.
func (s *Store) InReadTx(ctx context.Context, fn func(context.Context) error) error {
	if s.txFrom(ctx) != nil {
		return fn(ctx)
	}
	s.mu.RLock()
	t := &transaction{store: s, state: s.state.clone(), readOnly: true}
	s.mu.RUnlock()
	return fn(context.WithValue(ctx, txKey{}, t))
}

func (s *Store) read(ctx context.Context, fn func(st *state) error) error {
	if t := s.txFrom(ctx); t != nil {
		return fn(&t.state)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&s.state)
}

func (s *Store) write(ctx context.Context, fn func(st *state) error) error {
	return s.InTx(ctx, func(txCtx context.Context) error {
		t := s.txFrom(txCtx)
		if t.readOnly {
			return errReadOnly
		}
		return fn(&t.state)
	})
}

// check enforces what the database enforces with constraints at commit.
func (st *state) check() error {
	paths := make(map[orgpath.Label]int64, len(st.departments))
	for _, d := range st.departments {
		if other, ok := paths[d.Path]; ok {
			return fmt.Errorf("%w: departments %d and %d share path %s", services.ErrConflict, other, d.ID, d.Path)
		}
		paths[d.Path] = d.ID
		if d.Level < 1 || d.Level > department.MaxLevel {
			return fmt.Errorf("%w: department %d at level %d", services.ErrDepthExceeded, d.ID, d.Level)
		}
		if d.Level != d.Path.Depth() {
			return fmt.Errorf("memory: department %d level %d does not match path %s", d.ID, d.Level, d.Path)
		}
		if d.ParentID != nil {
			if _, ok := st.departments[*d.ParentID]; !ok {
				return fmt.Errorf("%w: %d", services.ErrParentNotFound, *d.ParentID)
			}
		}
	}
	for _, e := range st.employees {
		if _, ok := st.departments[e.DepartmentID]; !ok {
			return fmt.Errorf("%w: %d", services.ErrDepartmentNotFound, e.DepartmentID)
		}
	}
	return nil
}

func sortedDepartments(st *state, keep func(department.Department) bool) []department.Department {
	out := make([]department.Department, 0, len(st.departments))
	for _, d := range st.departments {
		if keep == nil || keep(d) {
			out = append(out, cloneDepartment(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func sortedEmployees(st *state, keep func(employee.Employee) bool) []employee.Employee {
	out := make([]employee.Employee, 0, len(st.employees))
	for _, e := range st.employees {
		if keep == nil || keep(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
