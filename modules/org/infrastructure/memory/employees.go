package memory

import (
	"context"
	"fmt"

	"github.com/Dr1DeX/orgtree/modules/org/domain/employee"
	"github.com/Dr1DeX/orgtree/modules/org/services"
	"github.com/Dr1DeX/orgtree/pkg/orgpath"
)

func (s *Store) InsertEmployee(ctx context.Context, e employee.Employee) (employee.Employee, error) {
	err := s.write(ctx, func(st *state) error {
		if _, ok := st.departments[e.DepartmentID]; !ok {
			return fmt.Errorf("%w: %d", services.ErrDepartmentNotFound, e.DepartmentID)
		}
		e.ID = s.employeeSeq.Add(1)
		now := s.now().UTC()
		e.CreatedAt, e.UpdatedAt = now, now
		st.employees[e.ID] = e
		return nil
	})
	if err != nil {
		return employee.Employee{}, err
	}
	return e, nil
}

func (s *Store) InsertEmployees(ctx context.Context, es []employee.Employee) (int64, error) {
	err := s.write(ctx, func(st *state) error {
		now := s.now().UTC()
		for _, e := range es {
			if _, ok := st.departments[e.DepartmentID]; !ok {
				return fmt.Errorf("%w: %d", services.ErrDepartmentNotFound, e.DepartmentID)
			}
			e.ID = s.employeeSeq.Add(1)
			e.CreatedAt, e.UpdatedAt = now, now
			st.employees[e.ID] = e
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int64(len(es)), nil
}

func (s *Store) GetEmployee(ctx context.Context, id int64, _ services.LockMode) (employee.Employee, error) {
	var out employee.Employee
	err := s.read(ctx, func(st *state) error {
		e, ok := st.employees[id]
		if !ok {
			return fmt.Errorf("employee %d: %w", id, services.ErrNotFound)
		}
		out = e
		return nil
	})
	return out, err
}

func (s *Store) UpdateEmployee(ctx context.Context, e employee.Employee) (employee.Employee, error) {
	err := s.write(ctx, func(st *state) error {
		current, ok := st.employees[e.ID]
		if !ok {
			return fmt.Errorf("employee %d: %w", e.ID, services.ErrNotFound)
		}
		if _, ok := st.departments[e.DepartmentID]; !ok {
			return fmt.Errorf("%w: %d", services.ErrDepartmentNotFound, e.DepartmentID)
		}
		e.CreatedAt = current.CreatedAt
		e.UpdatedAt = s.now().UTC()
		st.employees[e.ID] = e
		return nil
	})
	if err != nil {
		return employee.Employee{}, err
	}
	return e, nil
}

func (s *Store) DeleteEmployee(ctx context.Context, id int64) error {
	return s.write(ctx, func(st *state) error {
		if _, ok := st.employees[id]; !ok {
			return fmt.Errorf("employee %d: %w", id, services.ErrNotFound)
		}
		delete(st.employees, id)
		return nil
	})
}

func (s *Store) HasEmployees(ctx context.Context, departmentID int64) (bool, error) {
	var out bool
	err := s.read(ctx, func(st *state) error {
		for _, e := range st.employees {
			if e.DepartmentID == departmentID {
				out = true
				return nil
			}
		}
		return nil
	})
	return out, err
}

// rewrite stamps the owning department's path on up to limit matching employees, lowest id first.
func (s *Store) rewrite(ctx context.Context, limit int, match func(st *state, e employee.Employee, deptPath orgpath.Label) bool) (int64, error) {
	if err := s.runRewriteHook(); err != nil {
		return 0, err
	}
	var n int64
	err := s.write(ctx, func(st *state) error {
		now := s.now().UTC()
		for _, e := range sortedEmployees(st, nil) {
			if limit > 0 && n >= int64(limit) {
				break
			}
			d, ok := st.departments[e.DepartmentID]
			if !ok || e.StructurePath == d.Path || !match(st, e, d.Path) {
				continue
			}
			e.StructurePath = d.Path
			e.UpdatedAt = now
			st.employees[e.ID] = e
			n++
		}
		return nil
	})
	return n, err
}

func (s *Store) RewriteStructurePaths(ctx context.Context, oldPath, newPath orgpath.Label, limit int) (int64, error) {
	return s.rewrite(ctx, limit, func(_ *state, e employee.Employee, deptPath orgpath.Label) bool {
		return orgpath.IsDescendantOrSelf(deptPath, newPath) || orgpath.IsDescendantOrSelf(e.StructurePath, oldPath)
	})
}

func (s *Store) RewriteStaleStructurePaths(ctx context.Context, limit int) (int64, error) {
	return s.rewrite(ctx, limit, func(*state, employee.Employee, orgpath.Label) bool { return true })
}

func (s *Store) CountStale(ctx context.Context) (int64, error) {
	var n int64
	err := s.read(ctx, func(st *state) error {
		for _, e := range st.employees {
			if d, ok := st.departments[e.DepartmentID]; !ok || d.Path != e.StructurePath {
				n++
			}
		}
		return nil
	})
	return n, err
}

func underPath(path orgpath.Label, includeSubtree bool) func(employee.Employee) bool {
	return func(e employee.Employee) bool {
		if includeSubtree {
			return orgpath.IsDescendantOrSelf(e.StructurePath, path)
		}
		return e.StructurePath == path
	}
}

func (s *Store) CountByPath(ctx context.Context, path orgpath.Label, includeSubtree bool) (int64, error) {
	var n int64
	keep := underPath(path, includeSubtree)
	err := s.read(ctx, func(st *state) error {
		for _, e := range st.employees {
			if keep(e) {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (s *Store) ListByPath(ctx context.Context, path orgpath.Label, includeSubtree bool, limit, offset int) ([]employee.Employee, error) {
	var out []employee.Employee
	err := s.read(ctx, func(st *state) error {
		all := sortedEmployees(st, underPath(path, includeSubtree))
		if offset >= len(all) {
			out = []employee.Employee{}
			return nil
		}
		end := len(all)
		if limit > 0 && offset+limit < end {
			end = offset + limit
		}
		out = all[offset:end]
		return nil
	})
	return out, err
}

func (s *Store) CountDirectByPath(ctx context.Context) (map[orgpath.Label]int64, error) {
	out := map[orgpath.Label]int64{}
	err := s.read(ctx, func(st *state) error {
		for _, e := range st.employees {
			out[e.StructurePath]++
		}
		return nil
	})
	return out, err
}

// Corrupt overwrites an employee's structure_path without touching anything else.
// It exists so consistency repair can be exercised.
func (s *Store) Corrupt(ctx context.Context, employeeID int64, path orgpath.Label) error {
	return s.write(ctx, func(st *state) error {
		e, ok := st.employees[employeeID]
		if !ok {
			return fmt.Errorf("employee %d: %w", employeeID, services.ErrNotFound)
		}
		e.StructurePath = path
		st.employees[employeeID] = e
		return nil
	})
}
