package memory

import (
	"context"
	"fmt"

	"github.com/Dr1DeX/orgtree/modules/org/domain/department"
	"github.com/Dr1DeX/orgtree/modules/org/services"
	"github.com/Dr1DeX/orgtree/pkg/orgpath"
)

// LockStructure is a no-op: writers already hold the store mutex.
func (s *Store) LockStructure(context.Context) error { return nil }

func (s *Store) NextDepartmentID(context.Context) (int64, error) {
	return s.departmentSeq.Add(1), nil
}

func (s *Store) InsertDepartment(ctx context.Context, d department.Department) (department.Department, error) {
	err := s.write(ctx, func(st *state) error {
		if _, ok := st.departments[d.ID]; ok {
			return fmt.Errorf("%w: department %d exists", services.ErrConflict, d.ID)
		}
		if d.ParentID != nil {
			if _, ok := st.departments[*d.ParentID]; !ok {
				return fmt.Errorf("%w: %d", services.ErrParentNotFound, *d.ParentID)
			}
		}
		now := s.now().UTC()
		d.CreatedAt, d.UpdatedAt = now, now
		st.departments[d.ID] = cloneDepartment(d)
		return nil
	})
	if err != nil {
		return department.Department{}, err
	}
	return d, nil
}

func (s *Store) GetDepartment(ctx context.Context, id int64, _ services.LockMode) (department.Department, error) {
	var out department.Department
	err := s.read(ctx, func(st *state) error {
		d, ok := st.departments[id]
		if !ok {
			return fmt.Errorf("department %d: %w", id, services.ErrNotFound)
		}
		out = cloneDepartment(d)
		return nil
	})
	return out, err
}

func (s *Store) LockSubtree(ctx context.Context, path orgpath.Label) ([]department.Department, error) {
	var out []department.Department
	err := s.read(ctx, func(st *state) error {
		out = sortedDepartments(st, func(d department.Department) bool {
			return orgpath.IsDescendantOrSelf(d.Path, path)
		})
		return nil
	})
	return out, err
}

func (s *Store) LockDepartments(ctx context.Context, ids []int64) ([]department.Department, error) {
	want := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	var out []department.Department
	err := s.read(ctx, func(st *state) error {
		out = sortedDepartments(st, func(d department.Department) bool {
			_, ok := want[d.ID]
			return ok
		})
		return nil
	})
	return out, err
}

func (s *Store) ListDepartments(ctx context.Context) ([]department.Department, error) {
	var out []department.Department
	err := s.read(ctx, func(st *state) error {
		out = sortedDepartments(st, nil)
		return nil
	})
	return out, err
}

func hasChildren(st *state, id int64) bool {
	for _, d := range st.departments {
		if d.ParentID != nil && *d.ParentID == id {
			return true
		}
	}
	return false
}

func (s *Store) HasChildren(ctx context.Context, id int64) (bool, error) {
	var out bool
	err := s.read(ctx, func(st *state) error {
		out = hasChildren(st, id)
		return nil
	})
	return out, err
}

func (s *Store) update(ctx context.Context, id int64, fn func(d *department.Department) error) error {
	return s.write(ctx, func(st *state) error {
		d, ok := st.departments[id]
		if !ok {
			return fmt.Errorf("department %d: %w", id, services.ErrNotFound)
		}
		if err := fn(&d); err != nil {
			return err
		}
		d.UpdatedAt = s.now().UTC()
		st.departments[id] = d
		return nil
	})
}

func (s *Store) SetParent(ctx context.Context, id int64, parentID *int64) error {
	return s.update(ctx, id, func(d *department.Department) error {
		if parentID == nil {
			d.ParentID = nil
			return nil
		}
		pid := *parentID
		d.ParentID = &pid
		return nil
	})
}

func (s *Store) RebaseSubtree(ctx context.Context, oldPath, newPath orgpath.Label) (int64, error) {
	var n int64
	err := s.write(ctx, func(st *state) error {
		now := s.now().UTC()
		for id, d := range st.departments {
			if !orgpath.IsDescendantOrSelf(d.Path, oldPath) {
				continue
			}
			rebased, err := orgpath.Rebase(d.Path, oldPath, newPath)
			if err != nil {
				return err
			}
			d.Path = rebased
			d.Level = rebased.Depth()
			d.UpdatedAt = now
			st.departments[id] = d
			n++
		}
		return nil
	})
	return n, err
}

func (s *Store) UpdatePath(ctx context.Context, id int64, path orgpath.Label, level int) error {
	return s.update(ctx, id, func(d *department.Department) error {
		d.Path = path
		d.Level = level
		return nil
	})
}

func (s *Store) Rename(ctx context.Context, id int64, name string) error {
	return s.update(ctx, id, func(d *department.Department) error {
		d.Name = name
		return nil
	})
}

func (s *Store) DeleteDepartment(ctx context.Context, id int64) error {
	return s.write(ctx, func(st *state) error {
		if _, ok := st.departments[id]; !ok {
			return fmt.Errorf("department %d: %w", id, services.ErrNotFound)
		}
		if hasChildren(st, id) {
			return fmt.Errorf("department %d: %w", id, services.ErrHasChildren)
		}
		for _, e := range st.employees {
			if e.DepartmentID == id {
				return fmt.Errorf("department %d: %w", id, services.ErrHasDependents)
			}
		}
		delete(st.departments, id)
		return nil
	})
}
