package services

import (
	"context"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/text/unicode/norm"

	"github.com/Dr1DeX/orgtree/modules/org/domain/department"
	"github.com/Dr1DeX/orgtree/modules/org/domain/events"
	"github.com/Dr1DeX/orgtree/pkg/orgpath"
)

const maxNameLength = 255

type HierarchyService struct {
	stores     Stores
	propagator *Propagator
	cache      SnapshotCache
	events     EventSink
}

func NewHierarchyService(stores Stores, propagator *Propagator, cache SnapshotCache, sink EventSink) *HierarchyService {
	stores = stores.withDefaults()
	if propagator == nil {
		propagator = NewPropagator(stores, 0)
	}
	if cache == nil {
		cache = NoopSnapshotCache{}
	}
	return &HierarchyService{stores: stores, propagator: propagator, cache: cache, events: sink}
}

type CreateDepartmentInput struct {
	Name     string
	ParentID *int64
}

type ReparentDepartmentInput struct {
	ID          int64
	NewParentID *int64
}

type ReparentResult struct {
	Department           department.Department `json:"department"`
	OldPath              orgpath.Label         `json:"old_path"`
	NewPath              orgpath.Label         `json:"new_path"`
	Moved                bool                  `json:"moved"`
	DepartmentsRewritten int64                 `json:"departments_rewritten"`
	EmployeesRewritten   int64                 `json:"employees_rewritten"`
}

func normalizeName(name string) (string, error) {
	name = norm.NFC.String(strings.TrimSpace(name))
	if name == "" {
		return "", invalidInput("name is required")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return "", invalidInput("name must be at most %d characters", maxNameLength)
	}
	return name, nil
}

func (s *HierarchyService) CreateDepartment(ctx context.Context, in CreateDepartmentInput) (_ *department.Department, err error) {
	ctx, finish := startOp(ctx, "CreateDepartment")
	defer func() { finish(err) }()

	name, err := normalizeName(in.Name)
	if err != nil {
		return nil, err
	}
	if in.ParentID != nil {
		if err := requirePositiveID("parent_id", *in.ParentID); err != nil {
			return nil, err
		}
	}

	created, err := inTx(ctx, s.stores.InTx, func(txCtx context.Context) (department.Department, error) {
		if err := s.stores.Departments.LockStructure(txCtx); err != nil {
			return department.Department{}, err
		}

		var parent *department.Department
		if in.ParentID != nil {
			p, err := s.stores.Departments.GetDepartment(txCtx, *in.ParentID, LockShare)
			if err != nil {
				return department.Department{}, notFoundAs(err, 422, CodeParentNotFound, "parent department not found", ErrParentNotFound)
			}
			if p.Level >= department.MaxLevel {
				return department.Department{}, depthExceeded(p.Level + 1)
			}
			parent = &p
		}

		// Phase one reserves the id, phase two stamps the path that embeds it.
		id, err := s.stores.Departments.NextDepartmentID(txCtx)
		if err != nil {
			return department.Department{}, err
		}
		path, level, err := department.ExpectedPath(id, parent)
		if err != nil {
			return department.Department{}, encodingError(err)
		}

		return s.stores.Departments.InsertDepartment(txCtx, department.Department{
			ID:       id,
			Name:     name,
			ParentID: in.ParentID,
			Level:    level,
			Path:     path,
		})
	})
	if err != nil {
		err = mapPgErrorToServiceError(err)
		logServiceError(ctx, "CreateDepartment", err, logrus.Fields{"parent_id": in.ParentID})
		return nil, err
	}

	invalidateSnapshot(ctx, s.cache, "department_created")
	emitEvent(ctx, s.events, events.ChangeDepartmentCreated, events.EntityDepartment, created.ID, nil, created)
	logWithFields(ctx, logrus.InfoLevel, "department created", logrus.Fields{
		"department_id": created.ID,
		"path":          created.Path.String(),
		"level":         created.Level,
	})
	return &created, nil
}

func sameParent(current, next *int64) bool {
	if current == nil || next == nil {
		return current == nil && next == nil
	}
	return *current == *next
}

func (s *HierarchyService) ReparentDepartment(ctx context.Context, in ReparentDepartmentInput) (_ *ReparentResult, err error) {
	ctx, finish := startOp(ctx, "ReparentDepartment", attribute.Int64("department.id", in.ID))
	defer func() { finish(err) }()

	if err := requirePositiveID("id", in.ID); err != nil {
		return nil, err
	}
	if in.NewParentID != nil {
		if *in.NewParentID == in.ID {
			return nil, newServiceError(422, CodeCycleRejected, "department cannot become its own parent", ErrCycleRejected)
		}
		if err := requirePositiveID("parent_id", *in.NewParentID); err != nil {
			return nil, err
		}
	}

	res, err := inTx(ctx, s.stores.InTx, func(txCtx context.Context) (ReparentResult, error) {
		if err := s.stores.Departments.LockStructure(txCtx); err != nil {
			return ReparentResult{}, err
		}

		node, err := s.stores.Departments.GetDepartment(txCtx, in.ID, LockUpdate)
		if err != nil {
			return ReparentResult{}, err
		}
		out := ReparentResult{Department: node, OldPath: node.Path, NewPath: node.Path}

		if sameParent(node.ParentID, in.NewParentID) {
			return out, nil
		}

		var parent *department.Department
		if in.NewParentID != nil {
			p, err := s.stores.Departments.GetDepartment(txCtx, *in.NewParentID, LockShare)
			if err != nil {
				return ReparentResult{}, notFoundAs(err, 422, CodeParentNotFound, "parent department not found", ErrParentNotFound)
			}
			if orgpath.IsDescendantOrSelf(p.Path, node.Path) {
				return ReparentResult{}, newServiceError(422, CodeCycleRejected, "new parent lies inside the moved subtree", ErrCycleRejected)
			}
			parent = &p
		}

		subtree, err := s.stores.Departments.LockSubtree(txCtx, node.Path)
		if err != nil {
			return ReparentResult{}, err
		}
		deepest := node.Level
		for _, d := range subtree {
			if d.Level > deepest {
				deepest = d.Level
			}
		}

		newPath, newLevel, err := department.ExpectedPath(node.ID, parent)
		if err != nil {
			return ReparentResult{}, encodingError(err)
		}
		if resulting := newLevel + deepest - node.Level; resulting > department.MaxLevel {
			return ReparentResult{}, depthExceeded(resulting)
		}

		if err := s.stores.Departments.SetParent(txCtx, node.ID, in.NewParentID); err != nil {
			return ReparentResult{}, err
		}
		rewritten, err := s.stores.Departments.RebaseSubtree(txCtx, node.Path, newPath)
		if err != nil {
			return ReparentResult{}, err
		}
		propagated, err := s.propagator.Propagate(txCtx, node.ID, node.Path, newPath)
		if err != nil {
			return ReparentResult{}, err
		}

		moved, err := s.stores.Departments.GetDepartment(txCtx, node.ID, LockNone)
		if err != nil {
			return ReparentResult{}, err
		}
		out.Department = moved
		out.NewPath = newPath
		out.Moved = true
		out.DepartmentsRewritten = rewritten
		out.EmployeesRewritten = propagated.Rewritten
		return out, nil
	})
	if err != nil {
		err = mapPgErrorToServiceError(err)
		logServiceError(ctx, "ReparentDepartment", err, logrus.Fields{"department_id": in.ID, "parent_id": in.NewParentID})
		return nil, err
	}

	if !res.Moved {
		logWithFields(ctx, logrus.DebugLevel, "department already under requested parent", logrus.Fields{"department_id": in.ID})
		return &res, nil
	}

	invalidateSnapshot(ctx, s.cache, "department_moved")
	emitEvent(ctx, s.events, events.ChangeDepartmentMoved, events.EntityDepartment, in.ID,
		map[string]any{"path": res.OldPath},
		map[string]any{"path": res.NewPath, "parent_id": in.NewParentID})
	logWithFields(ctx, logrus.InfoLevel, "department moved", logrus.Fields{
		"department_id":         in.ID,
		"old_path":              res.OldPath.String(),
		"new_path":              res.NewPath.String(),
		"departments_rewritten": res.DepartmentsRewritten,
		"rewritten":             res.EmployeesRewritten,
	})
	return &res, nil
}

func (s *HierarchyService) RenameDepartment(ctx context.Context, id int64, name string) (_ *department.Department, err error) {
	ctx, finish := startOp(ctx, "RenameDepartment", attribute.Int64("department.id", id))
	defer func() { finish(err) }()

	if err := requirePositiveID("id", id); err != nil {
		return nil, err
	}
	name, err = normalizeName(name)
	if err != nil {
		return nil, err
	}

	type renamed struct {
		before, after department.Department
	}
	res, err := inTx(ctx, s.stores.InTx, func(txCtx context.Context) (renamed, error) {
		before, err := s.stores.Departments.GetDepartment(txCtx, id, LockUpdate)
		if err != nil {
			return renamed{}, err
		}
		if err := s.stores.Departments.Rename(txCtx, id, name); err != nil {
			return renamed{}, err
		}
		after, err := s.stores.Departments.GetDepartment(txCtx, id, LockNone)
		if err != nil {
			return renamed{}, err
		}
		return renamed{before: before, after: after}, nil
	})
	if err != nil {
		err = mapPgErrorToServiceError(err)
		logServiceError(ctx, "RenameDepartment", err, logrus.Fields{"department_id": id})
		return nil, err
	}

	invalidateSnapshot(ctx, s.cache, "department_renamed")
	emitEvent(ctx, s.events, events.ChangeDepartmentRenamed, events.EntityDepartment, id,
		map[string]any{"name": res.before.Name}, map[string]any{"name": res.after.Name})
	return &res.after, nil
}

func (s *HierarchyService) DeleteDepartment(ctx context.Context, id int64) (err error) {
	ctx, finish := startOp(ctx, "DeleteDepartment", attribute.Int64("department.id", id))
	defer func() { finish(err) }()

	if err := requirePositiveID("id", id); err != nil {
		return err
	}

	deleted, err := inTx(ctx, s.stores.InTx, func(txCtx context.Context) (department.Department, error) {
		if err := s.stores.Departments.LockStructure(txCtx); err != nil {
			return department.Department{}, err
		}
		d, err := s.stores.Departments.GetDepartment(txCtx, id, LockUpdate)
		if err != nil {
			return department.Department{}, err
		}
		hasChildren, err := s.stores.Departments.HasChildren(txCtx, id)
		if err != nil {
			return department.Department{}, err
		}
		if hasChildren {
			return department.Department{}, newServiceError(409, CodeHasChildren, "department has child departments", ErrHasChildren)
		}
		hasEmployees, err := s.stores.Employees.HasEmployees(txCtx, id)
		if err != nil {
			return department.Department{}, err
		}
		if hasEmployees {
			return department.Department{}, newServiceError(409, CodeHasDependents, "department has employees", ErrHasDependents)
		}
		return d, s.stores.Departments.DeleteDepartment(txCtx, id)
	})
	if err != nil {
		err = mapPgErrorToServiceError(err)
		logServiceError(ctx, "DeleteDepartment", err, logrus.Fields{"department_id": id})
		return err
	}

	invalidateSnapshot(ctx, s.cache, "department_deleted")
	emitEvent(ctx, s.events, events.ChangeDepartmentDeleted, events.EntityDepartment, id, deleted, nil)
	logWithFields(ctx, logrus.InfoLevel, "department deleted", logrus.Fields{
		"department_id": id,
		"path":          deleted.Path.String(),
	})
	return nil
}

func (s *HierarchyService) GetDepartment(ctx context.Context, id int64) (*department.Department, error) {
	if err := requirePositiveID("id", id); err != nil {
		return nil, err
	}
	d, err := s.stores.Departments.GetDepartment(ctx, id, LockNone)
	if err != nil {
		return nil, mapPgErrorToServiceError(err)
	}
	return &d, nil
}

// ListDepartments returns the whole forest ordered by path.
func (s *HierarchyService) ListDepartments(ctx context.Context) ([]department.Department, error) {
	out, err := s.stores.Departments.ListDepartments(ctx)
	if err != nil {
		return nil, mapPgErrorToServiceError(err)
	}
	return out, nil
}

// SearchDepartments ranks departments whose name fuzzily matches q, closest
// first. Ties keep path order. limit <= 0 returns every match.
func (s *HierarchyService) SearchDepartments(ctx context.Context, q string, limit int) ([]department.Department, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, invalidInput("q is required")
	}
	all, err := s.ListDepartments(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(all))
	for i, d := range all {
		names[i] = d.Name
	}
	ranks := fuzzy.RankFindNormalizedFold(q, names)
	sort.SliceStable(ranks, func(i, j int) bool {
		if ranks[i].Distance != ranks[j].Distance {
			return ranks[i].Distance < ranks[j].Distance
		}
		return ranks[i].OriginalIndex < ranks[j].OriginalIndex
	})
	if limit > 0 && len(ranks) > limit {
		ranks = ranks[:limit]
	}
	out := make([]department.Department, 0, len(ranks))
	for _, r := range ranks {
		out = append(out, all[r.OriginalIndex])
	}
	return out, nil
}
