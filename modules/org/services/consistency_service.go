package services

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Dr1DeX/orgtree/modules/org/domain/department"
	"github.com/Dr1DeX/orgtree/pkg/orgpath"
)

type ConsistencyService struct {
	stores     Stores
	propagator *Propagator
	cache      SnapshotCache
}

func NewConsistencyService(stores Stores, propagator *Propagator, cache SnapshotCache) *ConsistencyService {
	stores = stores.withDefaults()
	if propagator == nil {
		propagator = NewPropagator(stores, 0)
	}
	if cache == nil {
		cache = NoopSnapshotCache{}
	}
	return &ConsistencyService{stores: stores, propagator: propagator, cache: cache}
}

type ConsistencyReport struct {
	Departments         int     `json:"departments"`
	BadPathDepartments  []int64 `json:"bad_path_departments"`
	BadLevelDepartments []int64 `json:"bad_level_departments"`
	StaleEmployees      int64   `json:"stale_employees"`
}

func (r ConsistencyReport) OK() bool {
	return len(r.BadPathDepartments) == 0 && len(r.BadLevelDepartments) == 0 && r.StaleEmployees == 0
}

type ReconcileResult struct {
	DepartmentsFixed int   `json:"departments_fixed"`
	EmployeesFixed   int64 `json:"employees_fixed"`
	Batches          int   `json:"batches"`
	BatchSize        int   `json:"batch_size"`
}

type repair struct {
	id    int64
	path  orgpath.Label
	level int
}

// planRepairs derives every department's path from the parent_id chain, walking
// down from the roots. Nodes unreachable from a root indicate a parent cycle.
func planRepairs(departments []department.Department) (map[int64]repair, error) {
	children := make(map[int64][]department.Department, len(departments))
	var roots []department.Department
	for _, d := range departments {
		if d.IsRoot() {
			roots = append(roots, d)
			continue
		}
		children[*d.ParentID] = append(children[*d.ParentID], d)
	}

	expected := make(map[int64]repair, len(departments))
	queue := make([]*department.Department, 0, len(departments))
	for i := range roots {
		queue = append(queue, &roots[i])
	}
	parents := map[int64]*department.Department{}
	for len(queue) > 0 {
		d := queue[0]
		queue = queue[1:]

		var parent *department.Department
		if !d.IsRoot() {
			p := parents[d.ID]
			parent = &department.Department{ID: p.ID, Path: expected[p.ID].path, Level: expected[p.ID].level}
		}
		path, level, err := department.ExpectedPath(d.ID, parent)
		if err != nil {
			return nil, encodingError(err)
		}
		if level > department.MaxLevel {
			return nil, depthExceeded(level)
		}
		expected[d.ID] = repair{id: d.ID, path: path, level: level}

		for i := range children[d.ID] {
			child := &children[d.ID][i]
			parents[child.ID] = d
			queue = append(queue, child)
		}
	}
	if len(expected) != len(departments) {
		return nil, fmt.Errorf("parent_id cycle: %d of %d departments unreachable from a root",
			len(departments)-len(expected), len(departments))
	}
	return expected, nil
}

func (s *ConsistencyService) Verify(ctx context.Context) (_ *ConsistencyReport, err error) {
	ctx, finish := startOp(ctx, "Verify")
	defer func() { finish(err) }()

	report, err := inTx(ctx, s.stores.InReadTx, func(txCtx context.Context) (*ConsistencyReport, error) {
		ds, err := s.stores.Departments.ListDepartments(txCtx)
		if err != nil {
			return nil, err
		}
		out := &ConsistencyReport{
			Departments:         len(ds),
			BadPathDepartments:  []int64{},
			BadLevelDepartments: []int64{},
		}
		byID := make(map[int64]*department.Department, len(ds))
		for i := range ds {
			byID[ds[i].ID] = &ds[i]
		}
		for _, d := range ds {
			var parent *department.Department
			if !d.IsRoot() {
				parent = byID[*d.ParentID]
			}
			if d.Consistent(parent) {
				continue
			}
			if d.Level != d.Path.Depth() || d.Level > department.MaxLevel {
				out.BadLevelDepartments = append(out.BadLevelDepartments, d.ID)
			}
			expected, _, err := department.ExpectedPath(d.ID, parent)
			if err != nil || expected != d.Path {
				out.BadPathDepartments = append(out.BadPathDepartments, d.ID)
			}
		}
		out.StaleEmployees, err = s.stores.Employees.CountStale(txCtx)
		if err != nil {
			return nil, err
		}
		return out, nil
	})
	if err != nil {
		return nil, mapPgErrorToServiceError(err)
	}

	level := logrus.InfoLevel
	if !report.OK() {
		level = logrus.WarnLevel
	}
	logWithFields(ctx, level, "org consistency verified", logrus.Fields{
		"departments":           report.Departments,
		"bad_path_departments":  len(report.BadPathDepartments),
		"bad_level_departments": len(report.BadLevelDepartments),
		"stale_employees":       report.StaleEmployees,
	})
	return report, nil
}

// Reconcile rewrites department paths from parent_id in one transaction, then repairs
// employees batch by batch.
func (s *ConsistencyService) Reconcile(ctx context.Context) (_ *ReconcileResult, err error) {
	ctx, finish := startOp(ctx, "Reconcile")
	defer func() { finish(err) }()

	fixed, err := inTx(ctx, s.stores.InTx, func(txCtx context.Context) (int, error) {
		if err := s.stores.Departments.LockStructure(txCtx); err != nil {
			return 0, err
		}
		ds, err := s.stores.Departments.ListDepartments(txCtx)
		if err != nil {
			return 0, err
		}
		plan, err := planRepairs(ds)
		if err != nil {
			return 0, err
		}
		n := 0
		for _, d := range ds {
			want := plan[d.ID]
			if want.path == d.Path && want.level == d.Level {
				continue
			}
			if err := s.stores.Departments.UpdatePath(txCtx, d.ID, want.path, want.level); err != nil {
				return 0, err
			}
			n++
		}
		return n, nil
	})
	if err != nil {
		return nil, mapPgErrorToServiceError(err)
	}

	prop, err := s.propagator.propagateAll(ctx)
	out := &ReconcileResult{
		DepartmentsFixed: fixed,
		EmployeesFixed:   prop.Rewritten,
		Batches:          prop.Batches,
		BatchSize:        s.propagator.BatchSize(),
	}
	if fixed > 0 || prop.Rewritten > 0 {
		invalidateSnapshot(ctx, s.cache, "reconcile")
	}
	if err != nil {
		return out, err
	}

	logWithFields(ctx, logrus.InfoLevel, "org consistency reconciled", logrus.Fields{
		"departments_fixed": out.DepartmentsFixed,
		"rewritten":         out.EmployeesFixed,
		"batches":           out.Batches,
		"batch_size":        out.BatchSize,
	})
	return out, nil
}
