package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Dr1DeX/orgtree/modules/org/domain/department"
	"github.com/Dr1DeX/orgtree/modules/org/domain/employee"
	"github.com/Dr1DeX/orgtree/pkg/orgpath"
)

const (
	DefaultPageSize    = 10
	DefaultMaxPageSize = 100
	DefaultSnapshotTTL = 5 * time.Minute
)

type QueryOptions struct {
	PageSize    int
	MaxPageSize int
	SnapshotTTL time.Duration
}

type SubtreeQueryService struct {
	stores Stores
	cache  SnapshotCache
	opts   QueryOptions
	now    func() time.Time
}

func NewSubtreeQueryService(stores Stores, cache SnapshotCache, opts QueryOptions) *SubtreeQueryService {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.MaxPageSize <= 0 {
		opts.MaxPageSize = DefaultMaxPageSize
	}
	if opts.PageSize > opts.MaxPageSize {
		opts.PageSize = opts.MaxPageSize
	}
	if opts.SnapshotTTL <= 0 {
		opts.SnapshotTTL = DefaultSnapshotTTL
	}
	if cache == nil {
		cache = NoopSnapshotCache{}
	}
	return &SubtreeQueryService{stores: stores.withDefaults(), cache: cache, opts: opts, now: time.Now}
}

func (s *SubtreeQueryService) count(ctx context.Context, departmentID int64, includeSubtree bool) (int64, error) {
	if err := requirePositiveID("department_id", departmentID); err != nil {
		return 0, err
	}
	n, err := inTx(ctx, s.stores.InReadTx, func(txCtx context.Context) (int64, error) {
		d, err := s.stores.Departments.GetDepartment(txCtx, departmentID, LockNone)
		if err != nil {
			return 0, err
		}
		return s.stores.Employees.CountByPath(txCtx, d.Path, includeSubtree)
	})
	if err != nil {
		return 0, mapPgErrorToServiceError(err)
	}
	return n, nil
}

// CountUnder counts employees of the department and of every department below it.
func (s *SubtreeQueryService) CountUnder(ctx context.Context, departmentID int64) (_ int64, err error) {
	ctx, finish := startOp(ctx, "CountUnder", attribute.Int64("department.id", departmentID))
	defer func() { finish(err) }()
	return s.count(ctx, departmentID, true)
}

func (s *SubtreeQueryService) CountDirect(ctx context.Context, departmentID int64) (int64, error) {
	return s.count(ctx, departmentID, false)
}

func (s *SubtreeQueryService) normalizePage(p ListParams) ListParams {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize <= 0 {
		p.PageSize = s.opts.PageSize
	}
	if p.PageSize > s.opts.MaxPageSize {
		p.PageSize = s.opts.MaxPageSize
	}
	return p
}

func (s *SubtreeQueryService) ListUnder(ctx context.Context, departmentID int64, params ListParams) (_ *EmployeePage, err error) {
	ctx, finish := startOp(ctx, "ListUnder",
		attribute.Int64("department.id", departmentID),
		attribute.Bool("include_subtree", params.IncludeSubtree),
	)
	defer func() { finish(err) }()

	if err := requirePositiveID("department_id", departmentID); err != nil {
		return nil, err
	}
	params = s.normalizePage(params)

	page, err := inTx(ctx, s.stores.InReadTx, func(txCtx context.Context) (*EmployeePage, error) {
		d, err := s.stores.Departments.GetDepartment(txCtx, departmentID, LockNone)
		if err != nil {
			return nil, err
		}
		total, err := s.stores.Employees.CountByPath(txCtx, d.Path, params.IncludeSubtree)
		if err != nil {
			return nil, err
		}

		numPages := int((total + int64(params.PageSize) - 1) / int64(params.PageSize))
		if numPages < 1 {
			numPages = 1
		}
		current := params.Page
		if current > numPages {
			current = 1
		}

		items, err := s.stores.Employees.ListByPath(txCtx, d.Path, params.IncludeSubtree, params.PageSize, (current-1)*params.PageSize)
		if err != nil {
			return nil, err
		}
		if items == nil {
			items = []employee.Employee{}
		}
		return &EmployeePage{
			Items:          items,
			Page:           current,
			PageSize:       params.PageSize,
			TotalCount:     total,
			NumPages:       numPages,
			HasNext:        current < numPages,
			HasPrevious:    current > 1,
			IncludeSubtree: params.IncludeSubtree,
		}, nil
	})
	if err != nil {
		return nil, mapPgErrorToServiceError(err)
	}
	return page, nil
}

// TreeSnapshot returns the department forest with employee counts, served from the
// cache while it is fresh.
func (s *SubtreeQueryService) TreeSnapshot(ctx context.Context) (_ *TreeSnapshot, err error) {
	ctx, finish := startOp(ctx, "TreeSnapshot", attribute.String("cache", s.cache.Name()))
	defer func() { finish(err) }()

	cached, ok, err := s.cache.Get(ctx)
	if err != nil {
		recordCacheError("get")
		logWithFields(ctx, logrus.WarnLevel, "tree snapshot cache read failed", logrus.Fields{
			"cache": s.cache.Name(),
			"error": err.Error(),
		})
	}
	recordCacheRequest(s.cache.Name(), ok && err == nil)
	if ok && err == nil {
		return cached, nil
	}

	// The generation is read before the build so a write committed meanwhile
	// keeps this tree out of the cache.
	gen, genErr := s.cache.Generation(ctx)
	if genErr != nil {
		recordCacheError("generation")
		logWithFields(ctx, logrus.WarnLevel, "tree snapshot cache generation read failed", logrus.Fields{
			"cache": s.cache.Name(),
			"error": genErr.Error(),
		})
	}

	snapshot, err := s.BuildSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	if genErr != nil {
		return snapshot, nil
	}
	stored, err := s.cache.Set(ctx, snapshot, gen, s.opts.SnapshotTTL)
	if err != nil {
		recordCacheError("set")
		logWithFields(ctx, logrus.WarnLevel, "tree snapshot cache write failed", logrus.Fields{
			"cache": s.cache.Name(),
			"error": err.Error(),
		})
	} else if !stored {
		logWithFields(ctx, logrus.DebugLevel, "tree snapshot invalidated during build, not cached", logrus.Fields{
			"cache":      s.cache.Name(),
			"generation": gen,
		})
	}
	return snapshot, nil
}

// BuildSnapshot reads the forest and its counts from the store, bypassing the cache.
func (s *SubtreeQueryService) BuildSnapshot(ctx context.Context) (*TreeSnapshot, error) {
	type rows struct {
		departments []department.Department
		counts      map[orgpath.Label]int64
	}
	r, err := inTx(ctx, s.stores.InReadTx, func(txCtx context.Context) (rows, error) {
		ds, err := s.stores.Departments.ListDepartments(txCtx)
		if err != nil {
			return rows{}, err
		}
		counts, err := s.stores.Employees.CountDirectByPath(txCtx)
		if err != nil {
			return rows{}, err
		}
		return rows{departments: ds, counts: counts}, nil
	})
	if err != nil {
		return nil, mapPgErrorToServiceError(err)
	}
	return buildSnapshot(r.departments, r.counts, s.now().UTC()), nil
}

// buildSnapshot expects departments ordered by path, so parents precede children.
func buildSnapshot(departments []department.Department, directByPath map[orgpath.Label]int64, generatedAt time.Time) *TreeSnapshot {
	snap := &TreeSnapshot{
		Departments: make(map[int64]*TreeNode, len(departments)),
		RootIDs:     []int64{},
		GeneratedAt: generatedAt,
	}
	for _, d := range departments {
		direct := directByPath[d.Path]
		snap.Departments[d.ID] = &TreeNode{
			ID:                    d.ID,
			Name:                  d.Name,
			ParentID:              d.ParentID,
			Level:                 d.Level,
			Path:                  d.Path,
			EmployeesCount:        direct,
			SubtreeEmployeesCount: direct,
			ChildIDs:              []int64{},
		}
	}
	for _, d := range departments {
		if d.IsRoot() {
			snap.RootIDs = append(snap.RootIDs, d.ID)
			continue
		}
		if parent, ok := snap.Departments[*d.ParentID]; ok {
			parent.ChildIDs = append(parent.ChildIDs, d.ID)
		}
	}
	// Deepest first, so each node's subtree total is final before it is added to its parent.
	for i := len(departments) - 1; i >= 0; i-- {
		d := departments[i]
		if d.IsRoot() {
			continue
		}
		if parent, ok := snap.Departments[*d.ParentID]; ok {
			parent.SubtreeEmployeesCount += snap.Departments[d.ID].SubtreeEmployeesCount
		}
	}
	return snap
}
