package services

import (
	"context"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Dr1DeX/orgtree/pkg/orgpath"
)

const DefaultPropagationBatchSize = 1000

// Propagator keeps employees' denormalized structure_path equal to their department's path.
type Propagator struct {
	stores    Stores
	batchSize int
}

func NewPropagator(stores Stores, batchSize int) *Propagator {
	if batchSize <= 0 {
		batchSize = DefaultPropagationBatchSize
	}
	return &Propagator{stores: stores.withDefaults(), batchSize: batchSize}
}

func (p *Propagator) BatchSize() int { return p.batchSize }

type PropagationResult struct {
	DepartmentID int64         `json:"department_id"`
	OldPath      orgpath.Label `json:"old_path"`
	NewPath      orgpath.Label `json:"new_path"`
	Rewritten    int64         `json:"rewritten"`
	Batches      int           `json:"batches"`
}

// Propagate rewrites the structure_path of employees affected by departmentID moving
// from oldPath to newPath. Each batch joins the transaction in ctx if there is one,
// otherwise it commits on its own, so a failed run resumes by calling Propagate again.
func (p *Propagator) Propagate(ctx context.Context, departmentID int64, oldPath, newPath orgpath.Label) (_ PropagationResult, err error) {
	ctx, finish := startOp(ctx, "Propagate",
		attribute.Int64("department.id", departmentID),
		attribute.String("path.old", oldPath.String()),
		attribute.String("path.new", newPath.String()),
	)
	defer func() { finish(err) }()

	out := PropagationResult{DepartmentID: departmentID, OldPath: oldPath, NewPath: newPath}
	if _, err := orgpath.Parse(oldPath.String()); err != nil {
		return out, encodingError(err)
	}
	if _, err := orgpath.Parse(newPath.String()); err != nil {
		return out, encodingError(err)
	}

	for {
		var n int64
		err := p.stores.InTx(ctx, func(txCtx context.Context) error {
			var innerErr error
			n, innerErr = p.stores.Employees.RewriteStructurePaths(txCtx, oldPath, newPath, p.batchSize)
			return innerErr
		})
		if err != nil {
			return out, mapPgErrorToServiceError(err)
		}
		out.Batches++
		out.Rewritten += n
		recordPropagationBatch(n)
		if n < int64(p.batchSize) {
			break
		}
	}

	logWithFields(ctx, logrus.InfoLevel, "structure paths propagated", logrus.Fields{
		"department_id": departmentID,
		"old_path":      oldPath.String(),
		"new_path":      newPath.String(),
		"rewritten":     out.Rewritten,
		"batches":       out.Batches,
	})
	return out, nil
}

// PropagateDepartment re-syncs every employee at or under the department's current path.
func (p *Propagator) PropagateDepartment(ctx context.Context, departmentID int64) (PropagationResult, error) {
	if err := requirePositiveID("department_id", departmentID); err != nil {
		return PropagationResult{}, err
	}
	d, err := p.stores.Departments.GetDepartment(ctx, departmentID, LockNone)
	if err != nil {
		return PropagationResult{}, mapPgErrorToServiceError(err)
	}
	return p.Propagate(ctx, d.ID, d.Path, d.Path)
}

// propagateAll repairs stale employees across the whole forest, one committed batch at a time.
func (p *Propagator) propagateAll(ctx context.Context) (PropagationResult, error) {
	var out PropagationResult
	for {
		var n int64
		err := p.stores.InTx(ctx, func(txCtx context.Context) error {
			var innerErr error
			n, innerErr = p.stores.Employees.RewriteStaleStructurePaths(txCtx, p.batchSize)
			return innerErr
		})
		if err != nil {
			return out, mapPgErrorToServiceError(err)
		}
		out.Batches++
		out.Rewritten += n
		recordPropagationBatch(n)
		if n < int64(p.batchSize) {
			return out, nil
		}
	}
}
