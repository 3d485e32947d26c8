package services

import (
	"context"
	"fmt"
	"time"

	"github.com/Dr1DeX/orgtree/modules/org/domain/department"
	"github.com/Dr1DeX/orgtree/modules/org/domain/employee"
	"github.com/Dr1DeX/orgtree/pkg/composables"
	"github.com/Dr1DeX/orgtree/pkg/orgpath"
)

type LockMode int

const (
	LockNone LockMode = iota
	LockShare
	LockUpdate
)

type DepartmentRepository interface {
	// LockStructure serializes structural edits for the rest of the transaction.
	LockStructure(ctx context.Context) error
	NextDepartmentID(ctx context.Context) (int64, error)
	InsertDepartment(ctx context.Context, d department.Department) (department.Department, error)
	GetDepartment(ctx context.Context, id int64, lock LockMode) (department.Department, error)
	LockSubtree(ctx context.Context, path orgpath.Label) ([]department.Department, error)
	// LockDepartments share-locks the departments with the given ids in path order.
	// Unknown ids are left out of the result.
	LockDepartments(ctx context.Context, ids []int64) ([]department.Department, error)
	ListDepartments(ctx context.Context) ([]department.Department, error)
	HasChildren(ctx context.Context, id int64) (bool, error)

	SetParent(ctx context.Context, id int64, parentID *int64) error
	RebaseSubtree(ctx context.Context, oldPath, newPath orgpath.Label) (int64, error)
	UpdatePath(ctx context.Context, id int64, path orgpath.Label, level int) error
	Rename(ctx context.Context, id int64, name string) error
	DeleteDepartment(ctx context.Context, id int64) error
}

type EmployeeRepository interface {
	InsertEmployee(ctx context.Context, e employee.Employee) (employee.Employee, error)
	// InsertEmployees stores es in one statement and returns the number of rows written.
	InsertEmployees(ctx context.Context, es []employee.Employee) (int64, error)
	GetEmployee(ctx context.Context, id int64, lock LockMode) (employee.Employee, error)
	UpdateEmployee(ctx context.Context, e employee.Employee) (employee.Employee, error)
	DeleteEmployee(ctx context.Context, id int64) error
	HasEmployees(ctx context.Context, departmentID int64) (bool, error)

	// RewriteStructurePaths fixes at most limit employees that belong to a department
	// under newPath, or whose structure_path still lies under oldPath.
	RewriteStructurePaths(ctx context.Context, oldPath, newPath orgpath.Label, limit int) (int64, error)
	// RewriteStaleStructurePaths fixes at most limit employees anywhere in the forest.
	RewriteStaleStructurePaths(ctx context.Context, limit int) (int64, error)
	CountStale(ctx context.Context) (int64, error)

	CountByPath(ctx context.Context, path orgpath.Label, includeSubtree bool) (int64, error)
	ListByPath(ctx context.Context, path orgpath.Label, includeSubtree bool, limit, offset int) ([]employee.Employee, error)
	CountDirectByPath(ctx context.Context) (map[orgpath.Label]int64, error)
}

// TxFunc runs fn in a transaction, joining the one already bound to ctx.
type TxFunc func(ctx context.Context, fn func(txCtx context.Context) error) error

type Stores struct {
	Departments DepartmentRepository
	Employees   EmployeeRepository
	// InTx defaults to composables.InTx.
	InTx TxFunc
	// InReadTx defaults to composables.InSnapshotTx.
	InReadTx TxFunc
}

func (s Stores) withDefaults() Stores {
	if s.InTx == nil {
		s.InTx = composables.InTx
	}
	if s.InReadTx == nil {
		s.InReadTx = composables.InSnapshotTx
	}
	return s
}

func inTx[T any](ctx context.Context, run TxFunc, fn func(txCtx context.Context) (T, error)) (T, error) {
	var out T
	err := run(ctx, func(txCtx context.Context) error {
		var innerErr error
		out, innerErr = fn(txCtx)
		return innerErr
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

type TreeNode struct {
	ID                    int64         `json:"id"`
	Name                  string        `json:"name"`
	ParentID              *int64        `json:"parent_id"`
	Level                 int           `json:"level"`
	Path                  orgpath.Label `json:"path"`
	EmployeesCount        int64         `json:"employees_count"`
	SubtreeEmployeesCount int64         `json:"subtree_employees_count"`
	ChildIDs              []int64       `json:"child_ids"`
}

type TreeSnapshot struct {
	Departments map[int64]*TreeNode `json:"departments"`
	RootIDs     []int64             `json:"root_ids"`
	GeneratedAt time.Time           `json:"generated_at"`
}

type ListParams struct {
	IncludeSubtree bool
	Page           int
	PageSize       int
}

type EmployeePage struct {
	Items          []employee.Employee `json:"items"`
	Page           int                 `json:"current_page"`
	PageSize       int                 `json:"per_page"`
	TotalCount     int64               `json:"total_count"`
	NumPages       int                 `json:"num_pages"`
	HasNext        bool                `json:"has_next"`
	HasPrevious    bool                `json:"has_previous"`
	IncludeSubtree bool                `json:"include_subtree"`
}

func requirePositiveID(field string, id int64) error {
	if id <= 0 {
		return newServiceError(400, CodeInvalidBody, fmt.Sprintf("%s is required", field), ErrInvalidInput)
	}
	return nil
}
