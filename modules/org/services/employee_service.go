package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Dr1DeX/orgtree/modules/org/domain/employee"
	"github.com/Dr1DeX/orgtree/modules/org/domain/events"
	"github.com/Dr1DeX/orgtree/pkg/orgpath"
)

type EmployeeService struct {
	stores Stores
	cache  SnapshotCache
	events EventSink
}

func NewEmployeeService(stores Stores, cache SnapshotCache, sink EventSink) *EmployeeService {
	if cache == nil {
		cache = NoopSnapshotCache{}
	}
	return &EmployeeService{stores: stores.withDefaults(), cache: cache, events: sink}
}

type CreateEmployeeInput struct {
	FullName     string
	Position     string
	HiredAt      time.Time
	Salary       decimal.Decimal
	DepartmentID int64
}

// UpdateEmployeeInput patches the non-nil fields. A new DepartmentID re-stamps structure_path.
type UpdateEmployeeInput struct {
	ID           int64
	FullName     *string
	Position     *string
	HiredAt      *time.Time
	Salary       *decimal.Decimal
	DepartmentID *int64
}

func normalizeText(field, v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", invalidInput("%s is required", field)
	}
	if utf8.RuneCountInString(v) > maxNameLength {
		return "", invalidInput("%s must be at most %d characters", field, maxNameLength)
	}
	return v, nil
}

func validateSalary(v decimal.Decimal) error {
	if v.IsNegative() {
		return invalidInput("salary must not be negative")
	}
	if !v.Equal(v.Round(2)) {
		return invalidInput("salary must have at most 2 decimal places")
	}
	if v.GreaterThan(employee.MaxSalary) {
		return invalidInput("salary must not exceed %s", employee.MaxSalary.String())
	}
	return nil
}

func validateEmployee(e *employee.Employee) error {
	var err error
	if e.FullName, err = normalizeText("full_name", e.FullName); err != nil {
		return err
	}
	if e.Position, err = normalizeText("position", e.Position); err != nil {
		return err
	}
	if e.HiredAt.IsZero() {
		return invalidInput("hired_at is required")
	}
	if err := validateSalary(e.Salary); err != nil {
		return err
	}
	return requirePositiveID("department_id", e.DepartmentID)
}

// maxReassignAttempts bounds how often UpdateEmployee restarts when the employee
// changes department between its unlocked and locked reads.
const maxReassignAttempts = 3

var errEmployeeReassigned = errors.New("employee reassigned concurrently")

// lockDepartments share-locks the distinct departments in ids in path order and
// returns their current paths. Every employee write takes these locks before any
// employee row, the same order a reparent uses, so the two never deadlock.
func (s *EmployeeService) lockDepartments(ctx context.Context, ids ...int64) (map[int64]orgpath.Label, error) {
	distinct := make([]int64, 0, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		distinct = append(distinct, id)
	}
	ds, err := s.stores.Departments.LockDepartments(ctx, distinct)
	if err != nil {
		return nil, err
	}
	paths := make(map[int64]orgpath.Label, len(ds))
	for _, d := range ds {
		paths[d.ID] = d.Path
	}
	for _, id := range distinct {
		if _, ok := paths[id]; !ok {
			return nil, newServiceError(422, CodeDepartmentNotFound,
				fmt.Sprintf("department %d not found", id), ErrDepartmentNotFound)
		}
	}
	return paths, nil
}

func (s *EmployeeService) CreateEmployee(ctx context.Context, in CreateEmployeeInput) (_ *employee.Employee, err error) {
	ctx, finish := startOp(ctx, "CreateEmployee", attribute.Int64("department.id", in.DepartmentID))
	defer func() { finish(err) }()

	e := employee.Employee{
		FullName:     in.FullName,
		Position:     in.Position,
		HiredAt:      in.HiredAt,
		Salary:       in.Salary,
		DepartmentID: in.DepartmentID,
	}
	if err := validateEmployee(&e); err != nil {
		return nil, err
	}

	created, err := inTx(ctx, s.stores.InTx, func(txCtx context.Context) (employee.Employee, error) {
		paths, err := s.lockDepartments(txCtx, e.DepartmentID)
		if err != nil {
			return employee.Employee{}, err
		}
		e.StructurePath = paths[e.DepartmentID]
		return s.stores.Employees.InsertEmployee(txCtx, e)
	})
	if err != nil {
		err = mapPgErrorToServiceError(err)
		logServiceError(ctx, "CreateEmployee", err, logrus.Fields{"department_id": in.DepartmentID})
		return nil, err
	}

	invalidateSnapshot(ctx, s.cache, "employee_created")
	emitEvent(ctx, s.events, events.ChangeEmployeeCreated, events.EntityEmployee, created.ID, nil, created)
	return &created, nil
}

// ImportEmployees validates every input and inserts them in one transaction,
// stamping each with its department's current path.
func (s *EmployeeService) ImportEmployees(ctx context.Context, in []CreateEmployeeInput) (_ int64, err error) {
	ctx, finish := startOp(ctx, "ImportEmployees", attribute.Int("employees", len(in)))
	defer func() { finish(err) }()

	if len(in) == 0 {
		return 0, nil
	}
	batch := make([]employee.Employee, len(in))
	for i, item := range in {
		batch[i] = employee.Employee{
			FullName:     item.FullName,
			Position:     item.Position,
			HiredAt:      item.HiredAt,
			Salary:       item.Salary,
			DepartmentID: item.DepartmentID,
		}
		if err := validateEmployee(&batch[i]); err != nil {
			return 0, err
		}
	}

	n, err := inTx(ctx, s.stores.InTx, func(txCtx context.Context) (int64, error) {
		ids := make([]int64, len(batch))
		for i := range batch {
			ids[i] = batch[i].DepartmentID
		}
		paths, err := s.lockDepartments(txCtx, ids...)
		if err != nil {
			return 0, err
		}
		for i := range batch {
			batch[i].StructurePath = paths[batch[i].DepartmentID]
		}
		return s.stores.Employees.InsertEmployees(txCtx, batch)
	})
	if err != nil {
		err = mapPgErrorToServiceError(err)
		logServiceError(ctx, "ImportEmployees", err, logrus.Fields{"employees": len(in)})
		return 0, err
	}

	invalidateSnapshot(ctx, s.cache, "employees_imported")
	emitEvent(ctx, s.events, events.ChangeEmployeesImported, events.EntityEmployee, 0, nil, map[string]int64{"count": n})
	return n, nil
}

func (s *EmployeeService) UpdateEmployee(ctx context.Context, in UpdateEmployeeInput) (_ *employee.Employee, err error) {
	ctx, finish := startOp(ctx, "UpdateEmployee", attribute.Int64("employee.id", in.ID))
	defer func() { finish(err) }()

	if err := requirePositiveID("id", in.ID); err != nil {
		return nil, err
	}

	if in.DepartmentID != nil {
		if err := requirePositiveID("department_id", *in.DepartmentID); err != nil {
			return nil, err
		}
	}

	var res employeeUpdate
	for attempt := 1; ; attempt++ {
		res, err = inTx(ctx, s.stores.InTx, func(txCtx context.Context) (employeeUpdate, error) {
			return s.updateEmployee(txCtx, in)
		})
		if !errors.Is(err, errEmployeeReassigned) || attempt == maxReassignAttempts {
			break
		}
		logWithFields(ctx, logrus.DebugLevel, "employee reassigned during update, retrying", logrus.Fields{
			"employee_id": in.ID,
			"attempt":     attempt,
		})
	}
	if errors.Is(err, errEmployeeReassigned) {
		err = newServiceError(409, CodeConflict, "employee was reassigned concurrently, retry", ErrConflict)
	}
	if err != nil {
		err = mapPgErrorToServiceError(err)
		logServiceError(ctx, "UpdateEmployee", err, logrus.Fields{"employee_id": in.ID})
		return nil, err
	}

	invalidateSnapshot(ctx, s.cache, "employee_updated")
	emitEvent(ctx, s.events, events.ChangeEmployeeUpdated, events.EntityEmployee, in.ID, res.before, res.after)
	if res.before.DepartmentID != res.after.DepartmentID {
		logWithFields(ctx, logrus.InfoLevel, "employee reassigned", logrus.Fields{
			"employee_id":   in.ID,
			"department_id": res.after.DepartmentID,
			"old_path":      res.before.StructurePath.String(),
			"new_path":      res.after.StructurePath.String(),
		})
	}
	return &res.after, nil
}

type employeeUpdate struct {
	before, after employee.Employee
}

// updateEmployee locks the current and target departments before the employee
// row, then re-checks that the employee did not move in between.
func (s *EmployeeService) updateEmployee(ctx context.Context, in UpdateEmployeeInput) (employeeUpdate, error) {
	current, err := s.stores.Employees.GetEmployee(ctx, in.ID, LockNone)
	if err != nil {
		return employeeUpdate{}, err
	}
	target := current.DepartmentID
	if in.DepartmentID != nil {
		target = *in.DepartmentID
	}
	paths, err := s.lockDepartments(ctx, current.DepartmentID, target)
	if err != nil {
		return employeeUpdate{}, err
	}

	before, err := s.stores.Employees.GetEmployee(ctx, in.ID, LockUpdate)
	if err != nil {
		return employeeUpdate{}, err
	}
	if before.DepartmentID != current.DepartmentID {
		return employeeUpdate{}, errEmployeeReassigned
	}
	next := before
	if in.FullName != nil {
		next.FullName = *in.FullName
	}
	if in.Position != nil {
		next.Position = *in.Position
	}
	if in.HiredAt != nil {
		next.HiredAt = *in.HiredAt
	}
	if in.Salary != nil {
		next.Salary = *in.Salary
	}
	next.DepartmentID = target
	if err := validateEmployee(&next); err != nil {
		return employeeUpdate{}, err
	}
	next.StructurePath = paths[target]
	after, err := s.stores.Employees.UpdateEmployee(ctx, next)
	if err != nil {
		return employeeUpdate{}, err
	}
	return employeeUpdate{before: before, after: after}, nil
}

func (s *EmployeeService) DeleteEmployee(ctx context.Context, id int64) (err error) {
	ctx, finish := startOp(ctx, "DeleteEmployee", attribute.Int64("employee.id", id))
	defer func() { finish(err) }()

	if err := requirePositiveID("id", id); err != nil {
		return err
	}
	deleted, err := inTx(ctx, s.stores.InTx, func(txCtx context.Context) (employee.Employee, error) {
		e, err := s.stores.Employees.GetEmployee(txCtx, id, LockUpdate)
		if err != nil {
			return employee.Employee{}, err
		}
		return e, s.stores.Employees.DeleteEmployee(txCtx, id)
	})
	if err != nil {
		err = mapPgErrorToServiceError(err)
		logServiceError(ctx, "DeleteEmployee", err, logrus.Fields{"employee_id": id})
		return err
	}

	invalidateSnapshot(ctx, s.cache, "employee_deleted")
	emitEvent(ctx, s.events, events.ChangeEmployeeDeleted, events.EntityEmployee, id, deleted, nil)
	return nil
}

func (s *EmployeeService) GetEmployee(ctx context.Context, id int64) (*employee.Employee, error) {
	if err := requirePositiveID("id", id); err != nil {
		return nil, err
	}
	e, err := s.stores.Employees.GetEmployee(ctx, id, LockNone)
	if err != nil {
		return nil, mapPgErrorToServiceError(err)
	}
	return &e, nil
}
