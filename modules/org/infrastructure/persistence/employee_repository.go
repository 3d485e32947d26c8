package persistence

import (
	"context"
	"time"

	gerrors "github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/Dr1DeX/orgtree/modules/org/domain/employee"
	"github.com/Dr1DeX/orgtree/modules/org/services"
	"github.com/Dr1DeX/orgtree/pkg/composables"
	"github.com/Dr1DeX/orgtree/pkg/orgpath"
)

const employeeColumns = `id, full_name, position, hired_at, salary::text, department_id, structure_path::text, created_at, updated_at`

type EmployeeRepository struct{}

func NewEmployeeRepository() *EmployeeRepository {
	return &EmployeeRepository{}
}

func scanEmployee(row pgx.Row) (employee.Employee, error) {
	var e employee.Employee
	var salary, path string
	if err := row.Scan(&e.ID, &e.FullName, &e.Position, &e.HiredAt, &salary, &e.DepartmentID, &path, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return employee.Employee{}, err
	}
	amount, err := decimal.NewFromString(salary)
	if err != nil {
		return employee.Employee{}, gerrors.Wrapf(err, "parse salary of employee %d", e.ID)
	}
	e.Salary = amount
	e.StructurePath = orgpath.Label(path)
	return e, nil
}

func (r *EmployeeRepository) InsertEmployee(ctx context.Context, e employee.Employee) (employee.Employee, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return employee.Employee{}, err
	}
	err = tx.QueryRow(ctx, `
INSERT INTO org_employees (full_name, position, hired_at, salary, department_id, structure_path)
VALUES ($1, $2, $3, $4::numeric, $5, $6::ltree)
RETURNING id, created_at, updated_at
`, e.FullName, e.Position, e.HiredAt, e.Salary.StringFixed(2), e.DepartmentID, e.StructurePath.String()).
		Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return employee.Employee{}, gerrors.Wrap(err, "insert employee")
	}
	return e, nil
}

func (r *EmployeeRepository) InsertEmployees(ctx context.Context, es []employee.Employee) (int64, error) {
	if len(es) == 0 {
		return 0, nil
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}
	var (
		names     = make([]string, len(es))
		positions = make([]string, len(es))
		hiredAt   = make([]time.Time, len(es))
		salaries  = make([]string, len(es))
		deptIDs   = make([]int64, len(es))
		paths     = make([]string, len(es))
	)
	for i, e := range es {
		names[i] = e.FullName
		positions[i] = e.Position
		hiredAt[i] = e.HiredAt
		salaries[i] = e.Salary.StringFixed(2)
		deptIDs[i] = e.DepartmentID
		paths[i] = e.StructurePath.String()
	}
	tag, err := tx.Exec(ctx, `
INSERT INTO org_employees (full_name, position, hired_at, salary, department_id, structure_path)
SELECT n, p, h, s::numeric, d, sp::ltree
FROM unnest($1::text[], $2::text[], $3::date[], $4::text[], $5::bigint[], $6::text[]) AS t(n, p, h, s, d, sp)
`, names, positions, hiredAt, salaries, deptIDs, paths)
	if err != nil {
		return 0, gerrors.Wrap(err, "insert employees")
	}
	return tag.RowsAffected(), nil
}

func (r *EmployeeRepository) GetEmployee(ctx context.Context, id int64, lock services.LockMode) (employee.Employee, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return employee.Employee{}, err
	}
	e, err := scanEmployee(tx.QueryRow(ctx, `
SELECT `+employeeColumns+`
FROM org_employees
WHERE id = $1`+lockClause(lock), id))
	if err != nil {
		return employee.Employee{}, gerrors.Wrapf(err, "get employee %d", id)
	}
	return e, nil
}

func (r *EmployeeRepository) UpdateEmployee(ctx context.Context, e employee.Employee) (employee.Employee, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return employee.Employee{}, err
	}
	err = tx.QueryRow(ctx, `
UPDATE org_employees
SET
	full_name = $2,
	position = $3,
	hired_at = $4,
	salary = $5::numeric,
	department_id = $6,
	structure_path = $7::ltree,
	updated_at = now()
WHERE id = $1
RETURNING created_at, updated_at
`, e.ID, e.FullName, e.Position, e.HiredAt, e.Salary.StringFixed(2), e.DepartmentID, e.StructurePath.String()).
		Scan(&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return employee.Employee{}, gerrors.Wrapf(err, "update employee %d", e.ID)
	}
	return e, nil
}

func (r *EmployeeRepository) DeleteEmployee(ctx context.Context, id int64) error {
	return execOne(ctx, "delete employee", `DELETE FROM org_employees WHERE id = $1`, id)
}

func (r *EmployeeRepository) HasEmployees(ctx context.Context, departmentID int64) (bool, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return false, err
	}
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM org_employees WHERE department_id = $1)`, departmentID).Scan(&exists); err != nil {
		return false, gerrors.Wrap(err, "check employees")
	}
	return exists, nil
}

// RewriteStructurePaths updates one batch server-side; rows are locked in id
// order so concurrent batches cannot deadlock each other.
func (r *EmployeeRepository) RewriteStructurePaths(ctx context.Context, oldPath, newPath orgpath.Label, limit int) (int64, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}
	tag, err := tx.Exec(ctx, `
WITH batch AS (
	SELECT e.id, d.path
	FROM org_employees e
	JOIN org_departments d ON d.id = e.department_id
	WHERE (d.path <@ $2::ltree OR e.structure_path <@ $1::ltree)
		AND e.structure_path IS DISTINCT FROM d.path
	ORDER BY e.id
	LIMIT $3
	FOR UPDATE OF e
)
UPDATE org_employees e
SET structure_path = batch.path, updated_at = now()
FROM batch
WHERE e.id = batch.id
`, oldPath.String(), newPath.String(), limit)
	if err != nil {
		return 0, gerrors.Wrap(err, "rewrite structure paths")
	}
	return tag.RowsAffected(), nil
}

func (r *EmployeeRepository) RewriteStaleStructurePaths(ctx context.Context, limit int) (int64, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}
	tag, err := tx.Exec(ctx, `
WITH batch AS (
	SELECT e.id, d.path
	FROM org_employees e
	JOIN org_departments d ON d.id = e.department_id
	WHERE e.structure_path IS DISTINCT FROM d.path
	ORDER BY e.id
	LIMIT $1
	FOR UPDATE OF e
)
UPDATE org_employees e
SET structure_path = batch.path, updated_at = now()
FROM batch
WHERE e.id = batch.id
`, limit)
	if err != nil {
		return 0, gerrors.Wrap(err, "rewrite stale structure paths")
	}
	return tag.RowsAffected(), nil
}

func (r *EmployeeRepository) count(ctx context.Context, op, sql string, args ...any) (int64, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := tx.QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, gerrors.Wrap(err, op)
	}
	return n, nil
}

func (r *EmployeeRepository) CountStale(ctx context.Context) (int64, error) {
	return r.count(ctx, "count stale employees", `
SELECT count(*)
FROM org_employees e
JOIN org_departments d ON d.id = e.department_id
WHERE e.structure_path IS DISTINCT FROM d.path
`)
}

func pathPredicate(includeSubtree bool) string {
	if includeSubtree {
		return "structure_path <@ $1::ltree"
	}
	return "structure_path = $1::ltree"
}

func (r *EmployeeRepository) CountByPath(ctx context.Context, path orgpath.Label, includeSubtree bool) (int64, error) {
	return r.count(ctx, "count employees", `SELECT count(*) FROM org_employees WHERE `+pathPredicate(includeSubtree), path.String())
}

func (r *EmployeeRepository) ListByPath(ctx context.Context, path orgpath.Label, includeSubtree bool, limit, offset int) ([]employee.Employee, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, `
SELECT `+employeeColumns+`
FROM org_employees
WHERE `+pathPredicate(includeSubtree)+`
ORDER BY id
LIMIT $2 OFFSET $3
`, path.String(), limit, offset)
	if err != nil {
		return nil, gerrors.Wrap(err, "list employees")
	}
	defer rows.Close()

	out := make([]employee.Employee, 0, limit)
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *EmployeeRepository) CountDirectByPath(ctx context.Context) (map[orgpath.Label]int64, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, `
SELECT structure_path::text, count(*)
FROM org_employees
GROUP BY structure_path
`)
	if err != nil {
		return nil, gerrors.Wrap(err, "count employees per path")
	}
	defer rows.Close()

	out := map[orgpath.Label]int64{}
	for rows.Next() {
		var path string
		var n int64
		if err := rows.Scan(&path, &n); err != nil {
			return nil, err
		}
		out[orgpath.Label(path)] = n
	}
	return out, rows.Err()
}
