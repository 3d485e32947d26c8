package persistence

import (
	"context"

	gerrors "github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/Dr1DeX/orgtree/modules/org/domain/department"
	"github.com/Dr1DeX/orgtree/modules/org/services"
	"github.com/Dr1DeX/orgtree/pkg/composables"
	"github.com/Dr1DeX/orgtree/pkg/orgpath"
)

// structureLockKey is hashed into the advisory lock that serializes structural edits.
const structureLockKey = "org_departments:structure"

var ErrLockOutsideTx = gerrors.New("structure lock requires a transaction")

const departmentColumns = `id, name, parent_id, level, path::text, created_at, updated_at`

type DepartmentRepository struct{}

func NewDepartmentRepository() *DepartmentRepository {
	return &DepartmentRepository{}
}

func lockClause(mode services.LockMode) string {
	switch mode {
	case services.LockShare:
		return "\nFOR SHARE"
	case services.LockUpdate:
		return "\nFOR UPDATE"
	default:
		return ""
	}
}

func scanDepartment(row pgx.Row) (department.Department, error) {
	var d department.Department
	var path string
	if err := row.Scan(&d.ID, &d.Name, &d.ParentID, &d.Level, &path, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return department.Department{}, err
	}
	d.Path = orgpath.Label(path)
	return d, nil
}

func (r *DepartmentRepository) LockStructure(ctx context.Context) error {
	if !composables.HasTx(ctx) {
		return ErrLockOutsideTx
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", structureLockKey); err != nil {
		return gerrors.Wrap(err, "lock org structure")
	}
	return nil
}

func (r *DepartmentRepository) NextDepartmentID(ctx context.Context) (int64, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}
	var id int64
	if err := tx.QueryRow(ctx, `SELECT nextval(pg_get_serial_sequence('org_departments', 'id'))`).Scan(&id); err != nil {
		return 0, gerrors.Wrap(err, "allocate department id")
	}
	return id, nil
}

func (r *DepartmentRepository) InsertDepartment(ctx context.Context, d department.Department) (department.Department, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return department.Department{}, err
	}
	err = tx.QueryRow(ctx, `
INSERT INTO org_departments (id, name, parent_id, level, path)
VALUES ($1, $2, $3, $4, $5::ltree)
RETURNING created_at, updated_at
`, d.ID, d.Name, d.ParentID, d.Level, d.Path.String()).Scan(&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return department.Department{}, gerrors.Wrap(err, "insert department")
	}
	return d, nil
}

func (r *DepartmentRepository) GetDepartment(ctx context.Context, id int64, lock services.LockMode) (department.Department, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return department.Department{}, err
	}
	d, err := scanDepartment(tx.QueryRow(ctx, `
SELECT `+departmentColumns+`
FROM org_departments
WHERE id = $1`+lockClause(lock), id))
	if err != nil {
		return department.Department{}, gerrors.Wrapf(err, "get department %d", id)
	}
	return d, nil
}

func (r *DepartmentRepository) queryDepartments(ctx context.Context, sql string, args ...any) ([]department.Department, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]department.Department, 0, 64)
	for rows.Next() {
		d, err := scanDepartment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *DepartmentRepository) LockDepartments(ctx context.Context, ids []int64) ([]department.Department, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	out, err := r.queryDepartments(ctx, `
SELECT `+departmentColumns+`
FROM org_departments
WHERE id = ANY($1::bigint[])
ORDER BY path
FOR SHARE
`, ids)
	if err != nil {
		return nil, gerrors.Wrap(err, "lock departments")
	}
	return out, nil
}

// LockSubtree row-locks the department at path and all its descendants.
func (r *DepartmentRepository) LockSubtree(ctx context.Context, path orgpath.Label) ([]department.Department, error) {
	out, err := r.queryDepartments(ctx, `
SELECT `+departmentColumns+`
FROM org_departments
WHERE path <@ $1::ltree
ORDER BY path
FOR UPDATE
`, path.String())
	if err != nil {
		return nil, gerrors.Wrap(err, "lock subtree")
	}
	return out, nil
}

func (r *DepartmentRepository) ListDepartments(ctx context.Context) ([]department.Department, error) {
	out, err := r.queryDepartments(ctx, `
SELECT `+departmentColumns+`
FROM org_departments
ORDER BY path
`)
	if err != nil {
		return nil, gerrors.Wrap(err, "list departments")
	}
	return out, nil
}

func (r *DepartmentRepository) HasChildren(ctx context.Context, id int64) (bool, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return false, err
	}
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM org_departments WHERE parent_id = $1)`, id).Scan(&exists); err != nil {
		return false, gerrors.Wrap(err, "check children")
	}
	return exists, nil
}

// execOne runs a single-row statement and reports pgx.ErrNoRows when nothing matched.
func execOne(ctx context.Context, op, sql string, args ...any) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, sql, args...)
	if err != nil {
		return gerrors.Wrap(err, op)
	}
	if tag.RowsAffected() == 0 {
		return gerrors.Wrap(pgx.ErrNoRows, op)
	}
	return nil
}

func (r *DepartmentRepository) SetParent(ctx context.Context, id int64, parentID *int64) error {
	return execOne(ctx, "set parent", `
UPDATE org_departments
SET parent_id = $2, updated_at = now()
WHERE id = $1
`, id, parentID)
}

// RebaseSubtree moves every path under oldPath to sit under newPath, updating
// path and level in the same statement.
func (r *DepartmentRepository) RebaseSubtree(ctx context.Context, oldPath, newPath orgpath.Label) (int64, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}
	tag, err := tx.Exec(ctx, `
UPDATE org_departments
SET
	path = CASE
		WHEN nlevel(path) = nlevel($1::ltree) THEN $2::ltree
		ELSE $2::ltree || subpath(path, nlevel($1::ltree))
	END,
	level = nlevel($2::ltree) + nlevel(path) - nlevel($1::ltree),
	updated_at = now()
WHERE path <@ $1::ltree
`, oldPath.String(), newPath.String())
	if err != nil {
		return 0, gerrors.Wrap(err, "rebase subtree")
	}
	return tag.RowsAffected(), nil
}

func (r *DepartmentRepository) UpdatePath(ctx context.Context, id int64, path orgpath.Label, level int) error {
	return execOne(ctx, "update department path", `
UPDATE org_departments
SET path = $2::ltree, level = $3, updated_at = now()
WHERE id = $1
`, id, path.String(), level)
}

func (r *DepartmentRepository) Rename(ctx context.Context, id int64, name string) error {
	return execOne(ctx, "rename department", `
UPDATE org_departments
SET name = $2, updated_at = now()
WHERE id = $1
`, id, name)
}

func (r *DepartmentRepository) DeleteDepartment(ctx context.Context, id int64) error {
	return execOne(ctx, "delete department", `DELETE FROM org_departments WHERE id = $1`, id)
}
