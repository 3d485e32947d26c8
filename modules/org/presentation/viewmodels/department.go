package viewmodels

type Department struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	ParentID  *int64 `json:"parent_id"`
	Level     int    `json:"level"`
	Path      string `json:"path"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type DepartmentMove struct {
	Department           Department `json:"department"`
	OldPath              string     `json:"old_path"`
	NewPath              string     `json:"new_path"`
	Moved                bool       `json:"moved"`
	DepartmentsRewritten int64      `json:"departments_rewritten"`
	EmployeesRewritten   int64      `json:"employees_rewritten"`
}
