package viewmodels

type DepartmentTreeNode struct {
	ID                    int64                 `json:"id"`
	Name                  string                `json:"name"`
	Level                 int                   `json:"level"`
	Path                  string                `json:"path"`
	EmployeesCount        int64                 `json:"employees_count"`
	SubtreeEmployeesCount int64                 `json:"subtree_employees_count"`
	Children              []*DepartmentTreeNode `json:"children"`
}

type DepartmentTree struct {
	GeneratedAt string                `json:"generated_at"`
	Roots       []*DepartmentTreeNode `json:"roots"`
}
