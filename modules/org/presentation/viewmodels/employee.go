package viewmodels

type Employee struct {
	ID            int64  `json:"id"`
	FullName      string `json:"full_name"`
	Position      string `json:"position"`
	HiredAt       string `json:"hired_at"`
	Salary        string `json:"salary"`
	DepartmentID  int64  `json:"department_id"`
	StructurePath string `json:"structure_path"`
}

type EmployeePage struct {
	Items          []Employee `json:"items"`
	Page           int        `json:"current_page"`
	PageSize       int        `json:"per_page"`
	TotalCount     int64      `json:"total_count"`
	NumPages       int        `json:"num_pages"`
	HasNext        bool       `json:"has_next"`
	HasPrevious    bool       `json:"has_previous"`
	IncludeSubtree bool       `json:"include_subtree"`
}
