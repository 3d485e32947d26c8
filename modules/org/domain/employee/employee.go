package employee

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Dr1DeX/orgtree/pkg/orgpath"
)

type Employee struct {
	ID            int64           `json:"id"`
	FullName      string          `json:"full_name"`
	Position      string          `json:"position"`
	HiredAt       time.Time       `json:"hired_at"`
	Salary        decimal.Decimal `json:"salary"`
	DepartmentID  int64           `json:"department_id"`
	StructurePath orgpath.Label   `json:"structure_path"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// MaxSalary is the largest value numeric(12,2) can hold.
var MaxSalary = decimal.RequireFromString("9999999999.99")
