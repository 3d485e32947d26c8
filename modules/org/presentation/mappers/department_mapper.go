package mappers

import (
	"time"

	"github.com/Dr1DeX/orgtree/modules/org/domain/department"
	"github.com/Dr1DeX/orgtree/modules/org/presentation/viewmodels"
	"github.com/Dr1DeX/orgtree/modules/org/services"
)

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func DepartmentToViewModel(d department.Department) viewmodels.Department {
	return viewmodels.Department{
		ID:        d.ID,
		Name:      d.Name,
		ParentID:  d.ParentID,
		Level:     d.Level,
		Path:      d.Path.String(),
		CreatedAt: formatTimestamp(d.CreatedAt),
		UpdatedAt: formatTimestamp(d.UpdatedAt),
	}
}

func DepartmentsToViewModels(ds []department.Department) []viewmodels.Department {
	out := make([]viewmodels.Department, 0, len(ds))
	for _, d := range ds {
		out = append(out, DepartmentToViewModel(d))
	}
	return out
}

func ReparentResultToViewModel(res *services.ReparentResult) viewmodels.DepartmentMove {
	return viewmodels.DepartmentMove{
		Department:           DepartmentToViewModel(res.Department),
		OldPath:              res.OldPath.String(),
		NewPath:              res.NewPath.String(),
		Moved:                res.Moved,
		DepartmentsRewritten: res.DepartmentsRewritten,
		EmployeesRewritten:   res.EmployeesRewritten,
	}
}
