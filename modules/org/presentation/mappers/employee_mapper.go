package mappers

import (
	"github.com/Dr1DeX/orgtree/modules/org/domain/employee"
	"github.com/Dr1DeX/orgtree/modules/org/presentation/viewmodels"
	"github.com/Dr1DeX/orgtree/modules/org/services"
)

const DateLayout = "2006-01-02"

func EmployeeToViewModel(e employee.Employee) viewmodels.Employee {
	return viewmodels.Employee{
		ID:            e.ID,
		FullName:      e.FullName,
		Position:      e.Position,
		HiredAt:       e.HiredAt.Format(DateLayout),
		Salary:        e.Salary.StringFixed(2),
		DepartmentID:  e.DepartmentID,
		StructurePath: e.StructurePath.String(),
	}
}

func EmployeePageToViewModel(p *services.EmployeePage) viewmodels.EmployeePage {
	items := make([]viewmodels.Employee, 0, len(p.Items))
	for _, e := range p.Items {
		items = append(items, EmployeeToViewModel(e))
	}
	return viewmodels.EmployeePage{
		Items:          items,
		Page:           p.Page,
		PageSize:       p.PageSize,
		TotalCount:     p.TotalCount,
		NumPages:       p.NumPages,
		HasNext:        p.HasNext,
		HasPrevious:    p.HasPrevious,
		IncludeSubtree: p.IncludeSubtree,
	}
}
