package controllers

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/Dr1DeX/orgtree/modules/org/presentation/mappers"
	"github.com/Dr1DeX/orgtree/modules/org/services"
	"github.com/Dr1DeX/orgtree/pkg/constants"
)

type createDepartmentRequest struct {
	Name     string `json:"name" validate:"required,max=255"`
	ParentID *int64 `json:"parent_id" validate:"omitempty,gt=0"`
}

type renameDepartmentRequest struct {
	Name string `json:"name" validate:"required,max=255"`
}

// A null or absent parent_id moves the department to the top level.
type moveDepartmentRequest struct {
	ParentID *int64 `json:"parent_id" validate:"omitempty,gt=0"`
}

type createEmployeeRequest struct {
	FullName     string          `json:"full_name" validate:"required,max=255"`
	Position     string          `json:"position" validate:"required,max=255"`
	HiredAt      string          `json:"hired_at" validate:"required,datetime=2006-01-02"`
	Salary       decimal.Decimal `json:"salary"`
	DepartmentID int64           `json:"department_id" validate:"required,gt=0"`
}

func (r createEmployeeRequest) toInput() (services.CreateEmployeeInput, error) {
	hiredAt, err := time.Parse(mappers.DateLayout, r.HiredAt)
	if err != nil {
		return services.CreateEmployeeInput{}, fmt.Errorf("hired_at must be YYYY-MM-DD")
	}
	return services.CreateEmployeeInput{
		FullName:     r.FullName,
		Position:     r.Position,
		HiredAt:      hiredAt,
		Salary:       r.Salary,
		DepartmentID: r.DepartmentID,
	}, nil
}

type updateEmployeeRequest struct {
	FullName     *string          `json:"full_name" validate:"omitempty,max=255"`
	Position     *string          `json:"position" validate:"omitempty,max=255"`
	HiredAt      *string          `json:"hired_at" validate:"omitempty,datetime=2006-01-02"`
	Salary       *decimal.Decimal `json:"salary"`
	DepartmentID *int64           `json:"department_id" validate:"omitempty,gt=0"`
}

func (r updateEmployeeRequest) toInput(id int64) (services.UpdateEmployeeInput, error) {
	in := services.UpdateEmployeeInput{
		ID:           id,
		FullName:     r.FullName,
		Position:     r.Position,
		Salary:       r.Salary,
		DepartmentID: r.DepartmentID,
	}
	if r.HiredAt != nil {
		hiredAt, err := time.Parse(mappers.DateLayout, *r.HiredAt)
		if err != nil {
			return services.UpdateEmployeeInput{}, fmt.Errorf("hired_at must be YYYY-MM-DD")
		}
		in.HiredAt = &hiredAt
	}
	return in, nil
}

// validateRequest returns a message naming every failing field.
func validateRequest(req any) (string, bool) {
	err := constants.Validate.Struct(req)
	if err == nil {
		return "", true
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid request", false
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s: %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, "; "), false
}
