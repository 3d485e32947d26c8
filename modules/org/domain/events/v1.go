package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/wI2L/jsondiff"
)

const (
	TopicOrgChangedV1 = "org.changed.v1"
	EventVersionV1    = 1
)

const (
	ChangeDepartmentCreated = "department.created"
	ChangeDepartmentMoved   = "department.moved"
	ChangeDepartmentRenamed = "department.renamed"
	ChangeDepartmentDeleted = "department.deleted"
	ChangeEmployeeCreated   = "employee.created"
	ChangeEmployeeUpdated   = "employee.updated"
	ChangeEmployeeDeleted   = "employee.deleted"
	ChangeEmployeesImported = "employees.imported"
	EntityDepartment        = "org_department"
	EntityEmployee          = "org_employee"
)

type OrgEventV1 struct {
	EventID         uuid.UUID       `json:"event_id"`
	EventVersion    int             `json:"event_version"`
	RequestID       string          `json:"request_id"`
	TransactionTime time.Time       `json:"transaction_time"`
	ChangeType      string          `json:"change_type"`
	EntityType      string          `json:"entity_type"`
	EntityID        int64           `json:"entity_id"`
	OldValues       json.RawMessage `json:"old_values,omitempty"`
	NewValues       json.RawMessage `json:"new_values"`
	// RFC 6902 operations turning OldValues into NewValues; set on updates only.
	Patch json.RawMessage `json:"patch,omitempty"`
}

func New(requestID string, txTime time.Time, changeType, entityType string, entityID int64, oldValues, newValues any) OrgEventV1 {
	e := OrgEventV1{
		EventID:         uuid.New(),
		EventVersion:    EventVersionV1,
		RequestID:       requestID,
		TransactionTime: txTime.UTC(),
		ChangeType:      changeType,
		EntityType:      entityType,
		EntityID:        entityID,
		OldValues:       mustRaw(oldValues),
		NewValues:       mustRaw(newValues),
	}
	e.Patch = diff(e.OldValues, e.NewValues)
	return e
}

func diff(before, after json.RawMessage) json.RawMessage {
	if len(before) == 0 || len(after) == 0 {
		return nil
	}
	patch, err := jsondiff.CompareJSON(before, after)
	if err != nil || len(patch) == 0 {
		return nil
	}
	b, err := json.Marshal(patch)
	if err != nil {
		return nil
	}
	return b
}

func mustRaw(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
