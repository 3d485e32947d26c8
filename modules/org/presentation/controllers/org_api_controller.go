package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Dr1DeX/orgtree/modules/org/domain/department"
	"github.com/Dr1DeX/orgtree/modules/org/presentation/mappers"
	"github.com/Dr1DeX/orgtree/modules/org/services"
	"github.com/Dr1DeX/orgtree/pkg/application"
	"github.com/Dr1DeX/orgtree/pkg/composables"
	"github.com/Dr1DeX/orgtree/pkg/configuration"
	"github.com/Dr1DeX/orgtree/pkg/httpapi"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type OrgAPIController struct {
	hierarchy   *services.HierarchyService
	queries     *services.SubtreeQueryService
	employees   *services.EmployeeService
	consistency *services.ConsistencyService
	db          pinger
	pageSize    int
	apiPrefix   string
}

func NewOrgAPIController(app application.Application) application.Controller {
	c := &OrgAPIController{
		hierarchy:   app.Service(services.HierarchyService{}).(*services.HierarchyService),
		queries:     app.Service(services.SubtreeQueryService{}).(*services.SubtreeQueryService),
		employees:   app.Service(services.EmployeeService{}).(*services.EmployeeService),
		consistency: app.Service(services.ConsistencyService{}).(*services.ConsistencyService),
		pageSize:    configuration.Use().PageSize,
		apiPrefix:   "/org/api",
	}
	if pool := app.DB(); pool != nil {
		c.db = poolPinger{pool}
	}
	return c
}

type poolPinger struct{ pool *pgxpool.Pool }

func (p poolPinger) Ping(ctx context.Context) error { return p.pool.Ping(ctx) }

func (c *OrgAPIController) Key() string {
	return c.apiPrefix
}

func (c *OrgAPIController) Register(r *mux.Router) {
	api := r.PathPrefix(c.apiPrefix).Subrouter()

	api.HandleFunc("/tree", c.instrumentAPI("org.api.tree", c.GetTree)).Methods(http.MethodGet)

	api.HandleFunc("/departments", c.instrumentAPI("org.api.departments.list", c.ListDepartments)).Methods(http.MethodGet)
	api.HandleFunc("/departments", c.instrumentAPI("org.api.departments.create", c.CreateDepartment)).Methods(http.MethodPost)
	api.HandleFunc("/departments/{id:[0-9]+}", c.instrumentAPI("org.api.departments.get", c.GetDepartment)).Methods(http.MethodGet)
	api.HandleFunc("/departments/{id:[0-9]+}", c.instrumentAPI("org.api.departments.rename", c.RenameDepartment)).Methods(http.MethodPatch)
	api.HandleFunc("/departments/{id:[0-9]+}:move", c.instrumentAPI("org.api.departments.move", c.MoveDepartment)).Methods(http.MethodPost)
	api.HandleFunc("/departments/{id:[0-9]+}", c.instrumentAPI("org.api.departments.delete", c.DeleteDepartment)).Methods(http.MethodDelete)
	api.HandleFunc("/departments/{id:[0-9]+}/employees", c.instrumentAPI("org.api.departments.employees", c.ListDepartmentEmployees)).Methods(http.MethodGet)
	api.HandleFunc("/departments/{id:[0-9]+}/employees:count", c.instrumentAPI("org.api.departments.employees_count", c.CountDepartmentEmployees)).Methods(http.MethodGet)

	api.HandleFunc("/employees", c.instrumentAPI("org.api.employees.create", c.CreateEmployee)).Methods(http.MethodPost)
	api.HandleFunc("/employees/{id:[0-9]+}", c.instrumentAPI("org.api.employees.get", c.GetEmployee)).Methods(http.MethodGet)
	api.HandleFunc("/employees/{id:[0-9]+}", c.instrumentAPI("org.api.employees.update", c.UpdateEmployee)).Methods(http.MethodPatch)
	api.HandleFunc("/employees/{id:[0-9]+}", c.instrumentAPI("org.api.employees.delete", c.DeleteEmployee)).Methods(http.MethodDelete)

	api.HandleFunc("/ops/health", c.instrumentAPI("org.api.ops.health", c.GetOpsHealth)).Methods(http.MethodGet)
}

func (c *OrgAPIController) GetTree(w http.ResponseWriter, r *http.Request) {
	requestID := composables.UseRequestID(r.Context())
	snap, err := c.queries.TreeSnapshot(r.Context())
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, mappers.SnapshotToTree(snap))
}

func (c *OrgAPIController) ListDepartments(w http.ResponseWriter, r *http.Request) {
	requestID := composables.UseRequestID(r.Context())
	var (
		ds  []department.Department
		err error
	)
	if q := r.URL.Query().Get("q"); q != "" {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		ds, err = c.hierarchy.SearchDepartments(r.Context(), q, limit)
	} else {
		ds, err = c.hierarchy.ListDepartments(r.Context())
	}
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": mappers.DepartmentsToViewModels(ds)})
}

func (c *OrgAPIController) CreateDepartment(w http.ResponseWriter, r *http.Request) {
	requestID := composables.UseRequestID(r.Context())

	var req createDepartmentRequest
	if !decodeAndValidate(w, r, requestID, &req) {
		return
	}

	d, err := c.hierarchy.CreateDepartment(r.Context(), services.CreateDepartmentInput{
		Name:     req.Name,
		ParentID: req.ParentID,
	})
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusCreated, mappers.DepartmentToViewModel(*d))
}

func (c *OrgAPIController) GetDepartment(w http.ResponseWriter, r *http.Request) {
	requestID := composables.UseRequestID(r.Context())
	id, ok := pathID(w, r, requestID)
	if !ok {
		return
	}
	d, err := c.hierarchy.GetDepartment(r.Context(), id)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, mappers.DepartmentToViewModel(*d))
}

func (c *OrgAPIController) RenameDepartment(w http.ResponseWriter, r *http.Request) {
	requestID := composables.UseRequestID(r.Context())
	id, ok := pathID(w, r, requestID)
	if !ok {
		return
	}

	var req renameDepartmentRequest
	if !decodeAndValidate(w, r, requestID, &req) {
		return
	}

	d, err := c.hierarchy.RenameDepartment(r.Context(), id, req.Name)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, mappers.DepartmentToViewModel(*d))
}

func (c *OrgAPIController) MoveDepartment(w http.ResponseWriter, r *http.Request) {
	requestID := composables.UseRequestID(r.Context())
	id, ok := pathID(w, r, requestID)
	if !ok {
		return
	}

	var req moveDepartmentRequest
	if !decodeAndValidate(w, r, requestID, &req) {
		return
	}

	res, err := c.hierarchy.ReparentDepartment(r.Context(), services.ReparentDepartmentInput{
		ID:          id,
		NewParentID: req.ParentID,
	})
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, mappers.ReparentResultToViewModel(res))
}

func (c *OrgAPIController) DeleteDepartment(w http.ResponseWriter, r *http.Request) {
	requestID := composables.UseRequestID(r.Context())
	id, ok := pathID(w, r, requestID)
	if !ok {
		return
	}
	if err := c.hierarchy.DeleteDepartment(r.Context(), id); err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *OrgAPIController) ListDepartmentEmployees(w http.ResponseWriter, r *http.Request) {
	requestID := composables.UseRequestID(r.Context())
	id, ok := pathID(w, r, requestID)
	if !ok {
		return
	}

	q := r.URL.Query()
	includeSubtree, err := parseBoolQuery(q.Get("include_subtree"))
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "ORG_INVALID_QUERY", "include_subtree must be a boolean")
		return
	}
	// A malformed page falls back to the first page.
	page, _ := strconv.Atoi(q.Get("page"))
	perPage := c.pageSize
	if raw := strings.TrimSpace(q.Get("per_page")); raw != "" {
		perPage, err = strconv.Atoi(raw)
		if err != nil {
			writeAPIError(w, http.StatusBadRequest, requestID, "ORG_INVALID_QUERY", "per_page must be an integer")
			return
		}
	}

	res, err := c.queries.ListUnder(r.Context(), id, services.ListParams{
		IncludeSubtree: includeSubtree,
		Page:           page,
		PageSize:       perPage,
	})
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, mappers.EmployeePageToViewModel(res))
}

func (c *OrgAPIController) CountDepartmentEmployees(w http.ResponseWriter, r *http.Request) {
	requestID := composables.UseRequestID(r.Context())
	id, ok := pathID(w, r, requestID)
	if !ok {
		return
	}

	raw := r.URL.Query().Get("include_subtree")
	includeSubtree := true
	if strings.TrimSpace(raw) != "" {
		v, err := parseBoolQuery(raw)
		if err != nil {
			writeAPIError(w, http.StatusBadRequest, requestID, "ORG_INVALID_QUERY", "include_subtree must be a boolean")
			return
		}
		includeSubtree = v
	}

	var (
		count int64
		err   error
	)
	if includeSubtree {
		count, err = c.queries.CountUnder(r.Context(), id)
	} else {
		count, err = c.queries.CountDirect(r.Context(), id)
	}
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}

	type countResponse struct {
		DepartmentID   int64 `json:"department_id"`
		IncludeSubtree bool  `json:"include_subtree"`
		Count          int64 `json:"count"`
	}
	writeJSON(w, http.StatusOK, countResponse{DepartmentID: id, IncludeSubtree: includeSubtree, Count: count})
}

func (c *OrgAPIController) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	requestID := composables.UseRequestID(r.Context())

	var req createEmployeeRequest
	if !decodeAndValidate(w, r, requestID, &req) {
		return
	}
	in, err := req.toInput()
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, services.CodeInvalidBody, err.Error())
		return
	}

	e, err := c.employees.CreateEmployee(r.Context(), in)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusCreated, mappers.EmployeeToViewModel(*e))
}

func (c *OrgAPIController) GetEmployee(w http.ResponseWriter, r *http.Request) {
	requestID := composables.UseRequestID(r.Context())
	id, ok := pathID(w, r, requestID)
	if !ok {
		return
	}
	e, err := c.employees.GetEmployee(r.Context(), id)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, mappers.EmployeeToViewModel(*e))
}

func (c *OrgAPIController) UpdateEmployee(w http.ResponseWriter, r *http.Request) {
	requestID := composables.UseRequestID(r.Context())
	id, ok := pathID(w, r, requestID)
	if !ok {
		return
	}

	var req updateEmployeeRequest
	if !decodeAndValidate(w, r, requestID, &req) {
		return
	}
	in, err := req.toInput(id)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, services.CodeInvalidBody, err.Error())
		return
	}

	e, err := c.employees.UpdateEmployee(r.Context(), in)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, mappers.EmployeeToViewModel(*e))
}

func (c *OrgAPIController) DeleteEmployee(w http.ResponseWriter, r *http.Request) {
	requestID := composables.UseRequestID(r.Context())
	id, ok := pathID(w, r, requestID)
	if !ok {
		return
	}
	if err := c.employees.DeleteEmployee(r.Context(), id); err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathID(w http.ResponseWriter, r *http.Request, requestID string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		writeAPIError(w, http.StatusBadRequest, requestID, "ORG_INVALID_QUERY", "id is invalid")
		return 0, false
	}
	return id, true
}

func parseBoolQuery(raw string) (bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, nil
	}
	return strconv.ParseBool(raw)
}

func decodeJSON(body io.ReadCloser, out any) error {
	defer func() { _ = body.Close() }()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("unexpected data after json body")
	}
	return nil
}

func decodeAndValidate(w http.ResponseWriter, r *http.Request, requestID string, out any) bool {
	if err := decodeJSON(r.Body, out); err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, services.CodeInvalidBody, "invalid json body")
		return false
	}
	if msg, ok := validateRequest(out); !ok {
		writeAPIError(w, http.StatusBadRequest, requestID, services.CodeInvalidBody, msg)
		return false
	}
	return true
}

type apiError = httpapi.ErrorEnvelope

func writeServiceError(w http.ResponseWriter, requestID string, err error) {
	var svcErr *services.ServiceError
	if errors.As(err, &svcErr) {
		writeAPIError(w, svcErr.Status, requestID, svcErr.Code, svcErr.Message)
		return
	}
	writeAPIError(w, http.StatusInternalServerError, requestID, services.CodeInternal, "internal error")
}

func writeAPIError(w http.ResponseWriter, status int, requestID, code, message string) {
	_ = httpapi.WriteError(w, status, requestID, code, message)
}

func writeJSON[T any](w http.ResponseWriter, status int, payload T) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
