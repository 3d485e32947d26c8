package controllers

import (
	"context"
	"net/http"
	"time"
)

type orgHealthStatus string

const (
	orgHealthStatusHealthy  orgHealthStatus = "healthy"
	orgHealthStatusDegraded orgHealthStatus = "degraded"
	orgHealthStatusDown     orgHealthStatus = "down"
)

type orgHealthResponse struct {
	Status    orgHealthStatus `json:"status"`
	Timestamp string          `json:"timestamp"`
	Checks    map[string]any  `json:"checks"`
}

type orgComponentHealth struct {
	Status       orgHealthStatus `json:"status"`
	ResponseTime string          `json:"responseTime,omitempty"`
	Error        string          `json:"error,omitempty"`
	Details      map[string]any  `json:"details,omitempty"`
}

const (
	orgDBDegradedLatency = 100 * time.Millisecond
	orgHealthTimeout     = 5 * time.Second
)

func (c *OrgAPIController) GetOpsHealth(w http.ResponseWriter, r *http.Request) {
	response := c.performOrgOpsHealthChecks(r.Context())

	status := http.StatusOK
	if response.Status == orgHealthStatusDown {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, response)
}

func (c *OrgAPIController) performOrgOpsHealthChecks(ctx context.Context) orgHealthResponse {
	checks := make(map[string]any)
	overall := orgHealthStatusHealthy

	dbHealth := c.checkDatabase(ctx)
	checks["database"] = dbHealth
	overall = mergeOrgHealthStatus(overall, dbHealth.Status)

	// Skipped when the database is unreachable.
	if dbHealth.Status != orgHealthStatusDown {
		consistency := c.checkConsistency(ctx)
		checks["consistency"] = consistency
		overall = mergeOrgHealthStatus(overall, consistency.Status)
	}

	return orgHealthResponse{
		Status:    overall,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}
}

func (c *OrgAPIController) checkDatabase(ctx context.Context) orgComponentHealth {
	if c.db == nil {
		return orgComponentHealth{
			Status:  orgHealthStatusHealthy,
			Details: map[string]any{"backend": "memory"},
		}
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, orgHealthTimeout)
	defer cancel()

	if err := c.db.Ping(ctx); err != nil {
		return orgComponentHealth{
			Status:       orgHealthStatusDown,
			ResponseTime: time.Since(start).String(),
			Error:        err.Error(),
		}
	}

	elapsed := time.Since(start)
	status := orgHealthStatusHealthy
	if elapsed > orgDBDegradedLatency {
		status = orgHealthStatusDegraded
	}
	return orgComponentHealth{
		Status:       status,
		ResponseTime: elapsed.String(),
		Details:      map[string]any{"backend": "postgres"},
	}
}

func (c *OrgAPIController) checkConsistency(ctx context.Context) orgComponentHealth {
	if c.consistency == nil {
		return orgComponentHealth{Status: orgHealthStatusHealthy}
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, orgHealthTimeout)
	defer cancel()

	report, err := c.consistency.Verify(ctx)
	if err != nil {
		return orgComponentHealth{
			Status:       orgHealthStatusDown,
			ResponseTime: time.Since(start).String(),
			Error:        err.Error(),
		}
	}

	status := orgHealthStatusHealthy
	if !report.OK() {
		status = orgHealthStatusDegraded
	}
	return orgComponentHealth{
		Status:       status,
		ResponseTime: time.Since(start).String(),
		Details: map[string]any{
			"departments":           report.Departments,
			"bad_path_departments":  len(report.BadPathDepartments),
			"bad_level_departments": len(report.BadLevelDepartments),
			"stale_employees":       report.StaleEmployees,
		},
	}
}

func mergeOrgHealthStatus(current, next orgHealthStatus) orgHealthStatus {
	if current == orgHealthStatusDown || next == orgHealthStatusDown {
		return orgHealthStatusDown
	}
	if current == orgHealthStatusDegraded || next == orgHealthStatusDegraded {
		return orgHealthStatusDegraded
	}
	return orgHealthStatusHealthy
}
