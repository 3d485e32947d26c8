package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseImportFile_JSONAndYAML(t *testing.T) {
	jsonRows, err := parseImportFile(strings.NewReader(`[
  {"full_name": "Ivanov Ivan", "position": "Analyst", "hired_at": "2023-01-15", "salary": "1200.50", "department_id": 3},
  {"full_name": "Petrov Peter", "position": "Tester", "hired_at": "2022-11-01", "department_id": 4}
]`))
	require.NoError(t, err)
	require.Len(t, jsonRows, 2)
	require.Equal(t, "Ivanov Ivan", jsonRows[0].FullName)
	require.Equal(t, time.Date(2023, 1, 15, 0, 0, 0, 0, time.UTC), jsonRows[0].HiredAt)
	require.Equal(t, "1200.5", jsonRows[0].Salary.String())
	require.Equal(t, int64(3), jsonRows[0].DepartmentID)
	require.True(t, jsonRows[1].Salary.IsZero())

	yamlRows, err := parseImportFile(strings.NewReader(`
- full_name: Sidorov Sergey
  position: Manager
  hired_at: 2021-06-30
  salary: 98000
  department_id: 7
`))
	require.NoError(t, err)
	require.Len(t, yamlRows, 1)
	require.Equal(t, "98000", yamlRows[0].Salary.String())
	require.Equal(t, time.Date(2021, 6, 30, 0, 0, 0, 0, time.UTC), yamlRows[0].HiredAt)
}

func TestParseImportFile_RejectsBadRows(t *testing.T) {
	_, err := parseImportFile(strings.NewReader(`[{"full_name": "A", "position": "B", "hired_at": "15.01.2023", "department_id": 1}]`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "row 1")
	require.Equal(t, exitUsage, exitCode(err))

	_, err = parseImportFile(strings.NewReader(`[{"full_name": "A", "position": "B", "hired_at": "2023-01-15", "salary": "lots", "department_id": 1}]`))
	require.Equal(t, exitUsage, exitCode(err))

	rows, err := parseImportFile(strings.NewReader(""))
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestEmployeeImportCmd_DryRunPrintsSummary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "employees.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
  {"full_name": "A", "position": "P", "hired_at": "2024-01-01", "salary": "1", "department_id": 1},
  {"full_name": "B", "position": "P", "hired_at": "2024-01-02", "salary": "2", "department_id": 1},
  {"full_name": "C", "position": "P", "hired_at": "2024-01-03", "salary": "3", "department_id": 2}
]`), 0o600))

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"employee", "import", "--file", path, "--batch", "2"})
	require.NoError(t, cmd.Execute())

	var got struct {
		Command string         `json:"command"`
		Result  map[string]any `json:"result"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	require.Equal(t, "employee import", got.Command)
	require.Equal(t, false, got.Result["apply"])
	require.EqualValues(t, 3, got.Result["rows"])
	require.EqualValues(t, 2, got.Result["departments"])
	require.EqualValues(t, 2, got.Result["batches"])
}

func TestEmployeeImportCmd_RequiresFile(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"employee", "import"})
	err := cmd.Execute()
	require.Error(t, err)
	require.Equal(t, exitUsage, exitCode(err))
}
