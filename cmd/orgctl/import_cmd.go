package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Dr1DeX/orgtree/modules/org/services"
)

// importRecord is one row of an import file. JSON is valid YAML, so both
// formats decode through yaml.v3.
type importRecord struct {
	FullName     string `yaml:"full_name"`
	Position     string `yaml:"position"`
	HiredAt      string `yaml:"hired_at"`
	Salary       string `yaml:"salary"`
	DepartmentID int64  `yaml:"department_id"`
}

func parseImportFile(r io.Reader) ([]services.CreateEmployeeInput, error) {
	var records []importRecord
	if err := yaml.NewDecoder(r).Decode(&records); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, withCode(exitUsage, fmt.Errorf("decode import file: %w", err))
	}
	out := make([]services.CreateEmployeeInput, 0, len(records))
	for i, rec := range records {
		hired, err := parseDate(rec.HiredAt)
		if err != nil {
			return nil, withCode(exitUsage, fmt.Errorf("row %d: %w", i+1, err))
		}
		salary := rec.Salary
		if salary == "" {
			salary = "0"
		}
		amount, err := parseSalary(salary)
		if err != nil {
			return nil, withCode(exitUsage, fmt.Errorf("row %d: %w", i+1, err))
		}
		out = append(out, services.CreateEmployeeInput{
			FullName:     rec.FullName,
			Position:     rec.Position,
			HiredAt:      hired,
			Salary:       amount,
			DepartmentID: rec.DepartmentID,
		})
	}
	return out, nil
}

func newEmployeeImportCmd(opts *rootOptions) *cobra.Command {
	var (
		file      string
		batchSize int
		apply     bool
	)
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Bulk-insert employees from a JSON or YAML list (default dry-run)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return withCode(exitUsage, errors.New("--file is required"))
			}
			if batchSize <= 0 {
				return withCode(exitUsage, errors.New("--batch must be > 0"))
			}
			f, err := os.Open(file)
			if err != nil {
				return withCode(exitUsage, fmt.Errorf("open import file: %w", err))
			}
			rows, err := parseImportFile(f)
			_ = f.Close()
			if err != nil {
				return err
			}

			if !apply {
				departments := map[int64]struct{}{}
				for _, r := range rows {
					departments[r.DepartmentID] = struct{}{}
				}
				return writeResult(cmd, commandOutput{
					Command: "employee import",
					Result: map[string]any{
						"apply":       false,
						"rows":        len(rows),
						"departments": len(departments),
						"batches":     batchCount(len(rows), batchSize),
					},
				})
			}
			return run(cmd, opts, "employee import", func(e *cliEnv) (any, error) {
				var inserted int64
				batches := 0
				for start := 0; start < len(rows); start += batchSize {
					end := min(start+batchSize, len(rows))
					n, err := e.svc.Employees.ImportEmployees(e.ctx, rows[start:end])
					if err != nil {
						return nil, fmt.Errorf("rows %d-%d: %w", start+1, end, err)
					}
					inserted += n
					batches++
				}
				return map[string]any{"apply": true, "employees": inserted, "batches": batches}, nil
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "Path to the import file (required)")
	cmd.Flags().IntVar(&batchSize, "batch", 1000, "Employees inserted per transaction")
	cmd.Flags().BoolVar(&apply, "apply", false, "Write to the database (default dry-run)")
	return cmd
}

func batchCount(rows, size int) int {
	if rows == 0 {
		return 0
	}
	return (rows + size - 1) / size
}
