package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/searchkit/internal/config"
	"github.com/Aman-CERP/searchkit/internal/preflight"
)

func newDoctorCmd() *cobra.Command {
	var (
		verbose    bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check system requirements and diagnose issues",
		Long: `Run system diagnostics to ensure SearchKit can operate correctly.

Checks:
  - Disk space (100MB minimum)
  - Write permissions for the index location
  - File descriptor limits
  - Configuration validity
  - Interrupted background ingestion

Use --verbose for detailed diagnostic information.
Use --json for machine-readable output.`,
		Example: `  # Run diagnostics
  searchkit doctor

  # JSON output for scripting
  searchkit doctor --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd, verbose, jsonOutput)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show detailed diagnostic info")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

var errDoctorFailed = errors.New("system check failed")

func runDoctor(cmd *cobra.Command, verbose, jsonOutput bool) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	ws, err := loadWorkspace(".")
	var cfgErr error
	if err != nil {
		// Report an invalid configuration as a failed check instead of
		// refusing to diagnose.
		cfgErr = err
		ws = &workspace{root: ".", cfg: config.NewConfig()}
		ws.indexPath = ws.cfg.IndexPath(ws.root)
	}

	checker := preflight.New(
		preflight.WithConfig(ws.cfg),
		preflight.WithVerbose(verbose),
		preflight.WithOutput(cmd.OutOrStdout()),
	)
	results := checker.RunAll(ctx, ws.indexPath)
	if cfgErr != nil {
		for i := range results {
			if results[i].Name == "config" {
				results[i].Status = preflight.StatusFail
				results[i].Message = cfgErr.Error()
			}
		}
	}

	if jsonOutput {
		if err := writeDoctorJSON(cmd, checker, results); err != nil {
			return err
		}
	} else {
		checker.PrintResults(results)
		if !preflight.NeedsCheck(ws.dataDir()) {
			if age := preflight.MarkerAge(ws.dataDir()); age > 0 {
				cmd.Printf("\nLast successful check: %s ago\n", age.Round(time.Second))
			}
		}
	}

	if checker.HasCriticalFailures(results) {
		// The next index run checks again instead of trusting an old pass.
		_ = preflight.ClearMarker(ws.dataDir())
		return errDoctorFailed
	}
	return nil
}

// doctorReport is the JSON form of the checks.
type doctorReport struct {
	Status   string        `json:"status"`
	Checks   []doctorCheck `json:"checks"`
	Warnings []string      `json:"warnings,omitempty"`
	Errors   []string      `json:"errors,omitempty"`
}

type doctorCheck struct {
	Name     string `json:"name"`
	Status   string `json:"status"`
	Message  string `json:"message"`
	Required bool   `json:"required"`
	Details  string `json:"details,omitempty"`
}

func writeDoctorJSON(cmd *cobra.Command, checker *preflight.Checker, results []preflight.CheckResult) error {
	report := doctorReport{
		Status: checker.SummaryStatus(results),
		Checks: make([]doctorCheck, len(results)),
	}
	for i, r := range results {
		report.Checks[i] = doctorCheck{
			Name:     r.Name,
			Status:   strings.ToLower(r.Status.String()),
			Message:  r.Message,
			Required: r.Required,
			Details:  r.Details,
		}
		if r.IsCritical() {
			report.Errors = append(report.Errors, r.Name+": "+r.Message)
		} else if r.Status != preflight.StatusPass {
			report.Warnings = append(report.Warnings, r.Name+": "+r.Message)
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
