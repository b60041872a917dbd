// Package preflight validates the environment before an index is written
// or served.
//
// The package checks:
//   - Free disk space where the index lives (minimum 100MB)
//   - Write permission in the index directory
//   - File descriptor limits (minimum 1024, folder watching needs more)
//   - Configuration validity
//   - Leftovers of an interrupted background ingestion
//
// Use the Checker type to run all validations:
//
//	checker := preflight.New(preflight.WithConfig(cfg))
//	results := checker.RunAll(ctx, "/path/to/project/.searchkit/index")
//	if checker.HasCriticalFailures(results) {
//	    // Handle failures
//	}
package preflight
