package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Aman-CERP/searchkit/pkg/version"
)

// MarkerFile records in the data directory that preflight checks passed.
const MarkerFile = ".preflight-passed"

// NeedsCheck reports whether checks should run for dataDir: there is no
// marker, or it was written by another SearchKit version.
func NeedsCheck(dataDir string) bool {
	_, ver, ok := readMarker(dataDir)
	return !ok || ver != version.Version
}

// MarkPassed records that checks passed for dataDir, creating it if needed.
func MarkPassed(dataDir string) error {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("create marker directory: %w", err)
	}

	content := time.Now().Format(time.RFC3339) + " " + version.Version
	return os.WriteFile(filepath.Join(dataDir, MarkerFile), []byte(content), 0644)
}

// ClearMarker removes the marker, forcing a re-check on next run.
func ClearMarker(dataDir string) error {
	err := os.Remove(filepath.Join(dataDir, MarkerFile))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove marker file: %w", err)
	}
	return nil
}

// MarkerAge returns how long ago checks passed, or zero without a marker.
func MarkerAge(dataDir string) time.Duration {
	at, _, ok := readMarker(dataDir)
	if !ok {
		return 0
	}
	return time.Since(at)
}

func readMarker(dataDir string) (time.Time, string, bool) {
	content, err := os.ReadFile(filepath.Join(dataDir, MarkerFile))
	if err != nil {
		return time.Time{}, "", false
	}

	stamp, ver, _ := strings.Cut(strings.TrimSpace(string(content)), " ")
	at, err := time.Parse(time.RFC3339, stamp)
	if err != nil {
		return time.Time{}, "", false
	}
	return at, ver, true
}
