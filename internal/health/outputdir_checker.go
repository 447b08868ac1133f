package health

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// OutputDirCheckName is the name of the output directory check.
const OutputDirCheckName = "output-directory"

// markerFile is written and removed again to prove the directory is writable.
const markerFile = ".health-check"

// OutputDirChecker verifies that the output directory exists (creating it
// if needed) and is writable.
type OutputDirChecker struct {
	dir string
}

// NewOutputDirChecker creates a checker for dir.
func NewOutputDirChecker(dir string) *OutputDirChecker {
	return &OutputDirChecker{dir: dir}
}

// Name returns the name of this health check.
func (c *OutputDirChecker) Name() string {
	return OutputDirCheckName
}

// Check creates the directory, writes and deletes a marker file.
func (c *OutputDirChecker) Check(ctx context.Context) *Result {
	if err := ctx.Err(); err != nil {
		return unhealthyDir(c.dir, err)
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return unhealthyDir(c.dir, err)
	}

	marker := filepath.Join(c.dir, markerFile)
	if err := os.WriteFile(marker, []byte("test"), 0o644); err != nil {
		return unhealthyDir(c.dir, err)
	}
	if err := os.Remove(marker); err != nil {
		return unhealthyDir(c.dir, err)
	}

	return Healthy("output directory writable").WithDetail("path", c.dir)
}

func unhealthyDir(dir string, err error) *Result {
	return Unhealthy(fmt.Sprintf("output directory error: %v", err)).
		WithDetail("path", dir).
		WithDetail("error", err.Error())
}
