package bootstrap

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// EnsureOutputDirectory creates dir if needed and verifies it is writable, so
// a long evaluation does not fail only when the reports are written
func EnsureOutputDirectory(dir string, sugar *zap.SugaredLogger) (string, error) {
	absPath, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path for %s: %w", dir, err)
	}

	if err := os.MkdirAll(absPath, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory %s: %w\n"+
			"  Remediation: Ensure the parent directory exists and is writable\n"+
			"  For Docker: Check volume mount permissions", dir, err)
	}

	probe, err := os.CreateTemp(absPath, ".cyberres_write_test-*")
	if err != nil {
		return "", fmt.Errorf("output directory %s is not writable: %w\n"+
			"  Remediation: Run 'chmod -R u+w %s'", dir, err, absPath)
	}
	name := probe.Name()
	probe.Close()
	os.Remove(name)

	sugar.Debugw("Output directory ready", "path", absPath)
	return absPath, nil
}

// CheckInput verifies that a batch input exists and is a regular file
func CheckInput(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("input %s is not readable: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("input %s is a directory", path)
	}
	return nil
}
