package util

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// IsConfigured reports whether every value is non-empty. Notification
// senders use it to skip channels the operator never filled in.
func IsConfigured(values ...string) bool {
	return !slices.Contains(values, "")
}

// ValidatePath rejects empty paths and traversal attempts. The check runs
// before and after cleaning so encoded ".." components cannot slip through.
func ValidatePath(field, path string) error {
	if path == "" {
		return fmt.Errorf("%s: is required", field)
	}
	if strings.Contains(path, "..") {
		return fmt.Errorf("%s: path cannot contain '..'", field)
	}
	if strings.Contains(filepath.Clean(path), "..") {
		return fmt.Errorf("%s: invalid path", field)
	}
	return nil
}

// CheckPathWritable proves a directory accepts writes by creating it if
// needed and round-tripping a probe file. The caller gets a generic error;
// the failing step lands in the log where the operator can read it.
func CheckPathWritable(path string) error {
	fail := func(step string, err error) error {
		slog.Error("path writability check failed", "path", path, "step", step, "error", err)
		return fmt.Errorf("path is not writable")
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return fail("mkdir", err)
	}

	probe := filepath.Join(path, fmt.Sprintf(".noisewatch-write-test-%d", time.Now().UnixNano()))
	f, err := os.Create(probe)
	if err != nil {
		return fail("create", err)
	}

	if _, err := f.Write(make([]byte, 1024)); err != nil {
		_ = f.Close()
		_ = os.Remove(probe)
		return fail("write", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(probe)
		return fail("close", err)
	}
	if err := os.Remove(probe); err != nil {
		return fail("remove", err)
	}
	return nil
}
