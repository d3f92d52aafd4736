package util

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
)

// maxErrorLineLength caps how much of a stderr line ends up in an error.
const maxErrorLineLength = 200

// WrapError gives an error its operation context: "failed to <op>: <err>".
func WrapError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("failed to %s: %w", operation, err)
}

// ExtractLastError pulls the last non-empty line out of captured stderr.
// Speech engines print their diagnostics there, newest last.
func ExtractLastError(stderr string) string {
	for _, line := range slices.Backward(strings.Split(stderr, "\n")) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if len(line) > maxErrorLineLength {
			return line[:maxErrorLineLength] + "..."
		}
		return line
	}
	return ""
}

// SafeCloseFunc returns a func that closes c and logs any close error.
// Intended for defer at call sites where the close error cannot be returned.
func SafeCloseFunc(c io.Closer, what string) func() {
	return func() {
		if err := c.Close(); err != nil {
			slog.Warn("close failed", "what", what, "error", err)
		}
	}
}
