package cmd

import (
	"errors"
	"os"
	"strings"
)

// Error categories surfaced to the CLI for exit-code mapping
var (
	ErrConfiguration = errors.New("configuration error")
	ErrConnection    = errors.New("connection error")
	ErrExtraction    = errors.New("extraction error")
	ErrTransport     = errors.New("transport error")
)

// Process exit codes
const (
	ExitGeneral       = 1
	ExitConfiguration = 2
	ExitConnection    = 3
	ExitPermission    = 5
)

// ExitCode maps an error to the process exit code for that failure category
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case isPermissionError(err):
		return ExitPermission
	case errors.Is(err, ErrConfiguration):
		return ExitConfiguration
	case errors.Is(err, ErrConnection):
		return ExitConnection
	default:
		return ExitGeneral
	}
}

// isPermissionError checks if an error indicates a permission problem.
// Database drivers and shell tools report these as free-form text, so we
// match on well-known substrings in addition to os.ErrPermission.
func isPermissionError(err error) bool {
	if errors.Is(err, os.ErrPermission) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	permissionIndicators := []string{
		"permission denied",
		"access denied",
		"insufficient privilege",
		"not authorized",
	}

	for _, indicator := range permissionIndicators {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}

	return false
}
