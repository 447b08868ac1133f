package exitcode

import (
	"context"
	stderrors "errors"
	"os"
	"strings"

	"github.com/felixgeelhaar/dramascope/internal/errors"
)

// Exit codes for consistent error handling across the CLI
const (
	// Success indicates successful execution
	Success = 0

	// GeneralError indicates a general error condition
	GeneralError = 1

	// UsageError indicates invalid command usage (bad flags, missing args, etc.)
	UsageError = 2

	// ValidationError indicates the analysis input was rejected before any station ran
	ValidationError = 3

	// InfrastructureError indicates the output directory or task client could not be set up
	InfrastructureError = 4

	// StationsFailed indicates the run finished but at least one station failed
	StationsFailed = 5

	// Unhealthy indicates a failed health check
	Unhealthy = 6

	// Interrupted indicates the run was cancelled by a signal
	Interrupted = 130
)

// Exit terminates the program with the given exit code
func Exit(code int) {
	os.Exit(code)
}

// ExitWithError exits with an appropriate code based on error type
func ExitWithError(err error) {
	Exit(DetermineExitCode(err))
}

// DetermineExitCode analyzes an error and returns the appropriate exit code.
// Coded errors are mapped by category; anything else falls back to message inspection.
func DetermineExitCode(err error) int {
	if err == nil {
		return Success
	}

	if stderrors.Is(err, context.Canceled) {
		return Interrupted
	}

	if code, ok := errors.CodeOf(err); ok {
		switch {
		case code == errors.ErrCodeStationCancelled:
			return Interrupted
		case code == errors.ErrCodeStationFailed || code == errors.ErrCodeRunAborted:
			return StationsFailed
		case code.Category() == errors.CategoryValidation:
			return ValidationError
		case code.Category() == errors.CategoryInfrastructure:
			return InfrastructureError
		case code.Category() == errors.CategoryConfig:
			return UsageError
		}
	}

	errMsg := strings.ToLower(err.Error())

	if strings.Contains(errMsg, "unhealthy") {
		return Unhealthy
	}

	if strings.Contains(errMsg, "invalid flag") || strings.Contains(errMsg, "unknown command") {
		return UsageError
	}
	if strings.Contains(errMsg, "required flag") || strings.Contains(errMsg, "missing argument") {
		return UsageError
	}

	return GeneralError
}

// GetExitCodeDescription returns a human-readable description of an exit code
func GetExitCodeDescription(code int) string {
	switch code {
	case Success:
		return "Success"
	case GeneralError:
		return "General error"
	case UsageError:
		return "Usage error (invalid flags or arguments)"
	case ValidationError:
		return "Input validation error"
	case InfrastructureError:
		return "Infrastructure error"
	case StationsFailed:
		return "One or more stations failed"
	case Unhealthy:
		return "Health check failed"
	case Interrupted:
		return "Interrupted"
	default:
		return "Unknown error"
	}
}
