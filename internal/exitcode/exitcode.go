package exitcode

import (
	"context"
	stderrors "errors"
	"os"
	"strings"

	"github.com/felixgeelhaar/tradeflow/internal/errors"
)

// Exit codes for consistent error handling across the CLI
const (
	// Success indicates successful execution
	Success = 0

	// GeneralError indicates a general error condition
	GeneralError = 1

	// UsageError indicates invalid command usage (bad flags, missing args, etc.)
	UsageError = 2

	// ValidationError indicates rejected input such as a malformed plan file
	ValidationError = 3

	// NotFound indicates a missing plan, module or message
	NotFound = 4

	// AuthError indicates an authentication or authorization failure
	AuthError = 5

	// NetworkError indicates a module transport failure or timeout
	NetworkError = 6

	// Conflict indicates a plan in the wrong state for the request
	Conflict = 7

	// Interrupted indicates the command was stopped by SIGINT or SIGTERM
	Interrupted = 130
)

var kindCodes = map[errors.Kind]int{
	errors.KindValidation:   ValidationError,
	errors.KindDisabled:     ValidationError,
	errors.KindNotFound:     NotFound,
	errors.KindUnauthorized: AuthError,
	errors.KindForbidden:    AuthError,
	errors.KindTransport:    NetworkError,
	errors.KindTimeout:      NetworkError,
	errors.KindConflict:     Conflict,
	errors.KindRateLimited:  NetworkError,
}

// Exit terminates the program with the given exit code
func Exit(code int) {
	os.Exit(code)
}

// ExitWithError exits with an appropriate code based on error type
func ExitWithError(err error) {
	if err == nil {
		Exit(Success)
		return
	}

	code := DetermineExitCode(err)
	Exit(code)
}

// DetermineExitCode maps err to an exit code. Errors carrying a Kind are
// mapped by category; cobra's usage errors are recognised by message.
func DetermineExitCode(err error) int {
	if err == nil {
		return Success
	}
	if stderrors.Is(err, context.Canceled) {
		return Interrupted
	}

	var k errors.Kinded
	if stderrors.As(err, &k) {
		if code, ok := kindCodes[k.Kind()]; ok {
			return code
		}
		return GeneralError
	}

	errMsg := strings.ToLower(err.Error())

	if strings.Contains(errMsg, "unknown flag") || strings.Contains(errMsg, "unknown shorthand flag") ||
		strings.Contains(errMsg, "invalid argument") || strings.Contains(errMsg, "unknown command") {
		return UsageError
	}
	if strings.Contains(errMsg, "required flag") || strings.Contains(errMsg, "accepts ") ||
		strings.Contains(errMsg, "requires at least") {
		return UsageError
	}

	if strings.Contains(errMsg, "connection refused") || strings.Contains(errMsg, "no such host") {
		return NetworkError
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
		return "Validation error"
	case NotFound:
		return "Resource not found"
	case AuthError:
		return "Authentication error"
	case NetworkError:
		return "Network error"
	case Conflict:
		return "Conflicting plan state"
	case Interrupted:
		return "Interrupted"
	default:
		return "Unknown error"
	}
}
