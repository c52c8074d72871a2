package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

// Error categories
const (
	// Validation errors (VALIDATION-001 to VALIDATION-099)
	ErrCodeValidation     ErrorCode = "VALIDATION-001"
	ErrCodeMalformedInput ErrorCode = "VALIDATION-002"

	// Plan errors (PLAN-001 to PLAN-099)
	ErrCodePlanNotFound          ErrorCode = "PLAN-001"
	ErrCodePlanExecuting         ErrorCode = "PLAN-002"
	ErrCodePlanInvalidTransition ErrorCode = "PLAN-003"
	ErrCodePlanAlreadyRun        ErrorCode = "PLAN-004"

	// Module errors (MODULE-001 to MODULE-099)
	ErrCodeModuleNotFound  ErrorCode = "MODULE-001"
	ErrCodeModuleDisabled  ErrorCode = "MODULE-002"
	ErrCodeModuleTimeout   ErrorCode = "MODULE-003"
	ErrCodeModuleTransport ErrorCode = "MODULE-004"
	ErrCodeCatalogInvalid  ErrorCode = "MODULE-005"

	// Chat errors (CHAT-001 to CHAT-099)
	ErrCodeMessageNotFound ErrorCode = "CHAT-001"
	ErrCodeChatStore       ErrorCode = "CHAT-002"

	// Auth errors (AUTH-001 to AUTH-099)
	ErrCodeUnauthorized ErrorCode = "AUTH-001"
	ErrCodeForbidden    ErrorCode = "AUTH-002"

	// API errors (API-001 to API-099)
	ErrCodeRouteNotFound ErrorCode = "API-001"

	// Rate limiting (RATE-001 to RATE-099)
	ErrCodeRateLimited ErrorCode = "RATE-001"

	// Internal errors (INTERNAL-001 to INTERNAL-099)
	ErrCodeInternal ErrorCode = "INTERNAL-001"
	ErrCodeConfig   ErrorCode = "INTERNAL-002"
)

// Kind is the coarse category an error code belongs to.
// API and CLI layers map kinds onto status and exit codes.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindDisabled     Kind = "disabled"
	KindTimeout      Kind = "timeout"
	KindTransport    Kind = "transport"
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindRateLimited  Kind = "rate_limited"
	KindInternal     Kind = "internal"
)

var codeKinds = map[ErrorCode]Kind{
	ErrCodeValidation:            KindValidation,
	ErrCodeMalformedInput:        KindValidation,
	ErrCodePlanNotFound:          KindNotFound,
	ErrCodePlanExecuting:         KindConflict,
	ErrCodePlanInvalidTransition: KindConflict,
	ErrCodePlanAlreadyRun:        KindConflict,
	ErrCodeModuleNotFound:        KindNotFound,
	ErrCodeModuleDisabled:        KindDisabled,
	ErrCodeModuleTimeout:         KindTimeout,
	ErrCodeModuleTransport:       KindTransport,
	ErrCodeCatalogInvalid:        KindInternal,
	ErrCodeMessageNotFound:       KindNotFound,
	ErrCodeChatStore:             KindInternal,
	ErrCodeUnauthorized:          KindUnauthorized,
	ErrCodeForbidden:             KindForbidden,
	ErrCodeRouteNotFound:         KindNotFound,
	ErrCodeRateLimited:           KindRateLimited,
	ErrCodeInternal:              KindInternal,
	ErrCodeConfig:                KindInternal,
}

// Kind returns the category of the code. Unknown codes are internal.
func (c ErrorCode) Kind() Kind {
	if k, ok := codeKinds[c]; ok {
		return k
	}
	return KindInternal
}

// TradeflowError represents an enhanced error with code, suggestions, and documentation
type TradeflowError struct {
	Code        ErrorCode
	Message     string
	Suggestions []string
	DocsURL     string
	Cause       error
}

// Error implements the error interface
func (e *TradeflowError) Error() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf(": %v", e.Cause))
	}

	if len(e.Suggestions) > 0 {
		b.WriteString("\n\nSuggestions:")
		for _, suggestion := range e.Suggestions {
			b.WriteString(fmt.Sprintf("\n  • %s", suggestion))
		}
	}

	if e.DocsURL != "" {
		b.WriteString(fmt.Sprintf("\n\nDocumentation: %s", e.DocsURL))
	}

	return b.String()
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *TradeflowError) Unwrap() error {
	return e.Cause
}

// Kind returns the coarse category of the error
func (e *TradeflowError) Kind() Kind {
	return e.Code.Kind()
}

// New creates a new TradeflowError
func New(code ErrorCode, message string) *TradeflowError {
	return &TradeflowError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new TradeflowError wrapping an existing error
func Wrap(code ErrorCode, message string, cause error) *TradeflowError {
	return &TradeflowError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WithSuggestion adds a suggestion to the error
func (e *TradeflowError) WithSuggestion(suggestion string) *TradeflowError {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// WithSuggestions adds multiple suggestions to the error
func (e *TradeflowError) WithSuggestions(suggestions ...string) *TradeflowError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// WithDocs adds a documentation URL to the error
func (e *TradeflowError) WithDocs(url string) *TradeflowError {
	e.DocsURL = url
	return e
}

// As finds the first TradeflowError in err's chain.
func As(err error) (*TradeflowError, bool) {
	var te *TradeflowError
	if stderrors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// Kinded is implemented by errors of other packages that map onto a Kind.
type Kinded interface {
	error
	Kind() Kind
}

// KindOf reports the category of err. Errors outside the taxonomy are internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var k Kinded
	if stderrors.As(err, &k) {
		return k.Kind()
	}
	return KindInternal
}

// IsKind reports whether err belongs to the given category.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code ErrorCode) bool {
	te, ok := As(err)
	return ok && te.Code == code
}

// Common error constructors for frequently used errors

// NewValidationError creates an input validation error
func NewValidationError(details string) *TradeflowError {
	return New(ErrCodeValidation, details)
}

// NewPlanNotFoundError creates a plan not found error.
// Plans owned by another user are reported the same way.
func NewPlanNotFoundError(planID string) *TradeflowError {
	return New(ErrCodePlanNotFound, fmt.Sprintf("plan not found: %s", planID)).
		WithSuggestion("List your plans with GET /api/plans")
}

// NewPlanExecutingError creates the conflict returned for mutations of a running plan
func NewPlanExecutingError(planID string) *TradeflowError {
	return New(ErrCodePlanExecuting, fmt.Sprintf("plan %s is executing", planID)).
		WithSuggestion("Wait for the execution to reach completed or failed").
		WithSuggestion("Subscribe to workflow:" + planID + " to follow progress")
}

// NewInvalidTransitionError creates an illegal status transition error
func NewInvalidTransitionError(planID string, from, to string) *TradeflowError {
	return New(ErrCodePlanInvalidTransition, fmt.Sprintf("plan %s cannot move from %s to %s", planID, from, to)).
		WithSuggestion("Only draft and approved may be set directly; execution drives the rest")
}

// NewModuleNotFoundError creates an unknown module error
func NewModuleNotFoundError(moduleID string) *TradeflowError {
	return New(ErrCodeModuleNotFound, fmt.Sprintf("module not found: %s", moduleID)).
		WithSuggestion("List available modules with GET /api/mcp/modules")
}

// NewModuleDisabledError creates an inactive module error
func NewModuleDisabledError(moduleID string) *TradeflowError {
	return New(ErrCodeModuleDisabled, fmt.Sprintf("module is disabled: %s", moduleID)).
		WithSuggestion("Use GET /api/mcp/modules?isActive=true to find active modules")
}

// NewUnauthorizedError creates an authentication failure
func NewUnauthorizedError(message string) *TradeflowError {
	return New(ErrCodeUnauthorized, message)
}
