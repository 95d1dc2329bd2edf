package errors

import (
	stdErrors "errors"
	"fmt"
	"io/fs"
	"net/http"
	"strings"

	"hybrid-filesystem/internal/models"
)

// JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700 // Invalid JSON was received by the server.
	CodeInvalidRequest = -32600 // The JSON sent is not a valid Request object.
	CodeMethodNotFound = -32601 // The method does not exist / is not available.
	CodeInvalidParams  = -32602 // Invalid method parameter(s).
	CodeInternalError  = -32603 // Internal JSON-RPC error.
)

// Application Specific Error Codes
const (
	// CodeFileSystemError is used for I/O failures that have no more specific kind.
	CodeFileSystemError = -32001

	// CodeOperationLockFailed indicates that an edit lock on the target could not be acquired.
	CodeOperationLockFailed = -32002

	// CodeFileTooLarge indicates the file exceeds the configured size limit.
	CodeFileTooLarge = -32003

	CodeAccessDenied     = -32010
	CodePathTooLong      = -32011
	CodeFileNotFound     = -32012
	CodeInvalidRange     = -32013
	CodeInvalidPattern   = -32014
	CodeInvalidOperation = -32015
	CodeNotAFile         = -32016
)

// Kind classifies every failure a tool call can produce.
type Kind string

const (
	KindAccessDenied     Kind = "access_denied"
	KindPathTooLong      Kind = "path_too_long"
	KindFileNotFound     Kind = "file_not_found"
	KindNotAFile         Kind = "not_a_file"
	KindFileTooLarge     Kind = "file_too_large"
	KindInvalidRange     Kind = "invalid_range"
	KindInvalidPattern   Kind = "invalid_pattern"
	KindInvalidOperation Kind = "invalid_operation"
	KindInvalidParams    Kind = "invalid_params"
	KindIOFailure        Kind = "io_failure"
	KindUnknownTool      Kind = "unknown_tool"
	KindLockTimeout      Kind = "lock_timeout"
	KindInternal         Kind = "internal"
)

// Code returns the JSON-RPC style code for the kind.
func (k Kind) Code() int {
	switch k {
	case KindAccessDenied:
		return CodeAccessDenied
	case KindPathTooLong:
		return CodePathTooLong
	case KindFileNotFound:
		return CodeFileNotFound
	case KindNotAFile:
		return CodeNotAFile
	case KindFileTooLarge:
		return CodeFileTooLarge
	case KindInvalidRange:
		return CodeInvalidRange
	case KindInvalidPattern:
		return CodeInvalidPattern
	case KindInvalidOperation:
		return CodeInvalidOperation
	case KindInvalidParams:
		return CodeInvalidParams
	case KindIOFailure:
		return CodeFileSystemError
	case KindUnknownTool:
		return CodeMethodNotFound
	case KindLockTimeout:
		return CodeOperationLockFailed
	default:
		return CodeInternalError
	}
}

// Error is the typed error returned by every component. Message is safe to show
// to an agent; Err keeps the underlying cause for logs and errors.Is.
type Error struct {
	Kind    Kind
	Message string
	Path    string
	Field   string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an Error of the given kind.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to a new Error of the given kind.
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf reports the Kind of err, or KindInternal if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if stdErrors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return stdErrors.As(err, &e) && e.Kind == kind
}

// --- Specific constructors ---

func AccessDenied(path string) *Error {
	return &Error{Kind: KindAccessDenied, Path: path,
		Message: fmt.Sprintf("Access denied: %s not in allowed directories", path)}
}

func PathTooLong(path string, limit int) *Error {
	return &Error{Kind: KindPathTooLong, Path: path,
		Message: fmt.Sprintf("Path exceeds %d characters", limit)}
}

func FileNotFound(path string) *Error {
	return &Error{Kind: KindFileNotFound, Path: path,
		Message: fmt.Sprintf("File '%s' not found", path)}
}

func NotAFile(path string) *Error {
	return &Error{Kind: KindNotAFile, Path: path,
		Message: fmt.Sprintf("'%s' is not a regular file", path)}
}

func FileTooLarge(path string, maxSizeMB int) *Error {
	return &Error{Kind: KindFileTooLarge, Path: path,
		Message: fmt.Sprintf("File '%s' exceeds maximum allowed size of %d MB", path, maxSizeMB)}
}

func InvalidRange(format string, args ...interface{}) *Error {
	return New(KindInvalidRange, format, args...)
}

func InvalidPattern(pattern string, err error) *Error {
	return &Error{Kind: KindInvalidPattern, Err: err,
		Message: fmt.Sprintf("invalid regular expression %q", pattern)}
}

func InvalidOperation(format string, args ...interface{}) *Error {
	return New(KindInvalidOperation, format, args...)
}

// InvalidParams reports a boundary validation failure on a single argument.
func InvalidParams(field, format string, args ...interface{}) *Error {
	return &Error{Kind: KindInvalidParams, Field: field, Message: fmt.Sprintf(format, args...)}
}

func UnknownTool(name string) *Error {
	return &Error{Kind: KindUnknownTool, Message: fmt.Sprintf("Unknown tool: %s", name)}
}

func LockTimeout(path string, err error) *Error {
	return &Error{Kind: KindLockTimeout, Path: path, Err: err,
		Message: fmt.Sprintf("Could not acquire edit lock on '%s'", path)}
}

func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Err: err, Message: "Internal error"}
}

// FromOS classifies an os/io error encountered while operating on path.
func FromOS(path, operation string, err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if stdErrors.As(err, &e) {
		return e
	}
	switch {
	case stdErrors.Is(err, fs.ErrNotExist):
		fe := FileNotFound(path)
		fe.Err = err
		return fe
	case stdErrors.Is(err, fs.ErrPermission):
		return &Error{Kind: KindIOFailure, Path: path, Err: err,
			Message: fmt.Sprintf("Permission denied for '%s' during %s", path, operation)}
	default:
		return &Error{Kind: KindIOFailure, Path: path, Err: err,
			Message: fmt.Sprintf("%s failed for '%s'", operation, path)}
	}
}

// --- Conversion to wire structures ---

// ToErrorDetail converts any error to the ErrorDetail wire shape. Non-typed errors
// become internal errors; their text is not exposed beyond a generic message.
func ToErrorDetail(err error, tool string) *models.ErrorDetail {
	if err == nil {
		return nil
	}
	var e *Error
	if !stdErrors.As(err, &e) {
		e = Internal(err)
	}
	data := map[string]interface{}{"type": string(e.Kind)}
	if tool != "" {
		data["tool"] = tool
	}
	if e.Path != "" {
		data["path"] = e.Path
	}
	if e.Field != "" {
		data["field"] = e.Field
	}
	if e.Err != nil && e.Kind != KindInternal {
		data["details"] = e.Err.Error()
	}
	return &models.ErrorDetail{Code: e.Kind.Code(), Message: e.Message, Data: data}
}

// ToErrorResponse converts an ErrorDetail to an HTTP models.ErrorResponse.
func ToErrorResponse(errDetail *models.ErrorDetail) *models.ErrorResponse {
	if errDetail == nil {
		return nil
	}
	return &models.ErrorResponse{Error: *errDetail}
}

// --- HTTP Status Mapping ---

// MapErrorToHTTPStatus maps an error code to an HTTP status code.
func MapErrorToHTTPStatus(errorCode int, errDetail *models.ErrorDetail) int {
	switch errorCode {
	case CodeParseError, CodeInvalidRequest, CodeInvalidParams:
		return http.StatusBadRequest
	case CodeMethodNotFound:
		return http.StatusNotFound
	case CodeAccessDenied:
		return http.StatusForbidden
	case CodeFileNotFound:
		return http.StatusNotFound
	case CodePathTooLong, CodeInvalidRange, CodeInvalidPattern, CodeInvalidOperation, CodeNotAFile:
		return http.StatusUnprocessableEntity
	case CodeFileTooLarge:
		return http.StatusRequestEntityTooLarge
	case CodeOperationLockFailed:
		return http.StatusConflict
	case CodeFileSystemError:
		if errDetail != nil {
			if data, ok := errDetail.Data.(map[string]interface{}); ok {
				if details, ok := data["details"].(string); ok && details != "" && isPermissionText(details) {
					return http.StatusForbidden
				}
			}
		}
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func isPermissionText(s string) bool {
	return strings.Contains(strings.ToLower(s), "permission denied")
}

// NewParseError builds the detail for a request body that is not valid JSON.
func NewParseError(message string) *models.ErrorDetail {
	return &models.ErrorDetail{Code: CodeParseError, Message: message}
}

// NewInvalidRequestError builds the detail for a request rejected before dispatch.
func NewInvalidRequestError(message string) *models.ErrorDetail {
	return &models.ErrorDetail{Code: CodeInvalidRequest, Message: message}
}
