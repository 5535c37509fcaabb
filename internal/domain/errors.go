package domain

import "errors"

var (
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrNotFound         = errors.New("not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrInvalidState     = errors.New("invalid state")
	ErrConflict         = errors.New("conflict")
	ErrUnauthenticated  = errors.New("unauthenticated")
)

// Wire codes shared by the HTTP and socket gateways.
const (
	CodeInvalidArgument  = "INVALID_ARGUMENT"
	CodeNotFound         = "NOT_FOUND"
	CodePermissionDenied = "PERMISSION_DENIED"
	CodeInvalidState     = "INVALID_STATE"
	CodeConflict         = "CONFLICT"
	CodeUnauthenticated  = "UNAUTHENTICATED"
	CodeInternal         = "INTERNAL"
)

// Code classifies err into a stable wire code. Unknown errors are INTERNAL.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrInvalidArgument):
		return CodeInvalidArgument
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrPermissionDenied):
		return CodePermissionDenied
	case errors.Is(err, ErrInvalidState):
		return CodeInvalidState
	case errors.Is(err, ErrConflict):
		return CodeConflict
	case errors.Is(err, ErrUnauthenticated):
		return CodeUnauthenticated
	default:
		return CodeInternal
	}
}

// PublicMessage is the generic, client-safe description of a wire code.
func PublicMessage(code string) string {
	switch code {
	case CodeInvalidArgument:
		return "The request is invalid"
	case CodeNotFound:
		return "Resource not found"
	case CodePermissionDenied:
		return "You are not allowed to perform this action"
	case CodeInvalidState:
		return "The operation is not allowed in the current state"
	case CodeConflict:
		return "The resource was modified concurrently, please retry"
	case CodeUnauthenticated:
		return "Authentication required"
	default:
		return "Something went wrong"
	}
}
