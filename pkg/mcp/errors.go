package mcp

import "fmt"

// Kind is the closed set of error kinds internal handlers surface. The
// worker pool maps a Kind to a JSON-RPC code and message exactly once, at
// the edge (see kindToRPC below) — handlers themselves never know about
// JSON-RPC codes.
type Kind int

const (
	// KindInternal covers invariant violations and anything that should
	// never happen; it is also the default for unrecognised kinds.
	KindInternal Kind = iota
	KindInvalidRequest
	KindInvalidArgument
	KindMethodNotFound
	KindNotFound
	KindAlreadyExists
	KindPermissionDenied
	KindAccessDenied
	KindBusy
	KindNoSpace
	KindNoMemory
)

func (k Kind) String() string {
	switch k {
	case KindInvalidRequest:
		return "InvalidRequest"
	case KindInvalidArgument:
		return "InvalidArgument"
	case KindMethodNotFound:
		return "MethodNotFound"
	case KindNotFound:
		return "NotFound"
	case KindAlreadyExists:
		return "AlreadyExists"
	case KindPermissionDenied:
		return "PermissionDenied"
	case KindAccessDenied:
		return "AccessDenied"
	case KindBusy:
		return "Busy"
	case KindNoSpace:
		return "NoSpace"
	case KindNoMemory:
		return "NoMemory"
	default:
		return "Internal"
	}
}

// Error is the error type every core operation returns. It always carries a
// Kind so the edge mapping in kindToRPC never has to guess.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Is supports errors.Is(err, ErrBusy) and friends by comparing Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func newError(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...)}
}

// Sentinel errors for errors.Is comparisons; only Kind is significant.
var (
	ErrInternal         = &Error{Kind: KindInternal}
	ErrInvalidRequest   = &Error{Kind: KindInvalidRequest}
	ErrInvalidArgument  = &Error{Kind: KindInvalidArgument}
	ErrMethodNotFound   = &Error{Kind: KindMethodNotFound}
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrAlreadyExists    = &Error{Kind: KindAlreadyExists}
	ErrPermissionDenied = &Error{Kind: KindPermissionDenied}
	ErrAccessDenied     = &Error{Kind: KindAccessDenied}
	ErrBusy             = &Error{Kind: KindBusy}
	ErrNoSpace          = &Error{Kind: KindNoSpace}
	ErrNoMemory         = &Error{Kind: KindNoMemory}
)

// rpcMapping is the deterministic Kind -> JSON-RPC (code, message) table.
// It is consulted exactly once, at the worker pool edge.
type rpcMapping struct {
	code    int
	message string
}

func kindToRPC(k Kind) rpcMapping {
	switch k {
	case KindNotFound:
		return rpcMapping{-32601, "Resource not found"}
	case KindPermissionDenied:
		return rpcMapping{-32602, "Permission denied"}
	case KindNoSpace:
		return rpcMapping{-32603, "Resource exhausted"}
	case KindNoMemory:
		return rpcMapping{-32603, "Memory allocation failed"}
	case KindAccessDenied:
		return rpcMapping{-32602, "Client not initialized"}
	case KindBusy:
		return rpcMapping{-32002, "Client is busy"}
	case KindInvalidRequest:
		return rpcMapping{-32600, "Invalid request"}
	case KindInvalidArgument:
		return rpcMapping{-32602, "Invalid params"}
	case KindMethodNotFound:
		return rpcMapping{-32601, "Method not found"}
	default:
		return rpcMapping{-32603, "Internal server error"}
	}
}

// asError extracts a *Error from any error, defaulting to KindInternal so
// an unexpected error type never panics the mapping — it surfaces as
// InternalError instead, since no panic should ever escape to the caller.
func asError(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		return e
	}
	return newError(KindInternal, "%v", err)
}
