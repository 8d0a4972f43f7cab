package cqrs

import (
	"fmt"
	"strings"

	goerrors "github.com/go-errors/errors"
)

// Kind discriminates the dispatch-fabric error taxonomy. Every
// error the bus, interceptor, facade, or repository aspect returns can be
// classified into exactly one Kind via errors.As against *FabricError.
type Kind string

const (
	KindContractViolation             Kind = "contract_violation"
	KindNoHandlerRegistered           Kind = "no_handler_registered"
	KindCommandRecursionTooDeep       Kind = "command_recursion_too_deep"
	KindAsyncRecursionTooDeep         Kind = "async_recursion_too_deep"
	KindHandlerFailure                Kind = "handler_failure"
	KindTransportFailure              Kind = "transport_failure"
	KindSerializationFailure          Kind = "serialization_failure"
	KindTransactionalPublishAborted   Kind = "transactional_publish_aborted"
)

// FabricError is the single error type produced by the dispatch fabric.
// It wraps a go-errors/errors stack-captured error so the first caller
// frame survives across goroutine/transport hops for diagnostics, while
// exposing a stable Kind for programmatic handling (HTTP status mapping,
// retry-vs-dead-letter decisions, etc).
type FabricError struct {
	Kind    Kind
	Message string
	stack   *goerrors.Error
	cause   error
}

func newFabricError(kind Kind, cause error, format string, args ...any) *FabricError {
	msg := fmt.Sprintf(format, args...)
	var stacked *goerrors.Error
	if cause != nil {
		stacked = goerrors.Wrap(cause, 1)
	} else {
		stacked = goerrors.Wrap(msg, 1)
	}
	return &FabricError{Kind: kind, Message: msg, stack: stacked, cause: cause}
}

func (e *FabricError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("cqrs: %s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("cqrs: %s: %s", e.Kind, e.Message)
}

func (e *FabricError) Unwrap() error { return e.cause }

// StackTrace returns the captured stack of the first caller frame, for
// logging alongside unexpected failures.
func (e *FabricError) StackTrace() string {
	if e.stack == nil {
		return ""
	}
	return e.stack.ErrorStack()
}

// Is reports whether target is a *FabricError with the same Kind, so
// errors.Is(err, &FabricError{Kind: SomeKind}) matches by Kind. A bare
// Kind is not an error value and cannot be used as the target.
func (e *FabricError) Is(target error) bool {
	other, ok := target.(*FabricError)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

// NewContractViolation reports malformed input to the fabric itself — nil
// commands/queries/events, a registration with a mismatched prototype,
// and similar caller-side contract breaks.
func NewContractViolation(format string, args ...any) *FabricError {
	return newFabricError(KindContractViolation, nil, format, args...)
}

// NewNoHandlerRegistered reports dispatch of a command/query/event whose
// concrete type has no registered handler.
func NewNoHandlerRegistered(kind, typeName string) *FabricError {
	return newFabricError(KindNoHandlerRegistered, nil, "no handler registered for %s type %s", kind, typeName)
}

// NewCommandRecursionTooDeep reports synchronous command nesting beyond
// the configured ceiling (default 10), including the call trail that
// triggered it for diagnosability.
func NewCommandRecursionTooDeep(limit int, trail []string) *FabricError {
	return newFabricError(KindCommandRecursionTooDeep, nil,
		"synchronous command recursion exceeded limit %d: %s", limit, strings.Join(trail, " -> "))
}

// NewAsyncRecursionTooDeep reports cross-hop (async/transport) nesting
// beyond the configured ceiling (default 20).
func NewAsyncRecursionTooDeep(limit, hop int) *FabricError {
	return newFabricError(KindAsyncRecursionTooDeep, nil,
		"async/transport hop count %d exceeded limit %d", hop, limit)
}

// NewHandlerFailure wraps an error returned by a concrete command, query,
// or event handler, tagging it with the handler and event/command/query
// type name it came from.
func NewHandlerFailure(typeName, handlerName string, cause error) *FabricError {
	return newFabricError(KindHandlerFailure, cause, "handler %q failed for type %s", handlerName, typeName)
}

// NewTransportFailure reports a failure to publish to or consume from the
// persistent stream transport (Redis unreachable, XADD failure, etc).
func NewTransportFailure(op string, cause error) *FabricError {
	return newFabricError(KindTransportFailure, cause, "transport operation %q failed", op)
}

// NewSerializationFailure reports a failure to marshal or unmarshal an
// event across the stream transport boundary.
func NewSerializationFailure(op, typeName string, cause error) *FabricError {
	return newFabricError(KindSerializationFailure, cause, "%s failed for type %s", op, typeName)
}

// NewTransactionalPublishAborted reports that the repository event aspect
// could not register or run its after-commit publish callback — e.g. the
// context carries no active txn.Scope when one was required.
func NewTransactionalPublishAborted(reason string, cause error) *FabricError {
	return newFabricError(KindTransactionalPublishAborted, cause, "transactional publish aborted: %s", reason)
}
