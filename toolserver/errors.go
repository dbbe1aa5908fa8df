package toolserver

import (
	"errors"
	"fmt"
)

// ToolServerError is the error kind for C2 failures (spec.md §7): spawn
// failure, handshake failure, unexpected exit (ServerUnavailable), or a
// protocol-level error.
type ToolServerError struct {
	ServerID string
	Kind     ToolServerErrorKind
	Err      error
}

type ToolServerErrorKind string

const (
	ToolServerErrorSpawn     ToolServerErrorKind = "spawn"
	ToolServerErrorHandshake ToolServerErrorKind = "handshake"
	ToolServerErrorUnavailable ToolServerErrorKind = "server_unavailable"
	ToolServerErrorProtocol  ToolServerErrorKind = "protocol"
)

func (e *ToolServerError) Error() string {
	return fmt.Sprintf("tool-server %s: %s: %v", e.ServerID, e.Kind, e.Err)
}

func (e *ToolServerError) Unwrap() error { return e.Err }

// IsServerUnavailable reports whether err is a ServerUnavailable failure:
// the child exited and the core does not automatically restart it.
func IsServerUnavailable(err error) bool {
	var tse *ToolServerError
	if errors.As(err, &tse) {
		return tse.Kind == ToolServerErrorUnavailable
	}
	return false
}

// ToolCallError is the error kind for a single tool call (spec.md §7):
// unknown tool name, argument schema mismatch, or server-reported
// failure. It preserves the tool name and call id.
type ToolCallError struct {
	CallID string
	Name   string
	Kind   ToolCallErrorKind
	Err    error
}

type ToolCallErrorKind string

const (
	ToolCallErrorUnknownTool      ToolCallErrorKind = "unknown_tool"
	ToolCallErrorInvalidArguments ToolCallErrorKind = "invalid_arguments"
	ToolCallErrorServerFailure    ToolCallErrorKind = "server_failure"
)

func (e *ToolCallError) Error() string {
	return fmt.Sprintf("tool call %s (%s): %s: %v", e.CallID, e.Name, e.Kind, e.Err)
}

func (e *ToolCallError) Unwrap() error { return e.Err }

// ErrDuplicateToolName names the condition of two servers declaring the
// same flat tool name (P2). Registry does not return it: Catalog
// namespaces every tool as "<server-id>.<tool-name>", and NewRegistry
// rejects a repeated server id instead.
var ErrDuplicateToolName = errors.New("duplicate tool name across tool-servers")

// ErrSchemaRejected is returned by the schema mapper (C3) when a
// tool-server's declared schema is not a top-level object schema.
var ErrSchemaRejected = errors.New("tool input schema rejected: top level must be type \"object\"")

// ErrDuplicateProperty is the schema mapper's error for a repeated
// property name. mapSchema receives properties as an already-decoded
// map, so a name repeated in the server's raw JSON has been collapsed
// to a single entry before mapping, and this error is not returned for
// it.
var ErrDuplicateProperty = errors.New("duplicate property name in tool input schema")
