package toolserver

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/volition-run/volition/chatmodel"
)

// Registry owns every configured tool-server connection and presents
// the union of their tools under namespaced names ("<server-id>.<tool-
// name>"), the resolution this implementation gives to P2 (spec.md §7):
// rather than rejecting a config with a colliding bare tool name, every
// tool is namespaced by its owning server up front, so collisions
// cannot occur. Grounded on an mcp/aggregator.go pattern, which uses
// the identical "pluginID.toolName" convention for the same reason.
type Registry struct {
	conns map[string]*Connection
}

// NewRegistry spawns and handshakes with every configured tool-server in
// parallel-free sequence (spec.md does not require concurrent startup,
// and sequential startup keeps spawn-order failures easy to attribute).
// A server that fails to start is recorded as Failed but does not abort
// startup of the others; the caller inspects Failed() afterward.
func NewRegistry(ctx context.Context, configs []ServerConfig, logger *zap.Logger) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	conns := make(map[string]*Connection, len(configs))
	for _, cfg := range configs {
		if _, dup := conns[cfg.ID]; dup {
			return nil, fmt.Errorf("tool-server id %q configured twice", cfg.ID)
		}
		c := NewConnection(cfg, logger)
		if err := c.Start(ctx); err != nil {
			logger.Warn("tool server failed to start", zap.String("tool_server", cfg.ID), zap.Error(err))
		}
		conns[cfg.ID] = c
	}

	return &Registry{conns: conns}, nil
}

// Failed returns the ids of tool-servers that are not in StateReady.
func (r *Registry) Failed() []string {
	var failed []string
	for id, c := range r.conns {
		if c.State() != StateReady {
			failed = append(failed, id)
		}
	}
	sort.Strings(failed)
	return failed
}

// Catalog returns the namespaced union of every ready tool-server's
// tool definitions, suitable for inclusion in a ChatRequest.Tools.
func (r *Registry) Catalog() ([]chatmodel.ToolDefinition, error) {
	var out []chatmodel.ToolDefinition

	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		c := r.conns[id]
		if c.State() != StateReady {
			continue
		}
		defs, err := c.Tools()
		if err != nil {
			return nil, err
		}
		names := make([]string, 0, len(defs))
		for name := range defs {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			def := defs[name]
			def.Name = namespacedName(id, name)
			out = append(out, def)
		}
	}
	return out, nil
}

// Call dispatches one namespaced tool call to its owning connection.
func (r *Registry) Call(ctx context.Context, call chatmodel.ToolCall) (chatmodel.ToolResult, error) {
	serverID, bareName, ok := splitNamespacedName(call.Name)
	if !ok {
		return chatmodel.ToolResult{}, &ToolCallError{CallID: call.ID, Name: call.Name, Kind: ToolCallErrorUnknownTool, Err: fmt.Errorf("tool name %q is not namespaced", call.Name)}
	}

	conn, ok := r.conns[serverID]
	if !ok {
		return chatmodel.ToolResult{}, &ToolCallError{CallID: call.ID, Name: call.Name, Kind: ToolCallErrorUnknownTool, Err: fmt.Errorf("no tool-server %q", serverID)}
	}

	args, err := chatmodel.DecodeToolArguments(call.Arguments)
	if err != nil {
		return chatmodel.ToolResult{}, &ToolCallError{CallID: call.ID, Name: call.Name, Kind: ToolCallErrorInvalidArguments, Err: err}
	}

	result, err := conn.Call(ctx, call.ID, bareName, args)
	if err != nil {
		return chatmodel.ToolResult{}, err
	}
	result.Name = call.Name
	return result, nil
}

// Shutdown closes every tool-server connection, collecting but not
// stopping on individual errors — a failure to cleanly shut down one
// server must not leave the others running.
func (r *Registry) Shutdown(ctx context.Context) error {
	var errs []string
	for id, c := range r.conns {
		if err := c.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", id, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("tool-server shutdown errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

func namespacedName(serverID, toolName string) string {
	return serverID + "." + toolName
}

func splitNamespacedName(namespaced string) (serverID, toolName string, ok bool) {
	idx := strings.Index(namespaced, ".")
	if idx <= 0 || idx == len(namespaced)-1 {
		return "", "", false
	}
	return namespaced[:idx], namespaced[idx+1:], true
}
