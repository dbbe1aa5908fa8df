package toolserver

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/volition-run/volition/chatmodel"
)

// Connection drives one tool-server child process through the C2
// lifecycle (spec.md §4.2): spawn, handshake, ready, call, shutdown.
// Grounded on an mcp/process.go createLocalClient pattern, stripped
// of the remote-transport and OAuth paths not needed here —
// mcp_servers entries are always local stdio subprocesses.
type Connection struct {
	id     string
	config ServerConfig
	logger *zap.Logger

	mu    sync.Mutex
	state State
	cmd   *exec.Cmd
	raw   *client.Client
	tools []mcp.Tool
}

// NewConnection constructs a disconnected Connection. Call Start to spawn
// and handshake with the child process.
func NewConnection(cfg ServerConfig, logger *zap.Logger) *Connection {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Connection{
		id:     cfg.ID,
		config: cfg,
		logger: logger.With(zap.String("tool_server", cfg.ID)),
		state:  StateDisconnected,
	}
}

func (c *Connection) ID() string { return c.id }

func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start spawns the child process and runs the MCP initialize/list_tools
// handshake. On success the connection transitions to StateReady; on
// any failure it transitions to StateFailed and the error is returned.
func (c *Connection) Start(ctx context.Context) error {
	c.mu.Lock()
	c.state = StateInitializing
	c.mu.Unlock()

	env := os.Environ()
	for k, v := range c.config.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}

	var capturedCmd *exec.Cmd
	cmdFunc := func(ctx context.Context, command string, env []string, args []string) (*exec.Cmd, error) {
		cmd := exec.CommandContext(ctx, command, args...)
		cmd.Env = env
		capturedCmd = cmd
		return cmd, nil
	}

	raw, err := client.NewStdioMCPClientWithOptions(
		c.config.Command,
		env,
		c.config.Args,
		transport.WithCommandFunc(cmdFunc),
	)
	if err != nil {
		c.fail()
		return &ToolServerError{ServerID: c.id, Kind: ToolServerErrorSpawn, Err: err}
	}

	initReq := mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: "2025-06-18",
			Capabilities:    mcp.ClientCapabilities{},
			ClientInfo: mcp.Implementation{
				Name:    "volition",
				Version: "0.1.0",
			},
		},
	}
	if _, err := raw.Initialize(ctx, initReq); err != nil {
		c.fail()
		return &ToolServerError{ServerID: c.id, Kind: ToolServerErrorHandshake, Err: err}
	}

	listed, err := raw.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		c.fail()
		return &ToolServerError{ServerID: c.id, Kind: ToolServerErrorHandshake, Err: err}
	}

	c.mu.Lock()
	c.cmd = capturedCmd
	c.raw = raw
	c.tools = listed.Tools
	c.state = StateReady
	c.mu.Unlock()

	if capturedCmd != nil && capturedCmd.Process != nil {
		c.logger.Info("tool server ready", zap.Int("pid", capturedCmd.Process.Pid), zap.Int("tool_count", len(listed.Tools)))
	}

	return nil
}

func (c *Connection) fail() {
	c.mu.Lock()
	c.state = StateFailed
	c.mu.Unlock()
}

// Tools returns the tool-server's declared tools mapped into uniform
// ToolDefinitions (C3), keyed by their bare (non-namespaced) name.
func (c *Connection) Tools() (map[string]chatmodel.ToolDefinition, error) {
	c.mu.Lock()
	tools := c.tools
	state := c.state
	c.mu.Unlock()

	if state != StateReady {
		return nil, &ToolServerError{ServerID: c.id, Kind: ToolServerErrorUnavailable, Err: fmt.Errorf("server is %s, not ready", state)}
	}

	out := make(map[string]chatmodel.ToolDefinition, len(tools))
	for _, t := range tools {
		def, err := mapSchema(t)
		if err != nil {
			return nil, &ToolServerError{ServerID: c.id, Kind: ToolServerErrorProtocol, Err: err}
		}
		out[t.Name] = def
	}
	return out, nil
}

// Call invokes one bare (non-namespaced) tool name with decoded
// arguments, enforcing DefaultCallTimeout on the RPC.
func (c *Connection) Call(ctx context.Context, callID, name string, args map[string]any) (chatmodel.ToolResult, error) {
	c.mu.Lock()
	raw := c.raw
	state := c.state
	c.mu.Unlock()

	if state != StateReady {
		return chatmodel.ToolResult{}, &ToolServerError{ServerID: c.id, Kind: ToolServerErrorUnavailable, Err: fmt.Errorf("server is %s, not ready", state)}
	}

	callCtx, cancel := context.WithTimeout(ctx, DefaultCallTimeout)
	defer cancel()

	res, err := raw.CallTool(callCtx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: name, Arguments: args},
	})
	if err != nil {
		c.detectExit(err)
		return chatmodel.ToolResult{}, &ToolCallError{CallID: callID, Name: name, Kind: ToolCallErrorServerFailure, Err: err}
	}

	payload, isError := renderToolCallResult(res)
	status := chatmodel.ToolResultSuccess
	if isError {
		status = chatmodel.ToolResultFailure
	}

	return chatmodel.ToolResult{
		CallID:  callID,
		Name:    name,
		Status:  status,
		Payload: payload,
	}, nil
}

// detectExit marks the server Failed if the underlying child process has
// already exited — a CallTool RPC error after exit is a
// ServerUnavailable condition, not a recoverable tool-call failure.
func (c *Connection) detectExit(callErr error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cmd != nil && c.cmd.ProcessState != nil {
		c.state = StateFailed
	}
}

// renderToolCallResult flattens an MCP CallToolResult's content blocks
// into a single string payload for the uniform ToolResult, the same
// text/json collapsing a UI layer does for tool output.
func renderToolCallResult(res *mcp.CallToolResult) (string, bool) {
	if res == nil {
		return "", true
	}

	var out string
	for _, block := range res.Content {
		switch v := block.(type) {
		case mcp.TextContent:
			out += v.Text
		default:
			if b, err := json.Marshal(v); err == nil {
				out += string(b)
			}
		}
	}
	return out, res.IsError
}

// Shutdown closes the MCP client and, if it does not close within
// DefaultShutdownTimeout, forcefully kills the child process. Grounded
// on an mcp/process.go StopPlugin close-then-kill race.
func (c *Connection) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	raw := c.raw
	cmd := c.cmd
	c.state = StateDisconnected
	c.mu.Unlock()

	if raw == nil {
		return nil
	}

	closeCtx, cancel := context.WithTimeout(ctx, DefaultShutdownTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- raw.Close() }()

	select {
	case <-done:
		return nil
	case <-closeCtx.Done():
		if cmd != nil && cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		return nil
	}
}
