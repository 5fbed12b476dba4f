package backend

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// ClaudeAdapter implements the Backend interface for the Claude Code CLI.
type ClaudeAdapter struct {
	sessionID    string
	workDir      string
	command      string
	extraArgs    []string
	env          []string
	model        string
	systemPrompt string
	started      bool
	procMgr      *ProcessManager
}

// NewClaudeAdapter creates a new Claude Code backend adapter.
// If cfg.SessionID is empty, a random UUID is used; cfg.Command defaults to
// "claude". The ProcessManager is optional - if nil, subprocesses won't be
// tracked.
func NewClaudeAdapter(cfg Config, procMgr *ProcessManager) (*ClaudeAdapter, error) {
	sessionID := cfg.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	workDir := cfg.WorkDir
	if workDir == "" {
		var err error
		workDir, err = os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
	}

	command := cfg.Command
	if command == "" {
		command = "claude"
	}

	return &ClaudeAdapter{
		sessionID:    sessionID,
		workDir:      workDir,
		command:      command,
		extraArgs:    append([]string(nil), cfg.Args...),
		env:          append([]string(nil), cfg.Env...),
		model:        cfg.Model,
		systemPrompt: cfg.SystemPrompt,
		procMgr:      procMgr,
	}, nil
}

// Send sends a message to the Claude Code CLI and returns the response.
// The first call uses --session-id, subsequent calls use --resume.
func (a *ClaudeAdapter) Send(ctx context.Context, msg Message) (Response, error) {
	args := a.buildArgs(msg, a.started)

	cmd := newCommand(ctx, a.command, args...)
	cmd.Dir = a.workDir
	if len(a.env) > 0 {
		cmd.Env = append(os.Environ(), a.env...)
	}

	stdout, stderr, err := executeCommand(ctx, cmd, a.procMgr)
	if err != nil {
		return Response{
			Error: fmt.Sprintf("%s command failed: %v", a.command, err),
		}, err
	}

	resp, err := parseClaudeResponse(stdout)
	if err != nil {
		return Response{
			Error: fmt.Sprintf("failed to parse claude response: %v (stderr: %s)", err, string(stderr)),
		}, err
	}

	a.started = true
	return resp, nil
}

// Close is a no-op for Claude Code (subprocess-per-invocation model).
func (a *ClaudeAdapter) Close() error {
	return nil
}

// SessionID returns the current session identifier.
func (a *ClaudeAdapter) SessionID() string {
	return a.sessionID
}

// buildArgs constructs the command-line arguments for the claude CLI.
// isResume determines whether to use --session-id (false) or --resume (true).
func (a *ClaudeAdapter) buildArgs(msg Message, isResume bool) []string {
	args := []string{"-p", msg.Content, "--output-format", "json"}

	if isResume {
		args = append(args, "--resume", a.sessionID)
	} else {
		args = append(args, "--session-id", a.sessionID)
	}

	if a.model != "" {
		args = append(args, "--model", a.model)
	}

	if a.systemPrompt != "" {
		args = append(args, "--system-prompt", a.systemPrompt)
	}

	return append(args, a.extraArgs...)
}

// parseClaudeResponse extracts the reply text from the CLI's JSON envelope.
// The result is either a plain string or a list of typed content blocks, of
// which only text blocks are kept. An error envelope is returned as an error.
func parseClaudeResponse(data []byte) (Response, error) {
	if !gjson.ValidBytes(data) {
		return Response{}, fmt.Errorf("failed to unmarshal JSON: invalid JSON")
	}

	root := gjson.ParseBytes(data)
	resp := Response{SessionID: root.Get("session_id").String()}

	if root.Get("is_error").Bool() {
		msg := root.Get("result").String()
		if msg == "" {
			msg = "unknown error"
		}
		resp.Error = msg
		return resp, fmt.Errorf("claude reported an error: %s", msg)
	}

	result := root.Get("result")
	if result.Type == gjson.String {
		resp.Content = result.String()
		return resp, nil
	}

	var content strings.Builder
	result.Get("content").ForEach(func(_, item gjson.Result) bool {
		if item.Get("type").String() == "text" {
			content.WriteString(item.Get("text").String())
		}
		return true
	})
	resp.Content = content.String()
	return resp, nil
}
