package backend

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
)

// CommandAdapter runs an arbitrary executable per message: the instruction
// goes to stdin and stdout is the reply. It fronts scripted tools and
// human-in-the-loop helpers that speak the worker contract.
type CommandAdapter struct {
	sessionID string
	workDir   string
	command   string
	args      []string
	env       []string
	procMgr   *ProcessManager
}

// NewCommandAdapter creates a CommandAdapter. cfg.Command is required.
func NewCommandAdapter(cfg Config, procMgr *ProcessManager) (*CommandAdapter, error) {
	if strings.TrimSpace(cfg.Command) == "" {
		return nil, fmt.Errorf("command backend requires a command")
	}

	sessionID := cfg.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	return &CommandAdapter{
		sessionID: sessionID,
		workDir:   cfg.WorkDir,
		command:   cfg.Command,
		args:      append([]string(nil), cfg.Args...),
		env:       append([]string(nil), cfg.Env...),
		procMgr:   procMgr,
	}, nil
}

// Send runs the command once with msg.Content on stdin.
func (a *CommandAdapter) Send(ctx context.Context, msg Message) (Response, error) {
	cmd := newCommand(ctx, a.command, a.args...)
	cmd.Dir = a.workDir
	cmd.Stdin = strings.NewReader(msg.Content)
	cmd.Env = append(os.Environ(), "PBVS_SESSION_ID="+a.sessionID)
	cmd.Env = append(cmd.Env, a.env...)

	stdout, _, err := executeCommand(ctx, cmd, a.procMgr)
	if err != nil {
		return Response{
			Error: fmt.Sprintf("%s failed: %v", a.command, err),
		}, err
	}

	return Response{
		Content:   string(stdout),
		SessionID: a.sessionID,
	}, nil
}

// Close is a no-op; each Send owns its subprocess.
func (a *CommandAdapter) Close() error {
	return nil
}

// SessionID returns the session identifier passed to the command as
// PBVS_SESSION_ID.
func (a *CommandAdapter) SessionID() string {
	return a.sessionID
}
