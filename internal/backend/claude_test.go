package backend

import (
	"regexp"
	"strings"
	"testing"
)

var uuidV4 = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

// TestNewClaudeAdapter_SessionID verifies generated and provided session IDs.
func TestNewClaudeAdapter_SessionID(t *testing.T) {
	adapter, err := NewClaudeAdapter(Config{Type: "claude"}, nil)
	if err != nil {
		t.Fatalf("NewClaudeAdapter failed: %v", err)
	}
	if !uuidV4.MatchString(adapter.SessionID()) {
		t.Errorf("Session ID does not match UUID v4 format: %s", adapter.SessionID())
	}

	adapter, err = NewClaudeAdapter(Config{Type: "claude", SessionID: "architect-1"}, nil)
	if err != nil {
		t.Fatalf("NewClaudeAdapter failed: %v", err)
	}
	if adapter.SessionID() != "architect-1" {
		t.Errorf("Expected session ID architect-1, got %s", adapter.SessionID())
	}
}

// TestClaudeAdapter_BuildArgs verifies the CLI arguments for first and resumed calls.
func TestClaudeAdapter_BuildArgs(t *testing.T) {
	tests := []struct {
		name   string
		cfg    Config
		resume bool
		want   []string
	}{
		{
			name: "first message",
			cfg:  Config{SessionID: "s1"},
			want: []string{"-p", "Build the API", "--output-format", "json", "--session-id", "s1"},
		},
		{
			name:   "resume",
			cfg:    Config{SessionID: "s1"},
			resume: true,
			want:   []string{"-p", "Build the API", "--output-format", "json", "--resume", "s1"},
		},
		{
			name: "model and system prompt",
			cfg:  Config{SessionID: "s1", Model: "opus", SystemPrompt: "You are the backend specialist"},
			want: []string{"-p", "Build the API", "--output-format", "json", "--session-id", "s1",
				"--model", "opus", "--system-prompt", "You are the backend specialist"},
		},
		{
			name: "provider args last",
			cfg:  Config{SessionID: "s1", Args: []string{"--permission-mode", "acceptEdits"}},
			want: []string{"-p", "Build the API", "--output-format", "json", "--session-id", "s1",
				"--permission-mode", "acceptEdits"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.Type = "claude"
			adapter, err := NewClaudeAdapter(tt.cfg, nil)
			if err != nil {
				t.Fatalf("NewClaudeAdapter failed: %v", err)
			}

			args := adapter.buildArgs(Message{Content: "Build the API"}, tt.resume)
			if strings.Join(args, "|") != strings.Join(tt.want, "|") {
				t.Errorf("Expected args %v, got %v", tt.want, args)
			}
		})
	}
}

// TestNewClaudeAdapter_Command verifies the executable defaults to claude.
func TestNewClaudeAdapter_Command(t *testing.T) {
	adapter, err := NewClaudeAdapter(Config{Type: "claude"}, nil)
	if err != nil {
		t.Fatalf("NewClaudeAdapter failed: %v", err)
	}
	if adapter.command != "claude" {
		t.Errorf("Expected command claude, got %q", adapter.command)
	}

	adapter, err = NewClaudeAdapter(Config{Type: "claude", Command: "/opt/bin/claude"}, nil)
	if err != nil {
		t.Fatalf("NewClaudeAdapter failed: %v", err)
	}
	if adapter.command != "/opt/bin/claude" {
		t.Errorf("Expected configured command, got %q", adapter.command)
	}
}

// TestParseClaudeResponse verifies content extraction from the CLI envelope.
func TestParseClaudeResponse(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantContent string
		wantSession string
		wantError   bool
	}{
		{
			name:        "string result",
			input:       `{"type":"result","session_id":"abc","result":"{\"status\":\"complete\"}"}`,
			wantContent: `{"status":"complete"}`,
			wantSession: "abc",
		},
		{
			name:        "content blocks",
			input:       `{"session_id": "def", "result": {"content": [{"type": "text", "text": "Part 1"}, {"type": "image", "data": "..."}, {"type": "text", "text": "Part 2"}]}}`,
			wantContent: "Part 1Part 2",
			wantSession: "def",
		},
		{
			name:        "empty content array",
			input:       `{"session_id": "ghi", "result": {"content": []}}`,
			wantSession: "ghi",
		},
		{
			name:  "unexpected structure",
			input: `{"wrong": "structure"}`,
		},
		{
			name:      "error envelope",
			input:     `{"is_error": true, "result": "rate limit exceeded"}`,
			wantError: true,
		},
		{
			name:      "invalid JSON",
			input:     `not valid json`,
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := parseClaudeResponse([]byte(tt.input))
			if tt.wantError {
				if err == nil {
					t.Error("Expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if resp.Content != tt.wantContent {
				t.Errorf("Expected content %q, got %q", tt.wantContent, resp.Content)
			}
			if resp.SessionID != tt.wantSession {
				t.Errorf("Expected session ID %q, got %q", tt.wantSession, resp.SessionID)
			}
		})
	}
}

func TestClaudeAdapter_Close(t *testing.T) {
	adapter, err := NewClaudeAdapter(Config{Type: "claude", SessionID: "s"}, nil)
	if err != nil {
		t.Fatalf("NewClaudeAdapter failed: %v", err)
	}
	if err := adapter.Close(); err != nil {
		t.Errorf("Close() should return nil, got: %v", err)
	}
}
