package backend

// Message represents an instruction sent to a worker.
type Message struct {
	Content string
	Role    string // "user" or "system"
}

// Response represents a worker's reply.
type Response struct {
	Content   string
	SessionID string
	Error     string
}

// Config defines how to reach a worker.
type Config struct {
	Type         string // "claude" or "command"
	WorkDir      string
	SessionID    string
	Model        string
	SystemPrompt string
	Command      string   // Executable for the command backend
	Args         []string // Arguments for the command backend
	Env          []string // Extra KEY=VALUE pairs for the subprocess
}
