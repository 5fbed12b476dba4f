package activity

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/pbvs/internal/retry"
)

const validOutput = `{
  "task_id": "t-1",
  "agent": "backend",
  "status": "complete",
  "files_changed": ["api/users.go"],
  "tests": {"added": ["TestUsers"], "passed": true, "coverage": 82.5},
  "rollback_required": false,
  "approval_needed": false,
  "summary": "added the users endpoint",
  "learnings": ["keep handlers thin"],
  "completed_at": "2026-01-02T03:04:05Z"
}`

func violationFields(t *testing.T, err error) []string {
	t.Helper()
	var vf *ValidationFailure
	require.True(t, errors.As(err, &vf), "expected *ValidationFailure, got %v", err)
	fields := make([]string, len(vf.Violations))
	for i, v := range vf.Violations {
		fields[i] = v.Field
	}
	return fields
}

func TestDecodeTaskOutput_Valid(t *testing.T) {
	out, err := DecodeTaskOutput(validOutput, "t-1")
	require.NoError(t, err)

	assert.Equal(t, OutputComplete, out.Status)
	assert.Equal(t, []string{"api/users.go"}, out.FilesChanged)
	require.NotNil(t, out.Tests)
	assert.InDelta(t, 82.5, out.Tests.Coverage, 0.001)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), out.CompletedAt.UTC())
}

func TestDecodeTaskOutput_FencedWithProse(t *testing.T) {
	raw := "Done! Here is the report:\n```json\n" + validOutput + "\n```\nLet me know."
	out, err := DecodeTaskOutput(raw, "t-1")
	require.NoError(t, err)
	assert.Equal(t, "added the users endpoint", out.Summary)
}

func TestDecodeTaskOutput_NoJSON(t *testing.T) {
	_, err := DecodeTaskOutput("I could not finish the task.", "t-1")
	assert.Equal(t, []string{""}, violationFields(t, err))
	assert.Equal(t, retry.CategoryValidation, retry.Classify(err))
}

func TestDecodeTaskOutput_ReportsEveryViolation(t *testing.T) {
	raw := `{
	  "task_id": "other",
	  "agent": "wizard",
	  "status": "done",
	  "files_changed": "main.go",
	  "tests": {"coverage": 140},
	  "error": {"kind": "x", "message": "y", "severity": "apocalyptic"},
	  "approval_needed": "no"
	}`
	_, err := DecodeTaskOutput(raw, "t-1")

	assert.ElementsMatch(t, []string{
		"task_id",
		"agent",
		"status",
		"files_changed",
		"rollback_required",
		"approval_needed",
		"summary",
		"tests.coverage",
		"error.severity",
	}, violationFields(t, err))
}

func TestDecodeTaskOutput_ArrayItemsMustBeStrings(t *testing.T) {
	raw := `{"task_id":"t-1","agent":"qa-tester","status":"complete","files_changed":["a.go", 3],
	  "rollback_required":false,"approval_needed":false,"summary":"ok"}`
	_, err := DecodeTaskOutput(raw, "t-1")
	assert.Equal(t, []string{"files_changed.1"}, violationFields(t, err))
}

func TestDecodeTaskOutput_EmptyTaskIDSkipsMatch(t *testing.T) {
	out, err := DecodeTaskOutput(validOutput, "")
	require.NoError(t, err)
	assert.Equal(t, "t-1", out.TaskID)
}

func TestFailedOutput(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	cause := NewAgentInvocationError("t-1", 3, &TransientFailure{Reason: "503", Kind: retry.CategoryUnavailable})

	out := FailedOutput("t-1", "backend", cause, now)

	assert.Equal(t, OutputFailed, out.Status)
	assert.True(t, out.RollbackRequired)
	require.NotNil(t, out.Error)
	assert.Equal(t, string(KindAPI), out.Error.Kind)
	assert.Equal(t, SeverityHigh, out.Error.Severity)
	assert.Equal(t, now, out.CompletedAt)
	assert.NotNil(t, out.FilesChanged)
}

func TestAgentInvocationErrorKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want InvocationKind
	}{
		{"validation", &ValidationFailure{}, KindValidation},
		{"timeout", &TransientFailure{Kind: retry.CategoryTimeout}, KindTimeout},
		{"rate limit", &TransientFailure{Kind: retry.CategoryRateLimit}, KindAPI},
		{"unknown role", &FatalFailure{Kind: retry.CategoryUnknownRole}, KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			aie := NewAgentInvocationError("t", 1, tt.err)
			assert.Equal(t, tt.want, aie.Kind)
			assert.ErrorIs(t, aie, tt.err)
		})
	}
}
