package activity

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/aristath/pbvs/internal/retry"
	"github.com/aristath/pbvs/internal/scheduler"
)

// TaskOutputSchema describes the JSON object a worker must reply with. It is
// embedded in every task instruction.
const TaskOutputSchema = `{
  "task_id": "string, required, the id of the task you were given",
  "agent": "string, required, one of architect|backend|frontend|qa-tester|devops|security",
  "status": "string, required, one of complete|blocked|failed|needs_approval",
  "files_changed": ["string, required array (may be empty)"],
  "files_created": ["string"],
  "files_deleted": ["string"],
  "tests": {"added": ["string"], "passed": true, "coverage": "number 0..100"},
  "error": {"kind": "string", "message": "string", "severity": "low|medium|high|critical"},
  "rollback_required": "boolean, required",
  "approval_needed": "boolean, required",
  "approval_reason": "string",
  "blockers": ["string"],
  "summary": "string, required",
  "notes": ["string"],
  "learnings": ["string"],
  "completed_at": "RFC 3339 timestamp"
}`

var outputStatuses = []OutputStatus{OutputComplete, OutputBlocked, OutputFailed, OutputNeedsApproval}

var severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

// DecodeTaskOutput extracts the JSON object from a worker reply and checks it
// against TaskOutputSchema. Every problem found is reported in one
// *ValidationFailure so the correction prompt can list them all.
func DecodeTaskOutput(raw, taskID string) (*TaskOutput, error) {
	doc, ok := extractJSON(raw)
	if !ok || !gjson.Valid(doc) {
		return nil, &ValidationFailure{Violations: []retry.Violation{
			{Message: "response does not contain a JSON object"},
		}}
	}

	root := gjson.Parse(doc)
	if !root.IsObject() {
		return nil, &ValidationFailure{Violations: []retry.Violation{
			{Message: "expected a JSON object"},
		}}
	}

	c := &outputChecker{root: root}

	if id, ok := c.requireString("task_id"); ok && taskID != "" && id != taskID {
		c.add("task_id", fmt.Sprintf("must be %q", taskID))
	}
	if agent, ok := c.requireString("agent"); ok && !isWorkerRole(agent) {
		c.add("agent", fmt.Sprintf("unknown agent %q", agent))
	}
	if status, ok := c.requireString("status"); ok && !validStatus(OutputStatus(status)) {
		c.add("status", fmt.Sprintf("must be one of complete, blocked, failed, needs_approval, got %q", status))
	}
	c.requireStringArray("files_changed")
	c.optionalStringArray("files_created")
	c.optionalStringArray("files_deleted")
	c.optionalStringArray("blockers")
	c.optionalStringArray("notes")
	c.optionalStringArray("learnings")
	c.optionalStringArray("tests.added")
	c.requireBool("rollback_required")
	c.requireBool("approval_needed")
	c.requireString("summary")

	if passed := root.Get("tests.passed"); passed.Exists() && !isBool(passed) {
		c.add("tests.passed", "must be a boolean")
	}
	if cov := root.Get("tests.coverage"); cov.Exists() {
		switch {
		case cov.Type != gjson.Number:
			c.add("tests.coverage", "must be a number")
		case cov.Num < 0 || cov.Num > 100:
			c.add("tests.coverage", fmt.Sprintf("must be between 0 and 100, got %v", cov.Num))
		}
	}
	if sev := root.Get("error.severity"); sev.Exists() {
		if sev.Type != gjson.String || !validSeverity(Severity(sev.Str)) {
			c.add("error.severity", "must be one of low, medium, high, critical")
		}
	}
	if at := root.Get("completed_at"); at.Exists() && at.Type != gjson.Null {
		if _, err := time.Parse(time.RFC3339, at.String()); at.Type != gjson.String || err != nil {
			c.add("completed_at", "must be an RFC 3339 timestamp")
		}
	}

	if len(c.violations) > 0 {
		return nil, &ValidationFailure{Violations: c.violations}
	}

	var out TaskOutput
	if err := json.Unmarshal([]byte(doc), &out); err != nil {
		return nil, &ValidationFailure{Violations: []retry.Violation{{Message: err.Error()}}}
	}
	return &out, nil
}

// FailedOutput is the output recorded for a task whose attempts ran out.
func FailedOutput(taskID, agent string, err error, now time.Time) *TaskOutput {
	kind := string(KindUnknown)
	var aie *AgentInvocationError
	if errors.As(err, &aie) {
		kind = string(aie.Kind)
	}
	return &TaskOutput{
		TaskID:       taskID,
		Agent:        agent,
		Status:       OutputFailed,
		FilesChanged: []string{},
		Error: &ErrorDetail{
			Kind:     kind,
			Message:  err.Error(),
			Severity: SeverityHigh,
		},
		RollbackRequired: true,
		Summary:          "Task failed: " + err.Error(),
		CompletedAt:      now,
	}
}

type outputChecker struct {
	root       gjson.Result
	violations []retry.Violation
}

func (c *outputChecker) add(field, msg string) {
	c.violations = append(c.violations, retry.Violation{Field: field, Message: msg})
}

func (c *outputChecker) requireString(path string) (string, bool) {
	r := c.root.Get(path)
	switch {
	case !r.Exists():
		c.add(path, "is required")
		return "", false
	case r.Type != gjson.String:
		c.add(path, "must be a string")
		return "", false
	}
	return r.Str, true
}

func (c *outputChecker) requireBool(path string) {
	r := c.root.Get(path)
	switch {
	case !r.Exists():
		c.add(path, "is required")
	case !isBool(r):
		c.add(path, "must be a boolean")
	}
}

func (c *outputChecker) requireStringArray(path string) {
	if !c.root.Get(path).Exists() {
		c.add(path, "is required")
		return
	}
	c.optionalStringArray(path)
}

func (c *outputChecker) optionalStringArray(path string) {
	r := c.root.Get(path)
	if !r.Exists() || r.Type == gjson.Null {
		return
	}
	if !r.IsArray() {
		c.add(path, "must be an array")
		return
	}
	i := 0
	r.ForEach(func(_, item gjson.Result) bool {
		if item.Type != gjson.String {
			c.add(fmt.Sprintf("%s.%d", path, i), "must be a string")
		}
		i++
		return true
	})
}

func isBool(r gjson.Result) bool {
	return r.Type == gjson.True || r.Type == gjson.False
}

func isWorkerRole(name string) bool {
	for _, r := range scheduler.WorkerRoles() {
		if string(r) == name {
			return true
		}
	}
	return false
}

func validStatus(s OutputStatus) bool {
	for _, known := range outputStatuses {
		if s == known {
			return true
		}
	}
	return false
}

func validSeverity(s Severity) bool {
	for _, known := range severities {
		if s == known {
			return true
		}
	}
	return false
}

// extractJSON finds the JSON object in a reply that may wrap it in a fenced
// code block or surrounding prose.
func extractJSON(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 && !strings.Contains(rest[:nl], "{") {
			rest = rest[nl+1:]
		}
		if j := strings.Index(rest, "```"); j >= 0 {
			s = rest[:j]
		}
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return "", false
	}
	return s[start : end+1], true
}
