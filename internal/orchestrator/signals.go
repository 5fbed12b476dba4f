package orchestrator

import (
	"fmt"
	"strings"

	"github.com/aristath/pbvs/internal/events"
)

// Signal names accepted by Orchestrator.Signal.
const (
	SignalPause       = "pause"
	SignalResume      = "resume"
	SignalApprove     = "approve"
	SignalApproveTask = "approveTask"
	SignalCancel      = "cancel"
)

// Query names accepted by Orchestrator.Query.
const (
	QueryState    = "getState"
	QueryProgress = "getProgress"
)

// Signal delivers a named signal. Handlers only set control flags; the
// control loop acts on them at its next wait point.
func (o *Orchestrator) Signal(name, payload string) error {
	switch name {
	case SignalPause:
		o.control.Pause()
	case SignalResume:
		o.control.Resume()
	case SignalApprove, SignalApproveTask:
		target, err := o.approvalTarget(payload)
		if err != nil {
			return err
		}
		o.control.Approve(target)
		payload = target
	case SignalCancel:
		o.control.Cancel()
	default:
		return fmt.Errorf("unknown signal %q", name)
	}

	o.logger.Info("signal received", "project_id", o.projectID, "signal", name, "payload", payload)
	o.bus.Publish(events.ControlEvent{
		Project:   o.projectID,
		Signal:    name,
		Payload:   payload,
		Timestamp: o.now(),
	})
	return nil
}

// approvalTarget resolves an approve payload. An empty payload approves
// whichever gate the workflow is waiting at.
func (o *Orchestrator) approvalTarget(payload string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(payload)) {
	case ApproveProduction, "prod":
		return ApproveProduction, nil
	case ApproveValidation, "review":
		return ApproveValidation, nil
	case "":
		o.mu.RLock()
		var gate Gate
		if o.state != nil {
			gate = o.state.Gate
		}
		o.mu.RUnlock()
		switch gate {
		case GateProductionApproval:
			return ApproveProduction, nil
		case GateValidationReview:
			return ApproveValidation, nil
		}
		return "", fmt.Errorf("no gate is waiting, name a target (%s or %s)", ApproveValidation, ApproveProduction)
	}
	return "", fmt.Errorf("unknown approval target %q: only %s and %s gates can be approved", payload, ApproveValidation, ApproveProduction)
}

// State returns a deep copy of the workflow state, or nil before Run.
func (o *Orchestrator) State() *ProjectState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.state == nil {
		return nil
	}
	s := o.state.clone()
	s.Paused = o.control.Paused()
	return s
}

// Progress returns the task counters.
func (o *Orchestrator) Progress() Progress {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.state == nil {
		return Progress{}
	}
	p := o.state.progress()
	p.Paused = o.control.Paused()
	return p
}

// Result returns the final report once the workflow has finished.
func (o *Orchestrator) Result() (*Result, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.result, o.result != nil
}

// Query answers a named query with a JSON-serializable value.
func (o *Orchestrator) Query(name string) (any, error) {
	switch name {
	case QueryState:
		return o.State(), nil
	case QueryProgress:
		return o.Progress(), nil
	}
	return nil, fmt.Errorf("unknown query %q", name)
}
