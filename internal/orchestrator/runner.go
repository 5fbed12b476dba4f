package orchestrator

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aristath/pbvs/internal/activity"
	"github.com/aristath/pbvs/internal/events"
	"github.com/aristath/pbvs/internal/scheduler"
)

// runBuild executes eligible tasks in topological order until none remain.
// The pause flag is checked before every wave. With Concurrency > 1 a wave
// holds up to that many independent tasks, and tasks sharing an agent role
// never run at the same time.
func (o *Orchestrator) runBuild(ctx context.Context) error {
	for {
		if err := o.control.WaitWhilePaused(ctx); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		o.mu.RLock()
		dag := o.dag
		epoch := o.state.Epoch
		o.mu.RUnlock()

		eligible := dag.Eligible()
		if len(eligible) == 0 {
			if dag.Pending() {
				return errors.New("build stalled: pending tasks wait on dependencies that will never complete")
			}
			return nil
		}
		if len(eligible) > o.cfg.Concurrency {
			eligible = eligible[:o.cfg.Concurrency]
		}

		if len(eligible) == 1 {
			if err := o.runTask(ctx, eligible[0], epoch); err != nil {
				return err
			}
			continue
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(o.cfg.Concurrency)
		for _, task := range eligible {
			g.Go(func() error {
				o.roleLocks.Lock(task.AgentRole)
				defer o.roleLocks.Unlock(task.AgentRole)
				return o.runTask(gctx, task, epoch)
			})
		}
		// Only context errors come back; task failures are recorded in state
		if err := g.Wait(); err != nil {
			return err
		}
	}
}

// runTask executes one task and records its outcome. A task interrupted by
// ctx stays in_progress so a resumed run picks it up again.
func (o *Orchestrator) runTask(ctx context.Context, task *scheduler.Task, epoch int) error {
	o.mutate(func(*ProjectState) {
		if err := o.dag.MarkRunning(task.ID); err != nil {
			o.logger.Error("mark task running", "project_id", o.projectID, "task_id", task.ID, "error", err)
		}
	})

	start := o.now()
	out, attempts, err := o.executeWithRetry(ctx, task, epoch)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	o.record(ctx, task, out, attempts, o.now().Sub(start), err)
	return nil
}

// taskStatusFor maps a worker output to the task lifecycle. An output asking
// for approval ends blocked whatever its status: there is no per-task
// approval gate.
func taskStatusFor(out *activity.TaskOutput) scheduler.TaskStatus {
	if out.ApprovalNeeded {
		return scheduler.TaskBlocked
	}
	switch out.Status {
	case activity.OutputComplete:
		return scheduler.TaskCompleted
	case activity.OutputBlocked, activity.OutputNeedsApproval:
		return scheduler.TaskBlocked
	default:
		return scheduler.TaskFailed
	}
}

func outcomeReason(out *activity.TaskOutput, err error) string {
	switch {
	case err != nil:
		return err.Error()
	case out.ApprovalNeeded || out.Status == activity.OutputNeedsApproval:
		if out.ApprovalReason == "" {
			return "approval needed"
		}
		return "approval needed: " + out.ApprovalReason
	case out.Error != nil && out.Error.Message != "":
		return out.Error.Message
	case len(out.Blockers) > 0:
		return strings.Join(out.Blockers, "; ")
	}
	return "worker reported " + string(out.Status)
}

// record stores a task outcome. A task that did not complete blocks every
// pending task that depends on it.
func (o *Orchestrator) record(ctx context.Context, task *scheduler.Task, out *activity.TaskOutput, attempts int, dur time.Duration, err error) {
	if err != nil {
		o.logger.Error("task failed",
			"project_id", o.projectID,
			"task_id", task.ID,
			"attempts", attempts,
			"error", err)
		out = activity.FailedOutput(task.ID, string(task.AgentRole), err, o.now())
	}

	status := taskStatusFor(out)
	reason := ""
	if status != scheduler.TaskCompleted {
		reason = outcomeReason(out, err)
	}

	var (
		dependents    []string
		checkpointDue bool
		progress      Progress
	)
	o.mutate(func(s *ProjectState) {
		s.BuildResults = append(s.BuildResults, BuildResult{
			TaskID:      task.ID,
			Output:      out,
			Attempts:    attempts,
			CompletedAt: o.now(),
			Duration:    dur,
		})
		s.NextTaskIndex++

		switch status {
		case scheduler.TaskCompleted:
			_ = o.dag.MarkCompleted(task.ID)
			s.CompletedTasks = append(s.CompletedTasks, task.ID)
			s.CompletedTasksCount++
		case scheduler.TaskBlocked:
			_ = o.dag.MarkBlocked(task.ID, reason)
			s.BlockedTasks = append(s.BlockedTasks, task.ID)
		default:
			_ = o.dag.MarkFailed(task.ID, reason)
			s.FailedTasks = append(s.FailedTasks, task.ID)
		}

		if status != scheduler.TaskCompleted {
			dependents = o.dag.BlockDependents(task.ID)
			s.BlockedTasks = append(s.BlockedTasks, dependents...)
			s.NextTaskIndex += len(dependents)
		}

		o.sinceCheckpoint++
		if o.sinceCheckpoint >= o.cfg.CheckpointEvery {
			o.sinceCheckpoint = 0
			checkpointDue = true
		}
	})
	o.mu.RLock()
	progress = o.state.progress()
	o.mu.RUnlock()

	o.metrics.tasks.WithLabelValues(string(status)).Inc()
	o.metrics.taskDuration.Observe(dur.Seconds())

	now := o.now()
	switch status {
	case scheduler.TaskCompleted:
		o.logger.Info("task completed", "project_id", o.projectID, "task_id", task.ID, "attempts", attempts)
		if out.RollbackRequired {
			o.logger.Warn("completed task asks for rollback", "project_id", o.projectID, "task_id", task.ID)
		}
		o.bus.Publish(events.TaskCompletedEvent{
			Project:   o.projectID,
			ID:        task.ID,
			Summary:   out.Summary,
			Attempts:  attempts,
			Duration:  dur,
			Timestamp: now,
		})
	case scheduler.TaskBlocked:
		o.logger.Warn("task blocked", "project_id", o.projectID, "task_id", task.ID, "reason", reason)
		o.bus.Publish(events.TaskBlockedEvent{Project: o.projectID, ID: task.ID, Reason: reason, Timestamp: now})
	default:
		o.bus.Publish(events.TaskFailedEvent{
			Project:   o.projectID,
			ID:        task.ID,
			Reason:    reason,
			Attempts:  attempts,
			Duration:  dur,
			Timestamp: now,
		})
	}
	for _, id := range dependents {
		o.metrics.tasks.WithLabelValues(string(scheduler.TaskBlocked)).Inc()
		o.bus.Publish(events.TaskBlockedEvent{
			Project:   o.projectID,
			ID:        id,
			Reason:    "dependency " + task.Name + " did not complete",
			Timestamp: now,
		})
	}
	o.bus.Publish(events.ProgressEvent{
		Project:    o.projectID,
		Total:      progress.Total,
		Completed:  progress.Completed,
		Failed:     progress.Failed,
		Blocked:    progress.Blocked,
		InProgress: progress.InProgress,
		Timestamp:  now,
	})

	if status == scheduler.TaskFailed {
		o.notify(ctx, "Task failed: "+task.Name+"\nError: "+reason)
	}
	if checkpointDue {
		o.checkpoint(ctx)
	}
}
