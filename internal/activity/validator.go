package activity

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"github.com/aristath/pbvs/internal/backend"
)

// GateCommand is one check inside a validation level.
type GateCommand struct {
	Name    string
	Command string
	Args    []string
}

type runFunc func(ctx context.Context, pm *backend.ProcessManager, dir, name string, args ...string) ([]byte, []byte, error)

// CommandValidator runs the configured commands of each gate level. Levels
// are evaluated concurrently and independently; commands inside a level run
// in order.
//
// A level with no commands passes, except the business level, which needs an
// explicit command or AutoApproveBusiness and otherwise asks for manual review.
type CommandValidator struct {
	Gates               map[GateLevel][]GateCommand
	Dir                 string
	AutoApproveBusiness bool

	pm     *backend.ProcessManager
	logger *slog.Logger
	run    runFunc
	now    func() time.Time
}

func NewCommandValidator(gates map[GateLevel][]GateCommand, dir string, pm *backend.ProcessManager, logger *slog.Logger) *CommandValidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandValidator{
		Gates:  gates,
		Dir:    dir,
		pm:     pm,
		logger: logger,
		run:    backend.Run,
		now:    time.Now,
	}
}

func (v *CommandValidator) ValidateBuild(ctx context.Context, projectID string) (*ValidationResult, error) {
	levels := GateLevels()
	results := make([]GateResult, len(levels))

	wg := conc.NewWaitGroup()
	for i, level := range levels {
		wg.Go(func() {
			results[i] = v.safeLevel(ctx, level)
		})
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &ValidationResult{
		Automated:   results[0],
		Integration: results[1],
		Business:    results[2],
		ValidatedAt: v.now(),
	}
	res.OverallPassed = res.Automated.Passed && res.Integration.Passed && res.Business.Passed

	v.logger.Info("build validated",
		"project_id", projectID,
		"automated", res.Automated.Passed,
		"integration", res.Integration.Passed,
		"business", res.Business.Passed)
	return res, nil
}

// safeLevel turns a panicking level into a failed gate.
func (v *CommandValidator) safeLevel(ctx context.Context, level GateLevel) GateResult {
	var (
		catcher panics.Catcher
		res     GateResult
	)
	catcher.Try(func() {
		res = v.runLevel(ctx, level)
	})
	if r := catcher.Recovered(); r != nil {
		v.logger.Error("gate panicked", "level", level, "panic", r.Value)
		return GateResult{Level: level, Error: fmt.Sprintf("gate panicked: %v", r.Value)}
	}
	return res
}

func (v *CommandValidator) runLevel(ctx context.Context, level GateLevel) GateResult {
	cmds := v.Gates[level]
	if len(cmds) == 0 {
		if level == GateBusiness && !v.AutoApproveBusiness {
			return GateResult{
				Level: level,
				Checks: []Check{{
					Name:   "stakeholder_approval",
					Output: "no business gate configured, manual review required",
				}},
			}
		}
		return GateResult{Level: level, Passed: true}
	}

	res := GateResult{Level: level, Passed: true}
	for _, c := range cmds {
		if ctx.Err() != nil {
			res.Passed = false
			res.Error = ctx.Err().Error()
			break
		}
		start := v.now()
		stdout, stderr, err := v.run(ctx, v.pm, v.Dir, c.Command, c.Args...)
		check := Check{
			Name:     c.Name,
			Passed:   err == nil,
			Output:   tail(string(stdout)+string(stderr), 2048),
			Duration: v.now().Sub(start),
		}
		if err != nil {
			res.Passed = false
			if check.Output == "" {
				check.Output = err.Error()
			}
		}
		res.Checks = append(res.Checks, check)
	}
	return res
}

// tail keeps the last n bytes of s.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
