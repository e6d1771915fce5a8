// internal/executor/executor.go
// The executor walks a validated action plan against one browser session.
// Every action yields exactly one step record, in plan order; a failing step
// is recorded and the loop moves on. Only the caller's context ending stops
// the walk early.
package executor

import (
	"context"
	"encoding/base64"
	"fmt"

	"go.uber.org/zap"

	"webpilot/api/schemas"
	"webpilot/internal/config"
)

// screenshotPrefix is the data-URL prefix on the aggregate screenshot. Step
// screenshots stay raw base64.
const screenshotPrefix = "data:image/png;base64,"

// Executor dispatches plan actions to their handlers.
type Executor struct {
	cfg    config.ExecutorConfig
	logger *zap.Logger
}

// New creates an Executor with the given timing configuration.
func New(cfg config.ExecutorConfig, logger *zap.Logger) *Executor {
	return &Executor{
		cfg:    cfg,
		logger: logger.Named("executor"),
	}
}

// Run executes the plan sequentially and assembles the aggregate result.
// The caller owns the session; Run never closes it.
func (e *Executor) Run(ctx context.Context, sess schemas.SessionContext, plan *schemas.ActionPlan) *schemas.AutomationResult {
	steps := make([]schemas.StepResult, 0, len(plan.Actions))
	failures := 0

	for idx, action := range plan.Actions {
		if ctx.Err() != nil {
			e.logger.Warn("Plan execution aborted by context.",
				zap.Int("completed_steps", len(steps)),
				zap.Error(ctx.Err()),
			)
			break
		}

		e.logger.Info("Executing action.",
			zap.Int("step", idx+1),
			zap.String("type", string(action.Type)),
			zap.String("description", action.Describe()),
		)

		step := e.runStep(ctx, sess, action)
		steps = append(steps, step)

		if !step.Success {
			failures++
			e.logger.Warn("Action failed.",
				zap.Int("step", idx+1),
				zap.String("type", string(action.Type)),
				zap.String("error", step.Error),
			)
		}

		// Let the page settle before the next action.
		if err := sess.Sleep(ctx, e.cfg.SettleDelay); err != nil {
			break
		}
	}

	result := &schemas.AutomationResult{
		// Step failures stay in the trail and never escalate; only an
		// interrupted walk fails the aggregate.
		Success: len(steps) == len(plan.Actions),
		Steps:   steps,
	}
	switch {
	case len(steps) < len(plan.Actions):
		result.Message = fmt.Sprintf("Execution interrupted after %d of %d actions", len(steps), len(plan.Actions))
	case failures > 0:
		result.Message = fmt.Sprintf("Executed %d actions, %d failed", len(steps), failures)
	default:
		result.Message = fmt.Sprintf("Executed %d actions successfully", len(steps))
	}

	if shot, err := sess.FullScreenshot(ctx); err != nil {
		e.logger.Warn("Final screenshot capture failed.", zap.Error(err))
	} else {
		result.Screenshot = screenshotPrefix + base64.StdEncoding.EncodeToString(shot)
	}

	return result
}

// runStep executes one action and always comes back with a step record, even
// if the handler panics.
func (e *Executor) runStep(ctx context.Context, sess schemas.SessionContext, action schemas.Action) (step schemas.StepResult) {
	step = schemas.StepResult{Action: action}

	defer func() {
		if r := recover(); r != nil {
			step.Success = false
			step.Error = fmt.Sprintf("panic while executing %s: %v", action.Describe(), r)
			e.attachFailureScreenshot(ctx, sess, &step)
		}
	}()

	debug, err := e.dispatch(ctx, sess, action)
	step.Debug = debug
	if err != nil {
		step.Error = err.Error()
		e.attachFailureScreenshot(ctx, sess, &step)
		return step
	}

	step.Success = true
	return step
}

// attachFailureScreenshot captures the viewport for a failed step. Best
// effort: a capture failure is logged and otherwise ignored.
func (e *Executor) attachFailureScreenshot(ctx context.Context, sess schemas.SessionContext, step *schemas.StepResult) {
	shot, err := sess.Screenshot(ctx)
	if err != nil {
		e.logger.Debug("Failure screenshot capture failed.", zap.Error(err))
		return
	}
	step.Screenshot = base64.StdEncoding.EncodeToString(shot)
}
