// internal/server/handlers.go
package server

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"webpilot/api/schemas"
	"webpilot/internal/browser"
	"webpilot/internal/interpreter"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// sessionCloseTimeout bounds the cleanup close, detached from the request
// context which may already be canceled.
const sessionCloseTimeout = 10 * time.Second

// handleInteract is the single automation endpoint: admission, plan
// interpretation and validation, credential resolution, session acquisition,
// initial navigation, execution, response.
func (s *Server) handleInteract(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := http.StatusOK
	defer func() {
		s.metrics.ObserveRequest(status, time.Since(start))
	}()

	if !s.limiter.Allow() {
		status = http.StatusTooManyRequests
		s.respondError(w, status, "rate limit exceeded, try again later")
		return
	}

	var req schemas.InteractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		status = http.StatusBadRequest
		s.respondError(w, status, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Command) == "" {
		status = http.StatusBadRequest
		s.respondError(w, status, "command is required")
		return
	}

	ctx := r.Context()
	s.logger.Info("Interact request received.",
		zap.String("command", req.Command),
		zap.Int("max_steps", req.MaxSteps),
	)

	plan, err := s.planner.Interpret(ctx, req.Command, req.MaxSteps)
	if err != nil {
		switch {
		case errors.Is(err, interpreter.ErrNoActions), errors.Is(err, interpreter.ErrInvalidPlan):
			status = http.StatusBadRequest
		default:
			status = http.StatusInternalServerError
		}
		s.respondError(w, status, err.Error())
		return
	}

	if req.URL != "" {
		plan.StartingURL = req.URL
	}

	interpreter.ResolveCredentials(plan, req.Credentials)

	sess, err := s.sessions.NewSession(ctx)
	if err != nil {
		if errors.Is(err, browser.ErrSessionLimit) {
			status = http.StatusServiceUnavailable
			s.respondError(w, status, "browser session limit reached, try again later")
			return
		}
		status = http.StatusInternalServerError
		s.respondError(w, status, "failed to open browser session: "+err.Error())
		return
	}
	defer func() {
		// Detached from the request context so cleanup survives a canceled
		// request, while keeping its values for log correlation.
		closeCtx, cancel := context.WithTimeout(browser.Detach(ctx), sessionCloseTimeout)
		defer cancel()
		if err := sess.Close(closeCtx); err != nil {
			s.logger.Warn("Session close failed.", zap.String("session_id", sess.ID()), zap.Error(err))
		}
	}()

	// The plan may legitimately carry no starting URL when its first action is
	// a navigate; execution then begins on a blank tab.
	if plan.StartingURL != "" {
		if err := sess.NavigateInitial(ctx, plan.StartingURL); err != nil {
			// Fatal for the request: no steps ran. The failure screenshot is
			// best effort.
			result := &schemas.AutomationResult{
				Success: false,
				Message: "Initial navigation failed: " + err.Error(),
				Steps:   []schemas.StepResult{},
			}
			if shot, shotErr := sess.Screenshot(ctx); shotErr == nil {
				result.Screenshot = "data:image/png;base64," + base64.StdEncoding.EncodeToString(shot)
			}
			s.respondJSON(w, http.StatusOK, schemas.ResultToResponse(result))
			return
		}
	}

	result := s.runner.Run(ctx, sess, plan)
	for _, step := range result.Steps {
		s.metrics.ObserveStep(step.Action.Type, step.Success)
	}

	s.logger.Info("Interact request complete.",
		zap.Bool("success", result.Success),
		zap.Int("steps", len(result.Steps)),
		zap.Duration("duration", time.Since(start)),
	)
	s.respondJSON(w, http.StatusOK, schemas.ResultToResponse(result))
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("Failed to encode response.", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, detail string) {
	s.respondJSON(w, status, schemas.ErrorResponse{Detail: detail})
}
