// internal/server/handlers_test.go
package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"webpilot/api/schemas"
	"webpilot/internal/browser"
	"webpilot/internal/config"
	"webpilot/internal/interpreter"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubPlanner struct {
	plan *schemas.ActionPlan
	err  error

	gotCommand  string
	gotMaxSteps int
}

func (p *stubPlanner) Interpret(_ context.Context, command string, maxSteps int) (*schemas.ActionPlan, error) {
	p.gotCommand = command
	p.gotMaxSteps = maxSteps
	if p.err != nil {
		return nil, p.err
	}
	// Hand back a copy so handler-side mutation does not leak between tests.
	plan := *p.plan
	return &plan, nil
}

// stubSession satisfies schemas.SessionContext without a browser.
type stubSession struct {
	navErr    error
	shot      []byte
	shotErr   error
	closed    int
	navigated string
}

func (s *stubSession) ID() string { return "stub-session" }

func (s *stubSession) NavigateInitial(_ context.Context, url string) error {
	s.navigated = url
	return s.navErr
}

func (s *stubSession) Navigate(ctx context.Context, url string) error {
	return s.NavigateInitial(ctx, url)
}

func (s *stubSession) WaitVisible(context.Context, string, time.Duration) error { return nil }
func (s *stubSession) WaitPresent(context.Context, string, time.Duration) error { return nil }
func (s *stubSession) Click(context.Context, string) error                      { return nil }
func (s *stubSession) Fill(context.Context, string, string) error               { return nil }
func (s *stubSession) SendKey(context.Context, string, string) error            { return nil }
func (s *stubSession) ScrollBy(context.Context, int) error                      { return nil }
func (s *stubSession) Sleep(context.Context, time.Duration) error               { return nil }
func (s *stubSession) Evaluate(context.Context, string, any) error              { return nil }

func (s *stubSession) Screenshot(context.Context) ([]byte, error) {
	return s.shot, s.shotErr
}

func (s *stubSession) FullScreenshot(ctx context.Context) ([]byte, error) {
	return s.Screenshot(ctx)
}

func (s *stubSession) Close(context.Context) error {
	s.closed++
	return nil
}

type stubFactory struct {
	session *stubSession
	err     error
	active  int
}

func (f *stubFactory) NewSession(context.Context) (schemas.SessionContext, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.session, nil
}

func (f *stubFactory) ActiveSessions() int            { return f.active }
func (f *stubFactory) Shutdown(context.Context) error { return nil }

type stubRunner struct {
	result  *schemas.AutomationResult
	gotPlan *schemas.ActionPlan
}

func (r *stubRunner) Run(_ context.Context, _ schemas.SessionContext, plan *schemas.ActionPlan) *schemas.AutomationResult {
	r.gotPlan = plan
	return r.result
}

func testConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	// Generous admission so only the dedicated test trips the limiter.
	cfg.Server.RateLimit = 1000
	cfg.Server.RateBurst = 1000
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config, planner Planner, factory SessionFactory, runner PlanRunner) *Server {
	t.Helper()
	return New(cfg, zaptest.NewLogger(t), planner, factory, runner)
}

func postInteract(t *testing.T, srv *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/interact", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)
	return rec
}

func defaultPlan() *schemas.ActionPlan {
	return &schemas.ActionPlan{
		StartingURL: "https://example.com",
		Actions: []schemas.Action{
			{Type: schemas.ActionClick, Selector: "#go"},
		},
	}
}

func TestInteractHappyPath(t *testing.T) {
	planner := &stubPlanner{plan: defaultPlan()}
	session := &stubSession{}
	runner := &stubRunner{result: &schemas.AutomationResult{
		Success:    true,
		Message:    "Executed 1 actions successfully",
		Steps:      []schemas.StepResult{{Action: schemas.Action{Type: schemas.ActionClick}, Success: true}},
		Screenshot: "data:image/png;base64,aGk=",
	}}
	srv := newTestServer(t, testConfig(), planner, &stubFactory{session: session}, runner)

	rec := postInteract(t, srv, `{"command": "click the button", "max_steps": 3}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp schemas.InteractResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "Executed 1 actions successfully", resp.Message)
	require.NotNil(t, resp.Data)
	assert.Len(t, resp.Data.Steps, 1)
	assert.True(t, strings.HasPrefix(resp.Screenshot, "data:image/png;base64,"))

	assert.Equal(t, "click the button", planner.gotCommand)
	assert.Equal(t, 3, planner.gotMaxSteps)
	assert.Equal(t, "https://example.com", session.navigated)
	assert.Equal(t, 1, session.closed)
}

func TestInteractURLOverridesPlan(t *testing.T) {
	planner := &stubPlanner{plan: defaultPlan()}
	session := &stubSession{}
	runner := &stubRunner{result: &schemas.AutomationResult{Success: true, Steps: []schemas.StepResult{}}}
	srv := newTestServer(t, testConfig(), planner, &stubFactory{session: session}, runner)

	rec := postInteract(t, srv, `{"command": "go", "url": "https://override.example"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://override.example", session.navigated)
	assert.Equal(t, "https://override.example", runner.gotPlan.StartingURL)
}

func TestInteractResolvesCredentialsIntoPlan(t *testing.T) {
	planner := &stubPlanner{plan: &schemas.ActionPlan{
		StartingURL: "https://example.com/login",
		Actions: []schemas.Action{
			{Type: schemas.ActionFill, Selector: "#user", Text: schemas.PlaceholderUsername},
			{Type: schemas.ActionFill, Selector: "#pass", Text: schemas.PlaceholderPassword},
		},
	}}
	runner := &stubRunner{result: &schemas.AutomationResult{Success: true, Steps: []schemas.StepResult{}}}
	srv := newTestServer(t, testConfig(), planner, &stubFactory{session: &stubSession{}}, runner)

	rec := postInteract(t, srv, `{"command": "log in", "credentials": {"username": "alice", "password": "s3cret"}}`)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, runner.gotPlan)
	assert.Equal(t, "alice", runner.gotPlan.Actions[0].Text)
	assert.Equal(t, "s3cret", runner.gotPlan.Actions[1].Text)
}

func TestInteractRejectsMalformedBody(t *testing.T) {
	srv := newTestServer(t, testConfig(), &stubPlanner{plan: defaultPlan()}, &stubFactory{session: &stubSession{}}, &stubRunner{})

	rec := postInteract(t, srv, `{"command": `)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp schemas.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Detail, "invalid request body")
}

func TestInteractRejectsEmptyCommand(t *testing.T) {
	srv := newTestServer(t, testConfig(), &stubPlanner{plan: defaultPlan()}, &stubFactory{session: &stubSession{}}, &stubRunner{})

	rec := postInteract(t, srv, `{"command": "   "}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInteractMapsInterpretationErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"no actions", fmt.Errorf("wrapped: %w", interpreter.ErrNoActions), http.StatusBadRequest},
		{"invalid plan", fmt.Errorf("action 2: %w", interpreter.ErrInvalidPlan), http.StatusBadRequest},
		{"provider failure", errors.New("model timed out"), http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := newTestServer(t, testConfig(), &stubPlanner{err: tc.err}, &stubFactory{session: &stubSession{}}, &stubRunner{})

			rec := postInteract(t, srv, `{"command": "do something"}`)

			assert.Equal(t, tc.wantStatus, rec.Code)
		})
	}
}

func TestInteractSkipsNavigationWithoutStartingURL(t *testing.T) {
	// A plan whose first action is a navigate needs no starting URL; the
	// request proceeds on a blank tab.
	planner := &stubPlanner{plan: &schemas.ActionPlan{Actions: []schemas.Action{
		{Type: schemas.ActionNavigate, URL: "https://example.com"},
		{Type: schemas.ActionWait, Timeout: 100},
	}}}
	session := &stubSession{}
	runner := &stubRunner{result: &schemas.AutomationResult{Success: true, Steps: []schemas.StepResult{}}}
	srv := newTestServer(t, testConfig(), planner, &stubFactory{session: session}, runner)

	rec := postInteract(t, srv, `{"command": "go somewhere then wait"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp schemas.InteractResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)

	assert.Empty(t, session.navigated, "initial navigation must be skipped")
	require.NotNil(t, runner.gotPlan)
	assert.Empty(t, runner.gotPlan.StartingURL)
	assert.Equal(t, 1, session.closed)
}

func TestInteractSessionLimitMapsTo503(t *testing.T) {
	srv := newTestServer(t, testConfig(), &stubPlanner{plan: defaultPlan()}, &stubFactory{err: browser.ErrSessionLimit}, &stubRunner{})

	rec := postInteract(t, srv, `{"command": "click"}`)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp schemas.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Detail, "session limit")
}

func TestInteractSessionFailureMapsTo500(t *testing.T) {
	srv := newTestServer(t, testConfig(), &stubPlanner{plan: defaultPlan()}, &stubFactory{err: errors.New("chrome exploded")}, &stubRunner{})

	rec := postInteract(t, srv, `{"command": "click"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestInteractRateLimitMapsTo429(t *testing.T) {
	cfg := testConfig()
	cfg.Server.RateLimit = 0.001
	cfg.Server.RateBurst = 1
	runner := &stubRunner{result: &schemas.AutomationResult{Success: true, Steps: []schemas.StepResult{}}}
	srv := newTestServer(t, cfg, &stubPlanner{plan: defaultPlan()}, &stubFactory{session: &stubSession{}}, runner)

	first := postInteract(t, srv, `{"command": "click"}`)
	require.Equal(t, http.StatusOK, first.Code)

	second := postInteract(t, srv, `{"command": "click"}`)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}

func TestInteractNavigationFailureIsTerminalButStill200(t *testing.T) {
	session := &stubSession{navErr: errors.New("net::ERR_NAME_NOT_RESOLVED"), shot: []byte("png-bytes")}
	runner := &stubRunner{}
	srv := newTestServer(t, testConfig(), &stubPlanner{plan: defaultPlan()}, &stubFactory{session: session}, runner)

	rec := postInteract(t, srv, `{"command": "click"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp schemas.InteractResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Message, "Initial navigation failed")
	require.NotNil(t, resp.Data)
	assert.Empty(t, resp.Data.Steps)
	assert.True(t, strings.HasPrefix(resp.Screenshot, "data:image/png;base64,"))

	// No steps ran.
	assert.Nil(t, runner.gotPlan)
	assert.Equal(t, 1, session.closed)
}

func TestInteractNavigationFailureScreenshotBestEffort(t *testing.T) {
	session := &stubSession{navErr: errors.New("timeout"), shotErr: errors.New("target crashed")}
	srv := newTestServer(t, testConfig(), &stubPlanner{plan: defaultPlan()}, &stubFactory{session: session}, &stubRunner{})

	rec := postInteract(t, srv, `{"command": "click"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp schemas.InteractResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Empty(t, resp.Screenshot)
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, testConfig(), &stubPlanner{plan: defaultPlan()}, &stubFactory{}, &stubRunner{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestMetricsEndpointExposesCounters(t *testing.T) {
	runner := &stubRunner{result: &schemas.AutomationResult{
		Success: true,
		Steps:   []schemas.StepResult{{Action: schemas.Action{Type: schemas.ActionNavigate}, Success: true}},
	}}
	srv := newTestServer(t, testConfig(), &stubPlanner{plan: defaultPlan()}, &stubFactory{session: &stubSession{}, active: 1}, runner)

	rec := postInteract(t, srv, `{"command": "go"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	metricsRec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(metricsRec, req)

	require.Equal(t, http.StatusOK, metricsRec.Code)
	body := metricsRec.Body.String()
	assert.Contains(t, body, "webpilot_interact_requests_total")
	assert.Contains(t, body, `webpilot_action_steps_total{action="navigate",outcome="success"} 1`)
	assert.Contains(t, body, "webpilot_browser_sessions_active 1")
}
