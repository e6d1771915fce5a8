// internal/interpreter/interpreter.go
package interpreter

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"webpilot/api/schemas"
)

// Sentinel errors the HTTP layer maps onto status codes.
var (
	// ErrNoActions means the interpreted plan carried no actions list (400).
	ErrNoActions = errors.New("interpreted plan has no actions list")
	// ErrInvalidPlan means the plan failed construction-time validation (400).
	ErrInvalidPlan = errors.New("invalid action plan")
	// ErrInterpretation means the LLM call or response parse failed (500).
	ErrInterpretation = errors.New("command interpretation failed")
)

const systemPrompt = `You are a browser automation expert. Convert the user's natural language command into a JSON structure.
The JSON should include the starting URL if not provided and have an "actions" array with these possible action types:

- navigate: {url: string} (REQUIRED as first action if no URL provided)
- click: {selector: string}
- fill: {selector: string, text: string} (use the placeholder YOUR_USERNAME or YOUR_PASSWORD when the value is a credential; real values are injected later)
- press: {selector: string, key: string}
- wait: {timeout: number}
- scroll: {direction: "up"|"down", pixels: number}
- login: {username_selector: string, password_selector: string, submit_selector: string}
- search: {query: string, search_selector: string, submit_selector: string}
- like_post: {index: number} (likes the nth post in the feed)
- comment_post: {index: number, text: string} (comments on the nth post)
- share_post: {index: number} (shares the nth post)

Example input: "Login to LinkedIn and search for playwright jobs"
Example output: {
    "starting_url": "https://linkedin.com",
    "actions": [
        {"type": "click", "selector": "a[data-tracking-control-name='guest_homepage-basic_nav-header-signin']"},
        {"type": "fill", "selector": "input[name='session_key']", "text": "YOUR_USERNAME"},
        {"type": "fill", "selector": "input[name='session_password']", "text": "YOUR_PASSWORD"},
        {"type": "click", "selector": "button[type='submit']"},
        {"type": "wait", "timeout": 3000},
        {"type": "fill", "selector": "input[role='combobox']", "text": "playwright jobs"},
        {"type": "press", "selector": "input[role='combobox']", "key": "Enter"},
        {"type": "like_post", "index": 1}
    ]
}

IMPORTANT:
1. Never include actual credentials in the response
2. Every action must have a "type" field as the first key
3. Keep the plan at or under %d actions`

// Interpreter converts free-text commands into validated action plans.
type Interpreter struct {
	client schemas.LLMClient
	logger *zap.Logger
}

// New creates an Interpreter backed by the given LLM client.
func New(client schemas.LLMClient, logger *zap.Logger) *Interpreter {
	return &Interpreter{
		client: client,
		logger: logger.Named("interpreter"),
	}
}

// Interpret asks the model for a plan and validates it. maxSteps only shapes
// the prompt; the executor runs whatever plan comes back.
func (i *Interpreter) Interpret(ctx context.Context, command string, maxSteps int) (*schemas.ActionPlan, error) {
	if maxSteps <= 0 {
		maxSteps = schemas.DefaultMaxSteps
	}

	raw, err := i.client.Generate(ctx, fmt.Sprintf(systemPrompt, maxSteps), command)
	if err != nil {
		i.logger.Error("Command interpretation error", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrInterpretation, err)
	}

	plan, err := ParseJSONResponse[schemas.ActionPlan](raw)
	if err != nil {
		i.logger.Error("Failed to parse interpreted plan", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrInterpretation, err)
	}

	if err := ValidatePlan(plan); err != nil {
		return nil, err
	}

	i.logger.Info("Interpreted command into plan",
		zap.Int("actions", len(plan.Actions)),
		zap.String("starting_url", plan.StartingURL),
	)
	return plan, nil
}

// ValidatePlan enforces the construction-time contract: an actions list must
// be present and every action type must belong to the closed vocabulary.
func ValidatePlan(plan *schemas.ActionPlan) error {
	if plan == nil || plan.Actions == nil {
		return ErrNoActions
	}
	for idx, action := range plan.Actions {
		if !action.Type.Valid() {
			return fmt.Errorf("%w: action %d has unknown type %q", ErrInvalidPlan, idx, action.Type)
		}
	}
	return nil
}
