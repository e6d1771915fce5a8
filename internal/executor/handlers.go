// internal/executor/handlers.go
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"webpilot/api/schemas"
)

// dispatch routes one action to its handler. The returned map is the
// handler's optional debug payload for the step record.
func (e *Executor) dispatch(ctx context.Context, sess schemas.SessionContext, action schemas.Action) (map[string]any, error) {
	switch action.Type {
	case schemas.ActionNavigate:
		return nil, e.handleNavigate(ctx, sess, action)
	case schemas.ActionClick:
		return nil, e.handleClick(ctx, sess, action)
	case schemas.ActionFill:
		return nil, e.handleFill(ctx, sess, action)
	case schemas.ActionPress:
		return nil, e.handlePress(ctx, sess, action)
	case schemas.ActionWait:
		return nil, e.handleWait(ctx, sess, action)
	case schemas.ActionScroll:
		return nil, e.handleScroll(ctx, sess, action)
	case schemas.ActionLogin:
		return nil, e.handleLogin(ctx, sess, action)
	case schemas.ActionSearch:
		return nil, e.handleSearch(ctx, sess, action)
	case schemas.ActionLikePost:
		return e.handleLikePost(ctx, sess, action)
	case schemas.ActionCommentPost:
		return nil, e.handleCommentPost(ctx, sess, action)
	case schemas.ActionSharePost:
		return nil, e.handleSharePost(ctx, sess, action)
	default:
		// Validation rejects unknown kinds before execution; this branch
		// only fires if a plan bypassed validation.
		return nil, fmt.Errorf("unsupported action type %q", action.Type)
	}
}

func (e *Executor) handleNavigate(ctx context.Context, sess schemas.SessionContext, action schemas.Action) error {
	if action.URL == "" {
		return errors.New("navigate action requires a url")
	}
	return sess.Navigate(ctx, action.URL)
}

func (e *Executor) handleClick(ctx context.Context, sess schemas.SessionContext, action schemas.Action) error {
	if action.Selector == "" {
		return errors.New("click action requires a selector")
	}
	if err := sess.WaitVisible(ctx, action.Selector, e.cfg.VisibilityTimeout); err != nil {
		return err
	}
	return sess.Click(ctx, action.Selector)
}

func (e *Executor) handleFill(ctx context.Context, sess schemas.SessionContext, action schemas.Action) error {
	if action.Selector == "" {
		return errors.New("fill action requires a selector")
	}
	if err := sess.WaitVisible(ctx, action.Selector, e.cfg.VisibilityTimeout); err != nil {
		return err
	}
	return sess.Fill(ctx, action.Selector, action.Text)
}

func (e *Executor) handlePress(ctx context.Context, sess schemas.SessionContext, action schemas.Action) error {
	if action.Selector == "" {
		return errors.New("press action requires a selector")
	}
	if action.Key == "" {
		return errors.New("press action requires a key")
	}
	if err := sess.WaitVisible(ctx, action.Selector, e.cfg.VisibilityTimeout); err != nil {
		return err
	}
	return sess.SendKey(ctx, action.Selector, action.Key)
}

func (e *Executor) handleWait(ctx context.Context, sess schemas.SessionContext, action schemas.Action) error {
	if action.Timeout <= 0 {
		return nil
	}
	return sess.Sleep(ctx, time.Duration(action.Timeout)*time.Millisecond)
}

func (e *Executor) handleScroll(ctx context.Context, sess schemas.SessionContext, action schemas.Action) error {
	if action.Pixels == 0 {
		return errors.New("scroll action requires pixels")
	}
	pixels := action.Pixels
	if action.Direction == "up" {
		pixels = -pixels
	}
	return sess.ScrollBy(ctx, pixels)
}

func (e *Executor) handleLogin(ctx context.Context, sess schemas.SessionContext, action schemas.Action) error {
	if action.UsernameSelector == "" || action.PasswordSelector == "" || action.SubmitSelector == "" {
		return errors.New("login action requires username, password and submit selectors")
	}
	if err := sess.WaitVisible(ctx, action.UsernameSelector, e.cfg.VisibilityTimeout); err != nil {
		return err
	}
	if err := sess.Fill(ctx, action.UsernameSelector, action.Username); err != nil {
		return err
	}
	if err := sess.Fill(ctx, action.PasswordSelector, action.Password); err != nil {
		return err
	}
	return sess.Click(ctx, action.SubmitSelector)
}

func (e *Executor) handleSearch(ctx context.Context, sess schemas.SessionContext, action schemas.Action) error {
	if action.SearchSelector == "" {
		return errors.New("search action requires a search selector")
	}
	if action.SubmitSelector == "" {
		return errors.New("search action requires a submit selector")
	}
	if err := sess.WaitVisible(ctx, action.SearchSelector, e.cfg.VisibilityTimeout); err != nil {
		return err
	}
	if err := sess.Fill(ctx, action.SearchSelector, action.Query); err != nil {
		return err
	}
	return sess.Click(ctx, action.SubmitSelector)
}
