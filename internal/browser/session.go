// internal/browser/session.go
// This file implements the browser session: one isolated Chrome tab driven
// over the Chrome DevTools Protocol. Each method manages its own operational
// timeout so a stuck action can be abandoned without tearing down the session.
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"webpilot/api/schemas"
	"webpilot/internal/config"
)

// webdriverEvasion hides the most common headless fingerprints before any
// page script runs. Injected via Page.addScriptToEvaluateOnNewDocument.
const webdriverEvasion = `
Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3] });
Object.defineProperty(navigator, 'languages', { get: () => ['en-US', 'en'] });
`

// Session is a single browser tab. It implements schemas.SessionContext.
type Session struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	cfg    config.BrowserConfig
	logger *zap.Logger

	// bootOnce guards the one-time tab setup (viewport, UA, stealth). The
	// browser process itself launches lazily on the first CDP action.
	bootOnce sync.Once
	bootErr  error

	onClose   func()
	closeOnce sync.Once
}

var _ schemas.SessionContext = (*Session)(nil)

func newSession(tabCtx context.Context, cancel context.CancelFunc, cfg config.BrowserConfig, logger *zap.Logger) *Session {
	id := uuid.New().String()
	return &Session{
		id:     id,
		ctx:    tabCtx,
		cancel: cancel,
		cfg:    cfg,
		logger: logger.Named("session").With(zap.String("session_id", id)),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// RunActions executes a sequence of chromedp actions against this tab. The
// operational context supplies the deadline; the session context supplies the
// CDP target and the overall lifecycle.
func (s *Session) RunActions(ctx context.Context, actions ...chromedp.Action) error {
	opCtx, opCancel := CombineContext(s.ctx, ctx)
	defer opCancel()

	if err := s.bootstrap(opCtx); err != nil {
		return err
	}
	err := chromedp.Run(opCtx, actions...)
	if err != nil {
		// Report the causing context error rather than the raw CDP failure.
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if s.ctx.Err() != nil {
			return s.ctx.Err()
		}
	}
	return err
}

// bootstrap applies the tab's emulation profile exactly once: viewport, user
// agent, locale, and the webdriver evasion script. The first chromedp.Run also
// launches the browser process if needed.
func (s *Session) bootstrap(ctx context.Context) error {
	s.bootOnce.Do(func() {
		tasks := chromedp.Tasks{
			emulation.SetDeviceMetricsOverride(int64(s.cfg.ViewportWidth), int64(s.cfg.ViewportHeight), 1.0, false),
			emulation.SetUserAgentOverride(s.cfg.UserAgent),
			emulation.SetLocaleOverride().WithLocale(s.cfg.Locale),
			chromedp.ActionFunc(func(ctx context.Context) error {
				_, err := page.AddScriptToEvaluateOnNewDocument(webdriverEvasion).Do(ctx)
				if err != nil {
					return fmt.Errorf("failed to inject evasion script: %w", err)
				}
				return nil
			}),
		}
		if err := chromedp.Run(ctx, tasks); err != nil {
			s.bootErr = fmt.Errorf("session bootstrap failed: %w", err)
			return
		}
		s.logger.Debug("Session tab bootstrapped.",
			zap.Int("viewport_width", s.cfg.ViewportWidth),
			zap.Int("viewport_height", s.cfg.ViewportHeight),
		)
	})
	return s.bootErr
}

// NavigateInitial performs the starting navigation for a request. The DOM
// must load within the navigation timeout; the subsequent quiet wait is best
// effort and never fails the navigation.
func (s *Session) NavigateInitial(ctx context.Context, url string) error {
	s.logger.Info("Navigating session.", zap.String("url", url))

	navCtx, navCancel := context.WithTimeout(ctx, s.cfg.NavTimeout)
	defer navCancel()

	err := s.RunActions(navCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		if navCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("navigation to %s timed out after %v: %w", url, s.cfg.NavTimeout, navCtx.Err())
		}
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}

	if err := s.waitQuiet(ctx, s.cfg.QuietWait); err != nil {
		s.logger.Debug("Page did not reach quiet state after navigation (non-critical).", zap.Error(err))
	}
	return nil
}

// Navigate loads a URL mid-plan and settles the page. Unlike the initial
// navigation, the load timeout itself is bounded but errors still propagate.
func (s *Session) Navigate(ctx context.Context, url string) error {
	return s.NavigateInitial(ctx, url)
}

// waitQuiet polls the page until the document is complete and the resource
// count stops growing, bounded by timeout. Used as a cheap network-idle
// approximation after navigations.
func (s *Session) waitQuiet(ctx context.Context, timeout time.Duration) error {
	quietCtx, quietCancel := context.WithTimeout(ctx, timeout)
	defer quietCancel()

	const probe = `({state: document.readyState, resources: performance.getEntriesByType('resource').length})`

	prevResources := -1
	for {
		var snap struct {
			State     string `json:"state"`
			Resources int    `json:"resources"`
		}
		if err := s.RunActions(quietCtx, evaluate(probe, &snap)); err != nil {
			return err
		}
		if snap.State == "complete" && snap.Resources == prevResources {
			return nil
		}
		prevResources = snap.Resources

		if err := s.RunActions(quietCtx, chromedp.Sleep(500*time.Millisecond)); err != nil {
			return err
		}
	}
}

// WaitVisible blocks until the selector is visible or the timeout lapses.
func (s *Session) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	opCtx, opCancel := context.WithTimeout(ctx, timeout)
	defer opCancel()

	err := s.RunActions(opCtx, chromedp.WaitVisible(selector, chromedp.ByQuery))
	if err != nil {
		if opCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("element '%s' not visible after %v: %w", selector, timeout, opCtx.Err())
		}
		return fmt.Errorf("wait for '%s' failed: %w", selector, err)
	}
	return nil
}

// WaitPresent blocks until the selector exists in the DOM, visible or not.
func (s *Session) WaitPresent(ctx context.Context, selector string, timeout time.Duration) error {
	opCtx, opCancel := context.WithTimeout(ctx, timeout)
	defer opCancel()

	err := s.RunActions(opCtx, chromedp.WaitReady(selector, chromedp.ByQuery))
	if err != nil {
		if opCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("element '%s' not present after %v: %w", selector, timeout, opCtx.Err())
		}
		return fmt.Errorf("wait for '%s' failed: %w", selector, err)
	}
	return nil
}

// Click scrolls the element into view, waits for visibility, and clicks it.
func (s *Session) Click(ctx context.Context, selector string) error {
	s.logger.Debug("Clicking element.", zap.String("selector", selector))

	opCtx, opCancel := context.WithTimeout(ctx, 30*time.Second)
	defer opCancel()

	err := s.RunActions(opCtx,
		chromedp.ScrollIntoView(selector, chromedp.ByQuery),
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	)
	if err != nil {
		if opCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("click timed out for selector '%s': %w", selector, opCtx.Err())
		}
		return fmt.Errorf("click failed for selector '%s': %w", selector, err)
	}
	return nil
}

// Fill clears the element's value and types the given text into it. Clearing
// goes through JS so that reactive frameworks see input/change events.
func (s *Session) Fill(ctx context.Context, selector string, text string) error {
	s.logger.Debug("Filling element.", zap.String("selector", selector), zap.Int("text_length", len(text)))

	opCtx, opCancel := context.WithTimeout(ctx, 45*time.Second)
	defer opCancel()

	jsClear := fmt.Sprintf(`(function(sel) {
		const el = document.querySelector(sel);
		if (!el || el.disabled || el.readOnly) return false;
		el.value = "";
		el.dispatchEvent(new Event('input', { bubbles: true }));
		el.dispatchEvent(new Event('change', { bubbles: true }));
		return true;
	})(%q)`, selector)

	var cleared bool
	err := s.RunActions(opCtx,
		chromedp.ScrollIntoView(selector, chromedp.ByQuery),
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		evaluate(jsClear, &cleared),
	)
	if err != nil {
		return fmt.Errorf("fill preparation failed for selector '%s': %w", selector, err)
	}
	if !cleared {
		return fmt.Errorf("fill preparation failed for selector '%s': element stale or non-interactable", selector)
	}

	if err := s.RunActions(opCtx, chromedp.SendKeys(selector, text, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("fill failed for selector '%s': %w", selector, err)
	}
	return nil
}

// SendKey focuses the element and dispatches a named key (e.g. "Enter") as a
// raw keyDown/keyUp pair.
func (s *Session) SendKey(ctx context.Context, selector string, key string) error {
	s.logger.Debug("Sending key.", zap.String("selector", selector), zap.String("key", key))

	opCtx, opCancel := context.WithTimeout(ctx, 10*time.Second)
	defer opCancel()

	keyDown := input.DispatchKeyEvent(input.KeyDown).WithKey(key)
	keyUp := input.DispatchKeyEvent(input.KeyUp).WithKey(key)

	err := s.RunActions(opCtx,
		chromedp.Focus(selector, chromedp.ByQuery),
		keyDown,
		keyUp,
	)
	if err != nil {
		return fmt.Errorf("key press '%s' failed for selector '%s': %w", key, selector, err)
	}
	return nil
}

// ScrollBy scrolls the viewport vertically by the given pixel delta. Negative
// values scroll up.
func (s *Session) ScrollBy(ctx context.Context, pixels int) error {
	opCtx, opCancel := context.WithTimeout(ctx, 10*time.Second)
	defer opCancel()

	script := fmt.Sprintf(`window.scrollBy({top: %d, behavior: 'auto'});`, pixels)
	if err := s.RunActions(opCtx, evaluate(script, nil)); err != nil {
		return fmt.Errorf("scroll failed: %w", err)
	}
	return nil
}

// Sleep pauses for the duration, respecting both the session lifecycle and
// the caller's context.
func (s *Session) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	opCtx, opCancel := CombineContext(s.ctx, ctx)
	defer opCancel()

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-opCtx.Done():
		return opCtx.Err()
	}
}

// Evaluate runs a JavaScript expression in the page and unmarshals the result
// into out. Pass a nil out to discard the result.
func (s *Session) Evaluate(ctx context.Context, script string, out any) error {
	opCtx, opCancel := context.WithTimeout(ctx, 20*time.Second)
	defer opCancel()

	if err := s.RunActions(opCtx, evaluate(script, out)); err != nil {
		if opCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("script evaluation timed out: %w", opCtx.Err())
		}
		return fmt.Errorf("script evaluation failed: %w", err)
	}
	return nil
}

// Screenshot captures the current viewport as PNG bytes.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	opCtx, opCancel := context.WithTimeout(ctx, 15*time.Second)
	defer opCancel()

	var buf []byte
	if err := s.RunActions(opCtx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("screenshot capture failed: %w", err)
	}
	return buf, nil
}

// FullScreenshot captures the entire page as PNG bytes.
func (s *Session) FullScreenshot(ctx context.Context) ([]byte, error) {
	opCtx, opCancel := context.WithTimeout(ctx, 30*time.Second)
	defer opCancel()

	var buf []byte
	// Quality 100 selects PNG capture; anything lower switches chromedp to
	// JPEG, which would contradict the image/png data URL on the result.
	if err := s.RunActions(opCtx, chromedp.FullScreenshot(&buf, 100)); err != nil {
		return nil, fmt.Errorf("full screenshot capture failed: %w", err)
	}
	return buf, nil
}

// closeSettle lets in-flight page activity (e.g. a final comment submit)
// land before the tab is torn down.
const closeSettle = 250 * time.Millisecond

// Close releases the tab. Idempotent; safe to call on every exit path.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.logger.Info("Closing session.")
		timer := time.NewTimer(closeSettle)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
		}
		s.cancel()
		if s.onClose != nil {
			s.onClose()
		}
	})
	return nil
}

// evaluate wraps chromedp.Evaluate with the parameters every call here wants:
// return by value, await promises, and keep page exceptions quiet.
func evaluate(script string, out any) chromedp.Action {
	return chromedp.Evaluate(script, out, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithReturnByValue(true).WithAwaitPromise(true).WithSilent(true)
	})
}
