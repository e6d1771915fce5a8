// api/schemas/interfaces.go
package schemas

import (
	"context"
	"time"
)

// SessionContext is the browser capability set the action executor runs
// against. The concrete implementation lives in internal/browser; tests
// substitute fakes.
type SessionContext interface {
	// ID returns the unique identifier for the session.
	ID() string

	// NavigateInitial performs the starting navigation: DOM content loaded
	// within a bounded timeout, then a best-effort quiet wait. An error here
	// is fatal to the whole request.
	NavigateInitial(ctx context.Context, url string) error

	// Navigate loads a URL and waits for the page to settle.
	Navigate(ctx context.Context, url string) error

	// WaitVisible blocks until the selector is visible or the timeout lapses.
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error

	// WaitPresent blocks until the selector exists in the DOM (visibility not
	// required) or the timeout lapses.
	WaitPresent(ctx context.Context, selector string, timeout time.Duration) error

	// Click clicks the element matching the selector.
	Click(ctx context.Context, selector string) error

	// Fill sets the value of the element matching the selector.
	Fill(ctx context.Context, selector string, text string) error

	// SendKey delivers a named key (e.g. "Enter") to the element.
	SendKey(ctx context.Context, selector string, key string) error

	// ScrollBy scrolls the viewport vertically by the given pixel delta.
	ScrollBy(ctx context.Context, pixels int) error

	// Sleep pauses for the duration, respecting context cancellation.
	Sleep(ctx context.Context, d time.Duration) error

	// Evaluate runs a JavaScript expression in the page and unmarshals the
	// result into out (out may be nil when no result is wanted).
	Evaluate(ctx context.Context, script string, out any) error

	// Screenshot captures the current viewport as PNG bytes.
	Screenshot(ctx context.Context) ([]byte, error)

	// FullScreenshot captures the entire page as PNG bytes.
	FullScreenshot(ctx context.Context) ([]byte, error)

	// Close releases the browser context. Idempotent; must be called on
	// every exit path.
	Close(ctx context.Context) error
}

// LLMClient generates a raw text completion for a system/user prompt pair.
type LLMClient interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}
