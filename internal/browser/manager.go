// internal/browser/manager.go
package browser

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"webpilot/api/schemas"
	"webpilot/internal/config"
)

// ErrSessionLimit is returned when all session slots are in use. Callers map
// it onto an admission-rejection response rather than queueing.
var ErrSessionLimit = errors.New("maximum concurrent browser sessions reached")

const shutdownGracePeriod = 15 * time.Second

// Manager owns the Chrome allocator and hands out capped, isolated sessions.
// The allocator is created lazily on the first session request; the browser
// process itself launches on the first CDP action of the first session.
type Manager struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	allocCtx    context.Context
	allocCancel context.CancelFunc

	sem      *semaphore.Weighted
	sessions map[string]*Session
	mu       sync.Mutex
	wg       sync.WaitGroup

	initOnce sync.Once
}

// NewManager creates a browser manager. No browser resources are allocated
// until the first session is requested.
func NewManager(cfg config.BrowserConfig, logger *zap.Logger) *Manager {
	m := &Manager{
		cfg:      cfg,
		logger:   logger.Named("browser_manager"),
		sem:      semaphore.NewWeighted(int64(cfg.MaxSessions)),
		sessions: make(map[string]*Session),
	}
	m.logger.Info("Browser manager created (allocator deferred).",
		zap.Int("max_sessions", cfg.MaxSessions),
		zap.Bool("headless", cfg.Headless),
	)
	return m
}

// initialize builds the exec allocator. Detached from any request context:
// the allocator's lifecycle belongs to the manager, not to the request that
// happened to arrive first.
func (m *Manager) initialize() {
	m.initOnce.Do(func() {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.NoSandbox,
			chromedp.DisableGPU,
			chromedp.Flag("disable-blink-features", "AutomationControlled"),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.WindowSize(m.cfg.ViewportWidth, m.cfg.ViewportHeight),
		)
		if !m.cfg.Headless {
			opts = append(opts, chromedp.Flag("headless", false))
		}
		opts = append(opts, parseExtraArgs(m.cfg.Args)...)

		m.allocCtx, m.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
		m.logger.Info("Browser allocator initialized.")
	})
}

// NewSession opens a new isolated tab, subject to the session cap. Requests
// beyond the cap fail immediately with ErrSessionLimit.
func (m *Manager) NewSession(ctx context.Context) (schemas.SessionContext, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.initialize()

	if !m.sem.TryAcquire(1) {
		m.logger.Warn("Session request rejected: limit reached.", zap.Int("max_sessions", m.cfg.MaxSessions))
		return nil, ErrSessionLimit
	}

	tabCtx, tabCancel := chromedp.NewContext(m.allocCtx)
	session := newSession(tabCtx, tabCancel, m.cfg, m.logger)

	m.wg.Add(1)
	session.onClose = func() {
		m.mu.Lock()
		delete(m.sessions, session.id)
		m.mu.Unlock()
		m.sem.Release(1)
		m.wg.Done()
		m.logger.Debug("Session removed from manager.", zap.String("session_id", session.id))
	}

	m.mu.Lock()
	m.sessions[session.id] = session
	m.mu.Unlock()

	m.logger.Info("New session created.", zap.String("session_id", session.id))
	return session, nil
}

// ActiveSessions reports the number of currently open sessions.
func (m *Manager) ActiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown closes all open sessions, waits for them (bounded by ctx), then
// tears down the allocator and the browser process.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Shutting down browser manager.")

	m.mu.Lock()
	open := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		open = append(open, s)
	}
	m.mu.Unlock()

	for _, s := range open {
		go func(s *Session) {
			if err := s.Close(ctx); err != nil {
				m.logger.Warn("Error closing session during shutdown.", zap.String("session_id", s.ID()), zap.Error(err))
			}
		}(s)
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("All sessions closed gracefully.")
	case <-ctx.Done():
		m.logger.Warn("Timeout waiting for sessions to close; proceeding with forceful shutdown.", zap.Error(ctx.Err()))
	}

	if m.allocCancel != nil {
		m.allocCancel()
	}

	m.logger.Info("Browser manager shutdown complete.")
	return nil
}

// parseExtraArgs converts "--name=value" / "--name" strings into chromedp
// allocator flags.
func parseExtraArgs(args []string) []chromedp.ExecAllocatorOption {
	opts := make([]chromedp.ExecAllocatorOption, 0, len(args))
	for _, arg := range args {
		arg = strings.TrimPrefix(arg, "--")
		if arg == "" {
			continue
		}
		if name, value, found := strings.Cut(arg, "="); found {
			opts = append(opts, chromedp.Flag(name, value))
		} else {
			opts = append(opts, chromedp.Flag(arg, true))
		}
	}
	return opts
}
