// internal/browser/manager_test.go
package browser

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"webpilot/api/schemas"
	"webpilot/internal/config"
)

// Session creation is lazy: no Chrome process launches until the first CDP
// action runs. These tests exercise the cap and lifecycle accounting without
// touching a real browser.

func testBrowserConfig(maxSessions int) config.BrowserConfig {
	cfg := config.NewDefaultConfig().Browser
	cfg.MaxSessions = maxSessions
	return cfg
}

func TestManagerEnforcesSessionLimit(t *testing.T) {
	m := NewManager(testBrowserConfig(2), zaptest.NewLogger(t))
	ctx := context.Background()

	s1, err := m.NewSession(ctx)
	require.NoError(t, err)
	s2, err := m.NewSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, m.ActiveSessions())

	_, err = m.NewSession(ctx)
	assert.ErrorIs(t, err, ErrSessionLimit)

	// Closing a session frees its slot.
	require.NoError(t, s1.Close(ctx))
	s3, err := m.NewSession(ctx)
	require.NoError(t, err)

	for _, s := range []schemas.SessionContext{s2, s3} {
		require.NoError(t, s.Close(ctx))
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(shutdownCtx))
}

func TestManagerSessionCloseIsIdempotent(t *testing.T) {
	m := NewManager(testBrowserConfig(1), zaptest.NewLogger(t))
	ctx := context.Background()

	s, err := m.NewSession(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID())

	require.NoError(t, s.Close(ctx))
	// A second close must not double-release the slot.
	require.NoError(t, s.Close(ctx))
	assert.Equal(t, 0, m.ActiveSessions())

	s2, err := m.NewSession(ctx)
	require.NoError(t, err)
	_, err = m.NewSession(ctx)
	assert.ErrorIs(t, err, ErrSessionLimit)

	require.NoError(t, s2.Close(ctx))
	require.NoError(t, m.Shutdown(ctx))
}

func TestManagerShutdownClosesOpenSessions(t *testing.T) {
	m := NewManager(testBrowserConfig(3), zaptest.NewLogger(t))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := m.NewSession(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, m.ActiveSessions())

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(shutdownCtx))
	assert.Equal(t, 0, m.ActiveSessions())
}

func TestManagerShutdownBeforeAnySession(t *testing.T) {
	m := NewManager(testBrowserConfig(1), zaptest.NewLogger(t))
	require.NoError(t, m.Shutdown(context.Background()))
}

func TestManagerRejectsCanceledContext(t *testing.T) {
	m := NewManager(testBrowserConfig(1), zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.NewSession(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseExtraArgs(t *testing.T) {
	opts := parseExtraArgs([]string{"--proxy-server=http://127.0.0.1:8080", "--mute-audio", ""})
	assert.Len(t, opts, 2)
}
