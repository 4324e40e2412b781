package chromium

import (
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/guregu/null.v3"
)

func TestNewLaunchOptions(t *testing.T) {
	t.Parallel()

	opts := NewLaunchOptions()
	assert.True(t, opts.Headless.ValueOrZero())
	assert.Equal(t, DefaultLaunchTimeout, opts.Timeout)
	assert.Empty(t, opts.ExecutablePath)
}

func TestLaunchOptionsApplyEnv(t *testing.T) {
	t.Setenv("TUGBOAT_BROWSER_PATH", "/opt/chromium/chrome")
	t.Setenv("TUGBOAT_HEADLESS", "false")

	opts := NewLaunchOptions()
	require.NoError(t, opts.ApplyEnv())
	assert.Equal(t, "/opt/chromium/chrome", opts.ExecutablePath)
	assert.False(t, opts.Headless.ValueOrZero())
}

func TestLaunchOptionsApplyEnvUnset(t *testing.T) {
	t.Setenv("TUGBOAT_BROWSER_PATH", "")
	t.Setenv("TUGBOAT_HEADLESS", "")

	opts := NewLaunchOptions()
	opts.ExecutablePath = "/usr/bin/chromium"
	require.NoError(t, opts.ApplyEnv())
	// Absent overrides leave the explicit values alone.
	assert.Equal(t, "/usr/bin/chromium", opts.ExecutablePath)
	assert.True(t, opts.Headless.ValueOrZero())
}

func TestLaunchOptionsValidate(t *testing.T) {
	t.Parallel()

	t.Run("missing executable", func(t *testing.T) {
		t.Parallel()
		opts := NewLaunchOptions()
		require.Error(t, opts.Validate())
	})

	t.Run("bad viewport", func(t *testing.T) {
		t.Parallel()
		opts := NewLaunchOptions()
		opts.ExecutablePath = "/usr/bin/chromium"
		opts.Viewport = &Viewport{Width: 0, Height: 600}
		require.Error(t, opts.Validate())
	})

	t.Run("timeout defaulted", func(t *testing.T) {
		t.Parallel()
		opts := LaunchOptions{ExecutablePath: "/usr/bin/chromium"}
		require.NoError(t, opts.Validate())
		assert.Equal(t, DefaultLaunchTimeout, opts.Timeout)
	})
}

func TestBuildArgs(t *testing.T) {
	t.Parallel()

	opts := NewLaunchOptions()
	opts.ExecutablePath = "/usr/bin/chromium"
	opts.Viewport = &Viewport{Width: 1280, Height: 720}

	args := buildArgs(opts, 9222, "/tmp/profile")

	assert.Contains(t, args, "--remote-debugging-port=9222")
	assert.Contains(t, args, "--user-data-dir=/tmp/profile")
	assert.Contains(t, args, "--headless")
	assert.Contains(t, args, "--hide-scrollbars")
	assert.Contains(t, args, "--window-size=1280,720")
	assert.Contains(t, args, "--disable-background-timer-throttling")
	assert.Equal(t, "about:blank", args[len(args)-1])

	// The flag list is emitted in sorted order so launches are reproducible.
	assert.True(t, sort.StringsAreSorted(args[:len(args)-1]), "flags not sorted: %v", args)
}

func TestBuildArgsHeadful(t *testing.T) {
	t.Parallel()

	opts := NewLaunchOptions()
	opts.Headless = null.BoolFrom(false)

	args := buildArgs(opts, 9222, "/tmp/profile")
	for _, arg := range args {
		assert.False(t, strings.HasPrefix(arg, "--headless"), "headful launch got %s", arg)
		assert.NotEqual(t, "--hide-scrollbars", arg)
	}
}
