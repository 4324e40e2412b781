package chromium

import (
	"context"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tugboatci/tugboat/log"
)

// DefaultCloseGrace is how long a graceful close waits for the process to
// exit before force-terminating it.
const DefaultCloseGrace = 5 * time.Second

// BrowserProcess is one live browser process together with its discovered
// DevTools endpoint. At most one exists per launched browser; it is created
// by Launch and destroyed by Close or Kill.
type BrowserProcess struct {
	cmd         *exec.Cmd
	cancel      context.CancelFunc
	port        int
	wsURL       string
	userDataDir string
	logger      *log.Logger

	alive     atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
	exitCode  int
}

func newBrowserProcess(
	cmd *exec.Cmd, cancel context.CancelFunc, port int, userDataDir string, logger *log.Logger,
) *BrowserProcess {
	p := &BrowserProcess{
		cmd:         cmd,
		cancel:      cancel,
		port:        port,
		userDataDir: userDataDir,
		logger:      logger,
		done:        make(chan struct{}),
	}
	p.alive.Store(true)

	go func() {
		err := cmd.Wait()
		p.alive.Store(false)
		if exitErr, ok := err.(*exec.ExitError); ok {
			p.exitCode = exitErr.ExitCode()
		}
		_ = os.RemoveAll(p.userDataDir)
		close(p.done)
	}()

	return p
}

// Pid returns the process identifier.
func (p *BrowserProcess) Pid() int { return p.cmd.Process.Pid }

// Port returns the DevTools listening port.
func (p *BrowserProcess) Port() int { return p.port }

// WSURL returns the DevTools WebSocket endpoint.
func (p *BrowserProcess) WSURL() string { return p.wsURL }

// Alive reports whether the process is still recorded as running.
func (p *BrowserProcess) Alive() bool { return p.alive.Load() }

// Done is closed once the process has exited.
func (p *BrowserProcess) Done() <-chan struct{} { return p.done }

// ExitedAbnormally reports whether the process exited with a non-zero code.
func (p *BrowserProcess) ExitedAbnormally() bool {
	select {
	case <-p.done:
		return p.exitCode != 0
	default:
		return false
	}
}

// WaitGrace waits up to grace for the process to exit and force-terminates
// it otherwise. The shutdown command itself is the caller's responsibility
// (it is a protocol round-trip); local state is cleaned up unconditionally.
func (p *BrowserProcess) WaitGrace(grace time.Duration) {
	p.closeOnce.Do(func() {
		defer p.cancel()

		select {
		case <-p.done:
			p.logger.Debugf("chromium", "browser pid %d exited cleanly", p.Pid())
		case <-time.After(grace):
			p.logger.Warnf("chromium", "browser pid %d did not exit within %s, killing", p.Pid(), grace)
			_ = p.cmd.Process.Kill()
			<-p.done
		}
	})
}

// Kill force-terminates the process immediately.
func (p *BrowserProcess) Kill() {
	p.closeOnce.Do(func() {
		defer p.cancel()
		_ = p.cmd.Process.Kill()
		<-p.done
	})
}
