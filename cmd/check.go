package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/tugboatci/tugboat/browser"
	"github.com/tugboatci/tugboat/chromium"
	"github.com/tugboatci/tugboat/errext"
	"github.com/tugboatci/tugboat/event"
	"github.com/tugboatci/tugboat/report"
	"github.com/tugboatci/tugboat/runner"
	"github.com/tugboatci/tugboat/trace"
)

type checkFlags struct {
	browserPath string
	headless    bool
	loadState   string
	selector    string
	timeout     time.Duration
	reportPath  string
	noIsolate   bool
}

// getCheckCmd builds `tugboat check <url>...`: one registered test per URL
// that navigates to it and optionally waits for a selector. Exit code is 0
// only when every check passed.
func getCheckCmd(root *rootCommand) *cobra.Command {
	var flags checkFlags

	cmd := &cobra.Command{
		Use:   "check <url> [url...]",
		Short: "navigate to the given URLs and report pass/fail",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd.Context(), root, flags, args)
		},
	}

	cmd.Flags().StringVar(&flags.browserPath, "browser-path", "", "path to the browser executable (env: TUGBOAT_BROWSER_PATH)")
	cmd.Flags().BoolVar(&flags.headless, "headless", true, "run the browser headless (env: TUGBOAT_HEADLESS)")
	cmd.Flags().StringVar(&flags.loadState, "load-state", string(browser.LoadStateLoad), "readiness to wait for: load, domcontentloaded or networkidle")
	cmd.Flags().StringVar(&flags.selector, "selector", "", "additionally wait for this selector to exist")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", browser.DefaultNavigationTimeout, "per-navigation timeout")
	cmd.Flags().StringVar(&flags.reportPath, "report", "", "write a JSON report to this path")
	cmd.Flags().BoolVar(&flags.noIsolate, "no-isolate", false, "share one browsing context across all checks")

	return cmd
}

func runCheck(ctx context.Context, root *rootCommand, flags checkFlags, urls []string) error {
	logger := root.componentLogger()

	opts := chromium.NewLaunchOptions()
	opts.ExecutablePath = flags.browserPath
	opts.Headless.SetValid(flags.headless)
	if err := opts.ApplyEnv(); err != nil {
		return errext.WithExitCodeIfNone(err, errext.SetupError)
	}

	bus := event.NewEventSystem(100, root.logger)
	recorder := trace.NewRecorder(bus, logger)
	defer recorder.Stop()

	b, err := browser.Launch(ctx, opts, bus, logger)
	if err != nil {
		return errext.WithExitCodeIfNone(err, errext.BrowserError)
	}
	defer b.Close(ctx) //nolint:errcheck

	r := runner.New(bus, logger)
	r.Describe("check", func() {
		for _, url := range urls {
			url := url
			r.Test(url, func(ctx context.Context) error {
				_, err := b.Page().Navigate(ctx, url, browser.NavigationOptions{
					LoadState: browser.LoadState(flags.loadState),
					Timeout:   flags.timeout,
				})
				if err != nil {
					return err
				}
				if flags.selector != "" {
					return b.Page().WaitForSelector(ctx, flags.selector, browser.WaitOptions{})
				}
				return nil
			})
		}
	})

	summary, runErr := r.Run(ctx, runner.RunOptions{
		Isolate:  !flags.noIsolate,
		Contexts: b.Contexts(),
	})

	rep := report.BuildJSON(summary, r.Results(), recorder.Entries())
	report.WriteConsole(os.Stdout, rep, root.noColor)
	if flags.reportPath != "" {
		if werr := report.WriteJSON(afero.NewOsFs(), flags.reportPath, rep); werr != nil {
			logger.Errorf("check", "%s", werr)
		}
	}

	if runErr != nil {
		return errext.WithExitCodeIfNone(runErr, errext.SetupError)
	}
	if !summary.AllPassed() {
		return errext.WithExitCodeIfNone(
			errors.New(failLine(summary)), errext.TestsFailed)
	}
	return nil
}

func failLine(s *runner.Summary) string {
	return fmt.Sprintf("%d of %d checks did not pass", s.Failed+s.Skipped, s.Total)
}
