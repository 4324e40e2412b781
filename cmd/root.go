// Package cmd is the thin CLI glue around the tugboat packages.
package cmd

import (
	"context"
	"errors"
	"os"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/tugboatci/tugboat/errext"
	"github.com/tugboatci/tugboat/log"
)

const version = "0.3.0"

type rootCommand struct {
	cmd    *cobra.Command
	logger *logrus.Logger

	verbose bool
	quiet   bool
	noColor bool
}

func newRootCommand() *rootCommand {
	c := &rootCommand{logger: logrus.New()}

	c.cmd = &cobra.Command{
		Use:           "tugboat",
		Short:         "a headless-browser UI test driver",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			c.setupLogging()
		},
	}
	c.cmd.PersistentFlags().AddFlagSet(c.persistentFlagSet())
	c.cmd.AddCommand(getCheckCmd(c))
	return c
}

func (c *rootCommand) persistentFlagSet() *pflag.FlagSet {
	flags := pflag.NewFlagSet("", pflag.ContinueOnError)
	flags.BoolVarP(&c.verbose, "verbose", "v", false, "enable verbose logging")
	flags.BoolVarP(&c.quiet, "quiet", "q", false, "disable all logging below warnings")
	flags.BoolVar(&c.noColor, "no-color", false, "disable colored output")
	return flags
}

func (c *rootCommand) setupLogging() {
	c.logger.SetOutput(colorable.NewColorableStderr())
	c.logger.SetFormatter(&logrus.TextFormatter{
		ForceColors:   !c.noColor && isatty.IsTerminal(os.Stderr.Fd()),
		DisableColors: c.noColor,
	})
	switch {
	case c.verbose:
		c.logger.SetLevel(logrus.DebugLevel)
	case c.quiet:
		c.logger.SetLevel(logrus.WarnLevel)
	default:
		c.logger.SetLevel(logrus.InfoLevel)
	}
}

func (c *rootCommand) componentLogger() *log.Logger {
	return log.New(c.logger, c.verbose, nil)
}

// Execute runs the root command and exits the process with the error's
// attached exit code on failure.
func Execute() {
	c := newRootCommand()
	err := c.cmd.ExecuteContext(context.Background())
	if err == nil {
		return
	}

	c.logger.Error(err.Error())
	var ecerr errext.HasExitCode
	if errors.As(err, &ecerr) {
		os.Exit(int(ecerr.ExitCode()))
	}
	os.Exit(int(errext.GenericError))
}
