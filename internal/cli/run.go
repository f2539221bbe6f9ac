package cli

import (
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/overhuman/eventstore/internal/storage"
)

// Run executes the command line in args and returns the process exit code.
// Errors are written to stderr in the selected format with key material
// masked.
func Run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	return run(&RootOptions{UseEnv: true}, args, stdin, stdout, stderr)
}

func run(opts *RootOptions, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cmd := newRootCommand(opts)
	cmd.SetArgs(args)
	cmd.SetIn(stdin)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return WrapExitError(ExitCommandError, "invalid flags", err)
	})

	err := cmd.Execute()
	opts.writeAudit(stderr)
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		// Unknown commands and other cobra usage errors.
		err = WrapExitError(ExitCommandError, "usage", err)
	}

	code := GetExitCode(err)
	format := opts.Format
	if !slices.Contains(ValidFormats, format) {
		format = "text"
	}
	f := &OutputFormatter{Format: format, Writer: stderr}
	f.Error(code, opts.sanitize(err.Error()))
	return code
}

// opError maps a store error to an exit code. Rejected input is a command
// error; everything else is an operation failure.
func opError(op string, err error) error {
	switch storage.Classify(err) {
	case storage.OutcomeRejected:
		return WrapExitError(ExitCommandError, op, err)
	default:
		return WrapExitError(ExitFailure, op, err)
	}
}

func exactArgs(n int) cobra.PositionalArgs {
	return withExitCode(cobra.ExactArgs(n))
}

func minArgs(n int) cobra.PositionalArgs {
	return withExitCode(cobra.MinimumNArgs(n))
}

func rangeArgs(min, max int) cobra.PositionalArgs {
	return withExitCode(cobra.RangeArgs(min, max))
}

func withExitCode(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("usage: %s", cmd.UseLine()), err)
		}
		return nil
	}
}
