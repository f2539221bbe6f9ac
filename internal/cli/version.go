package cli

import (
	"runtime"

	"github.com/spf13/cobra"
)

type versionResult struct {
	Version string `json:"version" yaml:"version"`
	Go      string `json:"go" yaml:"go"`
}

func (r versionResult) Text() string { return "eventstore v" + r.Version + "\n" }

// NewVersionCommand creates the version command.
func NewVersionCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.formatter(cmd).Success(versionResult{Version: Version, Go: runtime.Version()})
		},
	}
}
