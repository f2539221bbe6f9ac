package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/overhuman/eventstore/internal/observability"
)

// PurgeOptions holds flags for the purge command.
type PurgeOptions struct {
	*RootOptions
	Force bool
}

type purgeResult struct {
	Namespace string `json:"namespace" yaml:"namespace"`
	Removed   int64  `json:"removed" yaml:"removed"`
}

func (r purgeResult) Text() string {
	return fmt.Sprintf("removed %d events from %s\n", r.Removed, r.Namespace)
}

// NewPurgeCommand creates the purge command.
func NewPurgeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PurgeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete every event in the namespace",
		Long: `Delete every event in the namespace. Files belonging to other
namespaces in the same directory are left untouched.`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !opts.Force {
				return NewExitError(ExitCommandError, "purge deletes every event in the namespace; pass --force to confirm")
			}

			cfg, s, err := opts.open(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.DeleteAllInNamespace(cmd.Context()); err != nil {
				return opError("purge", err)
			}
			return opts.formatter(cmd).Success(purgeResult{
				Namespace: cfg.Namespace,
				Removed:   opts.metrics.Counter(observability.CounterNamespacePurged),
			})
		},
	}

	cmd.Flags().BoolVarP(&opts.Force, "force", "f", false, "confirm deletion")

	return cmd
}
