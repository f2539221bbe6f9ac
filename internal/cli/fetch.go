package cli

import (
	"github.com/spf13/cobra"

	"github.com/overhuman/eventstore/internal/event"
)

type eventResult event.Event

func (r eventResult) Text() string { return r.Payload + "\n" }

// NewFetchCommand creates the fetch command.
func NewFetchCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch <id>",
		Short: "Decrypt and print one event",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, s, err := rootOpts.open(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.Close()

			e, err := s.Fetch(cmd.Context(), args[0])
			if err != nil {
				return opError("fetch", err)
			}
			return rootOpts.formatter(cmd).Success(eventResult(e))
		},
	}
}
