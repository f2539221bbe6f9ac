package cli

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/overhuman/eventstore/internal/event"
)

type listResult struct {
	Namespace string        `json:"namespace" yaml:"namespace"`
	Events    []event.Event `json:"events" yaml:"events"`
}

func (r listResult) Text() string {
	var b strings.Builder
	for _, e := range r.Events {
		fmt.Fprintf(&b, "%s\t%s\n", e.ID, e.Payload)
	}
	return b.String()
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print every readable event in the namespace",
		Long: `Print every readable event in the namespace, sorted by id.

Events that cannot be decrypted are skipped; see "eventstore stats".`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, s, err := rootOpts.open(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.Close()

			events, err := s.FetchAll(cmd.Context())
			if err != nil {
				return opError("list", err)
			}
			slices.SortFunc(events, func(a, b event.Event) int { return strings.Compare(a.ID, b.ID) })

			return rootOpts.formatter(cmd).Success(listResult{Namespace: cfg.Namespace, Events: events})
		},
	}
}
