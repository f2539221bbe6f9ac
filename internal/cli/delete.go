package cli

import (
	"strings"

	"github.com/spf13/cobra"
)

type deleteResult struct {
	Removed []string `json:"removed" yaml:"removed"`
	Missing []string `json:"missing,omitempty" yaml:"missing,omitempty"`
}

func (r deleteResult) Text() string {
	var b strings.Builder
	for _, id := range r.Removed {
		b.WriteString("removed " + id + "\n")
	}
	for _, id := range r.Missing {
		b.WriteString("missing " + id + "\n")
	}
	return b.String()
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete events by id",
		Long: `Delete events by id. Ids with no stored event are reported as
missing and do not fail the command.`,
		Args: minArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, s, err := rootOpts.open(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.Close()

			result := deleteResult{Removed: []string{}}
			for _, id := range args {
				removed, err := s.Delete(cmd.Context(), id)
				if err != nil {
					return opError("delete", err)
				}
				if removed {
					result.Removed = append(result.Removed, id)
				} else {
					result.Missing = append(result.Missing, id)
				}
			}
			return rootOpts.formatter(cmd).Success(result)
		},
	}
}
