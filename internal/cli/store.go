package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/overhuman/eventstore/internal/event"
)

// StoreOptions holds flags for the store command.
type StoreOptions struct {
	*RootOptions
	ID string
}

type storeResult struct {
	ID string `json:"id" yaml:"id"`
}

func (r storeResult) Text() string { return r.ID + "\n" }

// NewStoreCommand creates the store command.
func NewStoreCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StoreOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "store [payload]",
		Short: "Encrypt and store an event",
		Long: `Encrypt and store an event, replacing any event with the same id.

The payload is read from stdin when omitted or "-". A random id is
generated unless --id is given.

Example:
  eventstore store --id evt1 '{"a":1}'
  echo '{"a":1}' | eventstore store`,
		Args: rangeArgs(0, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return storeEvent(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ID, "id", "", "event id (default: random UUID)")

	return cmd
}

func storeEvent(opts *StoreOptions, args []string, cmd *cobra.Command) error {
	payload, err := readPayload(args, cmd.InOrStdin())
	if err != nil {
		return WrapExitError(ExitCommandError, "read payload", err)
	}

	id := opts.ID
	if id == "" {
		id = event.NewID()
	}

	_, s, err := opts.open(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.Store(cmd.Context(), event.New(id, payload)); err != nil {
		return opError("store", err)
	}
	return opts.formatter(cmd).Success(storeResult{ID: id})
}

func readPayload(args []string, stdin io.Reader) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		return args[0], nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", err
	}
	payload := strings.TrimRight(string(data), "\r\n")
	if payload == "" {
		return "", fmt.Errorf("payload is empty")
	}
	return payload, nil
}
