// Package cli implements the eventstore command-line interface.
package cli

import (
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/overhuman/eventstore/internal/config"
	"github.com/overhuman/eventstore/internal/observability"
	"github.com/overhuman/eventstore/internal/security"
	"github.com/overhuman/eventstore/internal/storage"
)

// Version is the eventstore release.
const Version = "0.1.0"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Format    string // "text" | "json" | "yaml"
	Dir       string
	Namespace string
	Key       string
	Backend   string
	Verbose   bool
	Audit     bool

	// UseEnv fills unset flags from EVENTSTORE_* variables.
	UseEnv bool

	secrets *security.SecretRegistry
	metrics *observability.MetricsCollector
	audit   *security.AuditLogger
	trail   *security.MemoryAuditStore
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json", "yaml"}

// NewRootCommand creates the root command, reading defaults from the
// environment.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{UseEnv: true})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eventstore",
		Short: "Inspect and manage an encrypted telemetry event store",
		Long: `Inspect and manage an encrypted telemetry event store.

Events are stored one file per event, encrypted with a key derived from
EVENTSTORE_KEY (or --key). Each namespace is a filename suffix, so several
namespaces can share one directory.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.Format, "format", "text", "output format (text|json|yaml)")
	flags.StringVar(&opts.Dir, "dir", "", "event directory (default $EVENTSTORE_DIR or ~/.eventstore)")
	flags.StringVarP(&opts.Namespace, "namespace", "n", "", "namespace suffix (default $EVENTSTORE_NAMESPACE or _default)")
	flags.StringVar(&opts.Key, "key", "", "encryption key (default $EVENTSTORE_KEY)")
	flags.StringVar(&opts.Backend, "backend", "", "storage backend (file|sqlite)")
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "log store operations to stderr")
	flags.BoolVar(&opts.Audit, "audit", false, "print the audit trail to stderr as JSON on exit")

	cmd.AddCommand(NewStoreCommand(opts))
	cmd.AddCommand(NewFetchCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewPurgeCommand(opts))
	cmd.AddCommand(NewStatsCommand(opts))
	cmd.AddCommand(NewVersionCommand(opts))

	return cmd
}

// config resolves flags, then the environment, into a store configuration.
func (o *RootOptions) config() (config.Config, error) {
	var options []config.Option
	if o.UseEnv {
		options = append(options, config.FromEnv())
	}
	if o.Dir != "" {
		options = append(options, config.WithDir(o.Dir))
	}
	if o.Namespace != "" {
		options = append(options, config.WithNamespace(o.Namespace))
	}
	if o.Key != "" {
		options = append(options, config.WithKey(o.Key))
	}
	if o.Backend != "" {
		options = append(options, config.WithBackend(config.Backend(o.Backend)))
	}
	if o.Verbose {
		options = append(options, config.WithLogLevel(observability.ParseLevel("debug")))
	}

	cfg, err := config.New(options...)
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	return cfg, nil
}

// open resolves the configuration once and opens the store it names. The
// store holds the namespace lock until closed.
func (o *RootOptions) open(stderr io.Writer) (config.Config, storage.EventStore, error) {
	cfg, err := o.config()
	if err != nil {
		return config.Config{}, nil, err
	}
	o.secrets = cfg.Secrets()
	o.metrics = observability.NewMetricsCollector(1000)
	o.trail = security.NewMemoryAuditStore()
	o.audit = security.NewAuditLogger(o.trail)

	s, err := cfg.Open(
		storage.WithLogger(cfg.Logger("eventstore", stderr)),
		storage.WithMetrics(o.metrics),
		storage.WithAudit(o.audit),
		storage.WithNamespaceLock(),
	)
	if err != nil {
		return cfg, nil, WrapExitError(ExitFailure, "open store", err)
	}
	return cfg, s, nil
}

// writeAudit prints the audit trail collected by the last opened store.
func (o *RootOptions) writeAudit(w io.Writer) {
	if !o.Audit || o.trail == nil {
		return
	}
	data, err := o.trail.MarshalJSON()
	if err != nil {
		return
	}
	fmt.Fprintln(w, o.sanitize(string(data)))
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{Format: o.Format, Writer: cmd.OutOrStdout()}
}

// sanitize removes key material from text destined for the terminal.
func (o *RootOptions) sanitize(s string) string {
	if o.Key != "" {
		s = security.MaskInString(s, o.Key)
	}
	return o.secrets.Sanitize(s)
}
