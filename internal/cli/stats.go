package cli

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/overhuman/eventstore/internal/observability"
	"github.com/overhuman/eventstore/internal/security"
)

type statsResult struct {
	Namespace     string           `json:"namespace" yaml:"namespace"`
	Backend       string           `json:"backend" yaml:"backend"`
	Events        int              `json:"events" yaml:"events"`
	PayloadBytes  int              `json:"payload_bytes" yaml:"payload_bytes"`
	Unreadable    int64            `json:"unreadable" yaml:"unreadable"`
	UnreadableIDs []string         `json:"unreadable_ids,omitempty" yaml:"unreadable_ids,omitempty"`
	Fetches       int              `json:"fetches" yaml:"fetches"`
	FetchP95Ms    float64          `json:"fetch_p95_ms" yaml:"fetch_p95_ms"`
	AuditEvents   int              `json:"audit_events" yaml:"audit_events"`
	Counters      map[string]int64 `json:"counters" yaml:"counters"`
}

func (r statsResult) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "namespace:     %s\n", r.Namespace)
	fmt.Fprintf(&b, "backend:       %s\n", r.Backend)
	fmt.Fprintf(&b, "events:        %d\n", r.Events)
	fmt.Fprintf(&b, "payload bytes: %d\n", r.PayloadBytes)
	fmt.Fprintf(&b, "unreadable:    %d\n", r.Unreadable)
	for _, id := range r.UnreadableIDs {
		fmt.Fprintf(&b, "  %s\n", id)
	}
	fmt.Fprintf(&b, "fetches:       %d\n", r.Fetches)
	fmt.Fprintf(&b, "fetch p95:     %.2fms\n", r.FetchP95Ms)
	fmt.Fprintf(&b, "audit events:  %d\n", r.AuditEvents)
	names := make([]string, 0, len(r.Counters))
	for name := range r.Counters {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		fmt.Fprintf(&b, "%-15s%d\n", name+":", r.Counters[name])
	}
	return b.String()
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize the events in the namespace",
		Long: `Summarize the events in the namespace. Unreadable counts events
that exist but could not be read or decrypted, usually because they were
written with a different key. Their ids are listed from the audit trail.`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, s, err := rootOpts.open(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.Close()

			start := time.Now()
			events, err := s.FetchAll(cmd.Context())
			if err != nil {
				return opError("stats", err)
			}

			m := rootOpts.metrics
			result := statsResult{
				Namespace:  cfg.Namespace,
				Backend:    string(cfg.Backend),
				Events:     len(events),
				Unreadable: m.Counter(observability.CounterDecryptFailed) + m.Counter(observability.CounterFetchFailed),
				Fetches:    len(m.QueryWithLabel(observability.MetricLatency, "op", "fetch")),
				Counters:   m.Snapshot(),
			}
			for _, e := range events {
				result.PayloadBytes += len(e.Payload)
			}
			result.FetchP95Ms = m.Summarize(observability.MetricLatency, start).P95

			if result.UnreadableIDs, err = unreadableIDs(rootOpts.audit, cfg.Namespace); err != nil {
				return WrapExitError(ExitFailure, "stats", err)
			}
			if result.AuditEvents, err = rootOpts.audit.Count(); err != nil {
				return WrapExitError(ExitFailure, "stats", err)
			}
			return rootOpts.formatter(cmd).Success(result)
		},
	}
}

// unreadableIDs lists the resources of read and decrypt failures recorded
// for the namespace, sorted and deduplicated.
func unreadableIDs(audit *security.AuditLogger, namespace string) ([]string, error) {
	var ids []string
	for _, t := range []security.AuditEventType{security.AuditReadFailed, security.AuditDecryptFailed} {
		found, err := audit.Query(security.AuditFilter{Type: t, Namespace: namespace, Limit: 10000})
		if err != nil {
			return nil, err
		}
		for _, e := range found {
			ids = append(ids, e.Resource)
		}
	}
	slices.Sort(ids)
	return slices.Compact(ids), nil
}
