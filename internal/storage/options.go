package storage

import (
	"github.com/overhuman/eventstore/internal/observability"
	"github.com/overhuman/eventstore/internal/security"
)

// Option configures a store.
type Option func(*options)

type options struct {
	logger  *observability.Logger
	metrics *observability.MetricsCollector
	audit   *security.AuditLogger
	cipher  security.Cipher
	lock    bool
}

// WithLogger sets the logger used to report operation outcomes.
func WithLogger(l *observability.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics sets the collector that receives outcome counters and latency.
func WithMetrics(m *observability.MetricsCollector) Option {
	return func(o *options) { o.metrics = m }
}

// WithAudit records failures and purges to an audit trail.
func WithAudit(a *security.AuditLogger) Option {
	return func(o *options) { o.audit = a }
}

// WithCipher replaces the default AES-GCM encryptor built from Config.Key.
func WithCipher(c security.Cipher) Option {
	return func(o *options) { o.cipher = c }
}

// WithNamespaceLock makes the store hold a PID lock file for its namespace
// while open, so a second live store for the same namespace and root
// directory fails to open.
func WithNamespaceLock() Option {
	return func(o *options) { o.lock = true }
}

func newOptions(component string, key string, opts []Option) (options, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = observability.Discard()
	}
	o.logger = o.logger.With("store", component)
	if o.metrics == nil {
		o.metrics = observability.NewMetricsCollector(0)
	}
	if o.cipher == nil {
		enc, err := security.NewEncryptor(key)
		if err != nil {
			return o, err
		}
		o.cipher = enc
	}
	return o, nil
}
