// Package config resolves the settings used to open an event store from
// options and, optionally, the environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dogmatiq/ferrite"

	"github.com/overhuman/eventstore/internal/observability"
	"github.com/overhuman/eventstore/internal/security"
	"github.com/overhuman/eventstore/internal/storage"
)

// FerriteRegistry is a registry of the environment variables used by the
// event store.
var FerriteRegistry = ferrite.NewRegistry(
	"overhuman.eventstore",
	"Event Store",
)

// Backend names a storage implementation.
type Backend string

const (
	BackendFile   Backend = "file"
	BackendSQLite Backend = "sqlite"
)

const (
	// DefaultNamespace is used when no namespace is configured.
	DefaultNamespace = "_default"

	// DefaultDirName is the directory created under the user's home
	// directory when no root directory is configured.
	DefaultDirName = ".eventstore"
)

// ErrNoKey is returned when no encryption key is configured.
var ErrNoKey = errors.New("no encryption key is configured, set EVENTSTORE_KEY or pass --key")

// Config holds the resolved settings.
type Config struct {
	UseEnv    bool
	Dir       string
	Namespace string
	Key       string
	Backend   Backend
	LogLevel  slog.Level

	logLevelSet bool
}

// Option configures a Config.
type Option func(*Config)

// FromEnv fills unset values from the EVENTSTORE_* environment variables.
func FromEnv() Option {
	return func(c *Config) { c.UseEnv = true }
}

// WithDir sets the root directory.
func WithDir(dir string) Option {
	return func(c *Config) { c.Dir = dir }
}

// WithNamespace sets the namespace suffix.
func WithNamespace(ns string) Option {
	return func(c *Config) { c.Namespace = ns }
}

// WithKey sets the encryption key.
func WithKey(key string) Option {
	return func(c *Config) { c.Key = key }
}

// WithBackend selects the storage backend.
func WithBackend(b Backend) Option {
	return func(c *Config) { c.Backend = b }
}

// WithLogLevel sets the minimum log level.
func WithLogLevel(l slog.Level) Option {
	return func(c *Config) {
		c.LogLevel = l
		c.logLevelSet = true
	}
}

// New applies options, fills the remaining values from the environment when
// FromEnv is given, then applies defaults and validates the result.
func New(options ...Option) (Config, error) {
	var c Config
	for _, opt := range options {
		opt(&c)
	}
	if err := c.finalize(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) finalize() error {
	c.finalizeDir()
	c.finalizeNamespace()
	c.finalizeKey()
	c.finalizeBackend()
	c.finalizeLogLevel()
	return c.Validate()
}

// Validate checks that the configuration can open a store.
func (c Config) Validate() error {
	if c.Key == "" {
		return ErrNoKey
	}
	switch c.Backend {
	case BackendFile, BackendSQLite:
	default:
		return fmt.Errorf("unknown backend %q, must be %q or %q", c.Backend, BackendFile, BackendSQLite)
	}
	return c.StoreConfig().Validate()
}

// StoreConfig returns the storage configuration.
func (c Config) StoreConfig() storage.Config {
	return storage.Config{
		Namespace: c.Namespace,
		RootDir:   c.Dir,
		Key:       c.Key,
	}
}

// Open creates the root directory if needed and opens the configured
// backend.
func (c Config) Open(opts ...storage.Option) (storage.EventStore, error) {
	if err := os.MkdirAll(c.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("create %s: %w", c.Dir, err)
	}
	switch c.Backend {
	case BackendSQLite:
		return storage.NewSQLiteStore(c.StoreConfig(), opts...)
	default:
		return storage.NewFileStore(c.StoreConfig(), opts...)
	}
}

// Logger returns a JSON logger writing to w at the configured level.
// A nil w logs to os.Stderr.
func (c Config) Logger(component string, w io.Writer) *observability.Logger {
	return observability.NewLoggerAtLevel(component, w, c.LogLevel)
}

// Secrets returns a registry holding the key, for scrubbing output.
func (c Config) Secrets() *security.SecretRegistry {
	r := security.NewSecretRegistry()
	r.Register(c.Key)
	return r
}

// String describes the configuration with the key masked.
func (c Config) String() string {
	return fmt.Sprintf("backend=%s level=%s %s", c.Backend, c.LogLevel, c.StoreConfig())
}

func defaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return DefaultDirName
	}
	return filepath.Join(home, DefaultDirName)
}

func parseBackend(s string) Backend {
	return Backend(strings.ToLower(strings.TrimSpace(s)))
}
