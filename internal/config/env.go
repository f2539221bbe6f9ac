package config

import (
	"strings"

	"github.com/dogmatiq/ferrite"

	"github.com/overhuman/eventstore/internal/observability"
)

var dirVar = ferrite.
	String("EVENTSTORE_DIR", "the directory holding encrypted event files").
	Optional(ferrite.WithRegistry(FerriteRegistry))

var namespaceVar = ferrite.
	String("EVENTSTORE_NAMESPACE", "the filename suffix that partitions the directory").
	WithDefault(DefaultNamespace).
	WithConstraint(
		"must not contain a path separator",
		func(v string) bool { return !strings.ContainsAny(v, `/\`) },
	).
	Optional(ferrite.WithRegistry(FerriteRegistry))

var keyVar = ferrite.
	String("EVENTSTORE_KEY", "the key from which the event encryption key is derived").
	WithSensitiveContent().
	WithConstraint(
		"must be at least 8 characters",
		func(v string) bool { return len(v) >= 8 },
	).
	Optional(ferrite.WithRegistry(FerriteRegistry))

var backendVar = ferrite.
	Enum("EVENTSTORE_BACKEND", "the storage backend").
	WithMembers(string(BackendFile), string(BackendSQLite)).
	WithDefault(string(BackendFile)).
	Optional(ferrite.WithRegistry(FerriteRegistry))

var logLevelVar = ferrite.
	Enum("EVENTSTORE_LOG_LEVEL", "the minimum log level").
	WithMembers("debug", "info", "warn", "error").
	WithDefault("warn").
	Optional(ferrite.WithRegistry(FerriteRegistry))

func (c *Config) finalizeDir() {
	if c.Dir != "" {
		return
	}
	if c.UseEnv {
		if v, ok := dirVar.Value(); ok && v != "" {
			c.Dir = v
			return
		}
	}
	c.Dir = defaultDir()
}

func (c *Config) finalizeNamespace() {
	if c.Namespace != "" {
		return
	}
	if c.UseEnv {
		if v, ok := namespaceVar.Value(); ok {
			c.Namespace = v
			return
		}
	}
	c.Namespace = DefaultNamespace
}

func (c *Config) finalizeKey() {
	if c.Key != "" || !c.UseEnv {
		return
	}
	if v, ok := keyVar.Value(); ok {
		c.Key = v
	}
}

func (c *Config) finalizeBackend() {
	if c.Backend != "" {
		c.Backend = parseBackend(string(c.Backend))
		return
	}
	if c.UseEnv {
		if v, ok := backendVar.Value(); ok {
			c.Backend = Backend(v)
			return
		}
	}
	c.Backend = BackendFile
}

func (c *Config) finalizeLogLevel() {
	if c.logLevelSet {
		return
	}
	if c.UseEnv {
		if v, ok := logLevelVar.Value(); ok {
			c.LogLevel = observability.ParseLevel(v)
			return
		}
	}
	c.LogLevel = observability.ParseLevel("warn")
}
