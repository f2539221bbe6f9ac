// Package main is the entry point for the eventstore CLI.
//
// Usage:
//
//	eventstore store [--id ID] [payload]   encrypt and store an event
//	eventstore fetch <id>                  decrypt and print one event
//	eventstore list                        print every readable event
//	eventstore delete <id>...              delete events by id
//	eventstore purge --force               delete every event in the namespace
//	eventstore stats                       summarize the namespace
//	eventstore version                     print version
//
// Settings come from flags, then EVENTSTORE_DIR, EVENTSTORE_NAMESPACE,
// EVENTSTORE_KEY, EVENTSTORE_BACKEND and EVENTSTORE_LOG_LEVEL.
package main

import (
	"os"

	"github.com/dogmatiq/ferrite"

	"github.com/overhuman/eventstore/internal/cli"
	"github.com/overhuman/eventstore/internal/config"
)

func main() {
	ferrite.Init(ferrite.WithRegistry(config.FerriteRegistry))
	os.Exit(cli.Run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}
