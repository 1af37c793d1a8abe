// Package app wires application dependencies for the CLI.
//
// It loads Config from defaults, config files, CASTPAIR_* environment
// variables and command flags, configures logging, and builds the relay
// client, discovery channel and pairing services exposed via the Wire struct
// for commands to use.
package app
