// Package commands defines the castpair CLI and wires dependencies for subcommands.
//
// Commands
//
//   - pair          Run a receiver session: register, show the code, wait for a claim
//   - claim         Act as the companion: probe a receiver and hand it a payload
//   - config write  Write the effective configuration to a YAML file
//
// # Implementation
//
// The root command loads configuration (defaults, castpair.yaml, CASTPAIR_*
// variables, flags), configures logging and builds the dependency graph
// before any subcommand runs, so handlers share one relay client and one
// metrics registry.
package commands
