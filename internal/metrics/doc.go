// Package metrics defines the Prometheus counters exported by the receiver
// and the development pairing server.
//
// All Observe methods are safe to call on a nil *Receiver or *Server so
// components can run without metrics wired in.
package metrics
