// Package main runs the in-memory pairing service used by castpair during
// development and tests. Receivers register public keys for short codes and
// poll for sealed payloads; companions look codes up and attach payloads.
//
// See package internal/server for the HTTP API.
//
// Behaviour
//
//   - All state is held in memory and lost on process exit.
//   - Codes expire after --code-ttl (default 10m); a sweeper removes them
//     every --sweep-interval.
//   - A lightweight access log records method, path, remote, status, bytes
//     and duration for each request at debug level.
//   - The default listen address is :8080; /metrics serves Prometheus metrics.
//
// The server never sees plaintext or private keys; it only stores public keys
// and sealed payloads.
package main
