// Package domain defines the pairing data model and the contracts between
// the receiver's components.
//
// It contains plain types (wire messages, keys, codes) in the types
// subpackage and interfaces in the interfaces subpackage, re-exported here
// so callers can import a single package.
package domain
