// Package registration exchanges a device public key for a pairing code.
//
// Registration never gives up on its own: every failure is logged and the
// same public key is retried after RetryPolicy.Delay. By default the delay is
// fixed and there is no attempt ceiling; a policy may grow the delay up to a
// cap or bound the number of attempts. Only the caller's context ends the
// loop early.
package registration
