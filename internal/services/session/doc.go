// Package session runs one pairing session on a receiver.
//
// A Controller walks an explicit state machine:
//
//	INIT -> REGISTERING -> ARMED -> COMPLETE
//	                         |  \-> ABORTED    (sender disconnected / channel failed)
//	                         |  \-> FAILED     (decryption failure)
//	                         \-> RESTARTING -> REGISTERING   (code expired)
//	                                    \-> ABORTED
//
// Key generation failure moves INIT straight to FAILED. While ARMED the
// discovery adapter answers probes on transport goroutines and the poller
// runs on the controller's goroutine; they share only the current code. A
// disconnect cancels the session context, which cancels any pending fetch or
// registration retry, and no poll result is used after it.
//
// RESTARTING waits on the controller's clock before registering again, with
// a delay that grows under the restart policy; a disconnect during the wait
// aborts. The ephemeral keypair is wiped on every exit path, and on
// RESTARTING when the controller is configured to rotate keys.
package session
