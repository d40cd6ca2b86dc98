// Package wizard drives a batch of devices through the four pairing steps:
// serial entry, pin-code confirmation, device settings and finish.
//
// Step transitions are computed by Reduce, a pure function of the current
// state, an event and the gating predicates of the batch. The Controller
// owns the batch store, the status poller and the pin-code countdowns. It
// calls the pairing service and feeds every mutation through Reduce.
//
// Controller methods are safe for concurrent use. Remote calls run without
// holding the controller lock, so the batch may change while a call is in
// flight; responses are applied only to the entry and serial they were made
// for.
package wizard
