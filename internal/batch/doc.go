// Package batch holds the per-device provisioning state of one pairing session.
//
// A batch is the set of devices being onboarded together. Each device is an
// Entry identified by a stable integer key. The Store keeps entries in
// insertion order and carries the per-entry selection flag used for bulk
// actions, so there is no second collection to keep aligned with the entries.
//
// The gate functions (AllSerialsValid, AllPaired, AllNamed) are pure
// predicates over Store.Values(). They have no memory and never special-case
// a key: if one entry fails a predicate, the whole batch fails it.
//
// # Merge Semantics
//
// Store.Set applies a Patch. Nil patch fields leave the stored value alone,
// so a pin-code refresh and a name edit racing on the same key never clobber
// each other.
//
//	store.Set(key, batch.Patch{Name: batch.String("Kitchen")})
//	store.Set(key, batch.Patch{PairingStatus: batch.Status(batch.PairingSuccess)})
//
// # Thread Safety
//
// Store is not safe for concurrent use. The wizard controller serialises
// every access behind its own lock.
package batch
