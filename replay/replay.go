// Package replay enforces single-use semantics for payment nonces: each
// key transitions once from absent to present and stays present for the
// replay-protection window.
package replay

// Store tracks consumed payment keys. Implementations must be safe for
// concurrent use; the interface is designed to support both in-memory
// and distributed backends (Redis, database, etc.) so multi-node
// deployments can share one replay window.
type Store interface {
	// TryInsert atomically records key. It returns true when the key was
	// absent and is now present, false when the key was already present.
	// Concurrent callers with the same key observe exactly one true.
	TryInsert(key string) bool

	// Remove rolls back a key recorded by TryInsert, so a payment whose
	// settlement failed transiently can be retried with the same nonce.
	Remove(key string)

	// Has reports whether key is currently present.
	Has(key string) bool
}
