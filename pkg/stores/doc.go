// Package stores provides ledger store implementations for the cycle kernel.
// SQLiteStore keeps ledger tables in SQLite with embedded migrations, and
// MemoryStore keeps them in memory while recording every call. Both also
// keep a history of cycle runs.
package stores
