// Package replay records one seed per cycle and re-runs recorded cycles.
//
// At the end of every real cycle the runner queues a CycleSeedRecord to the
// append-only Cycle_Seeds ledger table. The record carries the seed and a
// checksum over a fixed set of cycle outputs, plus the fields the checksum
// was built from so a later replay can report which of them drifted.
//
// Replaying a cycle installs the recorded seed (or the cycle ID when no
// record exists), runs the cycle without mutating the ledger, and compares
// the fresh checksum with the recorded one. A mismatch is reported, never
// fatal.
package replay
