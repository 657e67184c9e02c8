// Package piggyback manages the on-disk cache of data one monitored source
// relays on behalf of other hosts. The layout is
// <PayloadRoot>/<target>/<source> for raw payload files plus one zero-byte
// status file per source under <StatusRoot>; a file's modification time is
// its only liveness signal. The package resolves layered time-setting rules
// per (source, target) pair, evaluates validity (age ceiling, abandonment,
// validity window), reads payloads with per-entry failure isolation, writes
// delivery batches with temp-file + rename + timestamp synchronisation, and
// sweeps outdated files. Readers, writers and sweepers may run concurrently
// with no coordination beyond filesystem atomicity; vanished files and
// directories made non-empty by a race are treated as benign.
package piggyback
