// Package framing owns message boundary detection over a byte stream.
//
// Ownership boundary:
// - strategy definitions (none, delimiter, timeout, prefix length, script)
// - the per-connection frame buffer and its extraction loop
// - frame size limits
//
// Timers live with the caller; the framer only exposes Expire. Checksums are
// verified after framing by the caller.
package framing
