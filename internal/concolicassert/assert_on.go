//go:build concolic_testing

package concolicassert

// Enabled is true under -tags concolic_testing, turning on the debug-only
// stack parity assertion (S1) documented in SPEC_FULL.md §7.
const Enabled = true
