//go:build !concolic_testing

// Package concolicassert gates the engine's debug-only invariant check
// (symbolic/concrete stack length parity) behind a build tag, mirroring
// the teacher's internal/buildoptions.IstTest switch: an ordinary build,
// including a plain `go test`, pays zero cost for it, and a build with
// -tags concolic_testing turns it on (see assert_on.go). Popping an empty
// ctx stack panics regardless of this switch.
package concolicassert

// Enabled is false in ordinary builds: StackDesynchronisation is a fatal
// assertion per the error taxonomy, but only checked when this is true.
const Enabled = false
