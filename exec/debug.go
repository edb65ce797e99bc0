//go:build tabledebug
// +build tabledebug

package exec

// debugChecks enables invariant checks that are too expensive for release builds.
const debugChecks = true
