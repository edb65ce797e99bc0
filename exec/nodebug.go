//go:build !tabledebug
// +build !tabledebug

package exec

const debugChecks = false
