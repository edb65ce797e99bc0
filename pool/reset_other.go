//go:build !linux

package pool

func reset(b []byte) {
	clear(b)
}
