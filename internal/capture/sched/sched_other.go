//go:build !linux

package sched

import "errors"

// RaiseCurrentThread is not available on this platform
func RaiseCurrentThread() error {
	return errors.ErrUnsupported
}

// Supported reports whether RaiseCurrentThread can work on this platform
func Supported() bool {
	return false
}
