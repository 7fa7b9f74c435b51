//go:build linux

package sched

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// audioNice is the niceness requested for capture threads
const audioNice = -11

// RaiseCurrentThread lowers the niceness of the calling OS thread. The caller
// must hold runtime.LockOSThread. Without CAP_SYS_NICE or a matching
// RLIMIT_NICE the request fails and the thread keeps its priority.
func RaiseCurrentThread() error {
	tid := unix.Gettid()
	if err := unix.Setpriority(unix.PRIO_PROCESS, tid, audioNice); err != nil {
		return fmt.Errorf("setpriority tid %d: %w", tid, err)
	}
	return nil
}

// Supported reports whether RaiseCurrentThread can work on this platform
func Supported() bool {
	return true
}
