//go:build linux

package futex

import (
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Linux futex(2) operation codes. FUTEX_PRIVATE_FLAG restricts the futex to
// the calling process's address space, which is always true for us (every
// waiter/waker lives in the same Go process) and skips the kernel's
// cross-process hashing.
const (
	futexWaitPrivate = 0 | 128 // FUTEX_WAIT | FUTEX_PRIVATE_FLAG
	futexWakePrivate = 1 | 128 // FUTEX_WAKE | FUTEX_PRIVATE_FLAG
)

func wait(addr *uint32, expect uint32, timeout time.Duration) bool {
	var ts *unix.Timespec
	if timeout > 0 {
		t := unix.NsecToTimespec(timeout.Nanoseconds())
		ts = &t
	}
	_, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		uintptr(futexWaitPrivate),
		uintptr(expect),
		uintptr(unsafe.Pointer(ts)),
		0, 0,
	)
	// EAGAIN: *addr != expect, the caller lost the race and should re-check.
	// ETIMEDOUT: deadline elapsed.
	// EINTR: spurious wake, caller re-checks and re-waits if needed.
	return errno != unix.ETIMEDOUT
}

func wake(addr *uint32, n int) int {
	r, _, _ := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		uintptr(futexWakePrivate),
		uintptr(n),
		0, 0, 0,
	)
	return int(r)
}
