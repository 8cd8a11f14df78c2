//go:build unix

package security

import (
	"syscall"

	"golang.org/x/sys/unix"
)

func setUmask(mask int) int {
	return syscall.Umask(mask)
}

// currentUmask reads the umask. Reading it requires setting it, so the
// previous value is restored immediately.
func currentUmask() int {
	current := syscall.Umask(0)
	syscall.Umask(current)
	return current
}

func disableCoreDumps() error {
	return unix.Setrlimit(unix.RLIMIT_CORE, &unix.Rlimit{Cur: 0, Max: 0})
}

func coreDumpsEnabled() bool {
	var rlimit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_CORE, &rlimit); err != nil {
		return true
	}
	return rlimit.Cur > 0
}
