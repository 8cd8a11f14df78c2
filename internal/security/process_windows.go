//go:build windows

package security

// Windows has neither a umask nor rlimit-controlled core dumps.

func setUmask(int) int { return 0 }

func currentUmask() int { return 0o077 }

func disableCoreDumps() error { return nil }

func coreDumpsEnabled() bool { return false }
