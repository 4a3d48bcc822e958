//go:build unix

package config

import (
	"os"
	"syscall"
)

// tryLock takes an exclusive flock without blocking.
func (l *fileLock) tryLock() error {
	return syscall.Flock(int(l.file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
}

func (l *fileLock) unlock() {
	syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
}

// isProcessAlive sends signal 0 to pid.
func isProcessAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
