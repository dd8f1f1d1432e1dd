// Package ext2err wraps POSIX errno codes the way the volume manager reports
// failures: every error that should be visible to a command's exit code is
// an *Error carrying the syscall.Errno the process should exit with.
package ext2err

import (
	"fmt"
	"syscall"
)

// Error pairs a POSIX errno with an optional, more specific message. The
// errno is what callers ultimately care about — it becomes the process exit
// code (spec.md §6/§7) — the message is for humans reading logs.
type Error struct {
	errno   syscall.Errno
	message string
}

// New creates an Error with the errno's default message.
func New(errno syscall.Errno) *Error {
	return &Error{errno: errno, message: errno.Error()}
}

// Newf creates an Error with a custom, formatted message.
func Newf(errno syscall.Errno, format string, args ...any) *Error {
	return &Error{errno: errno, message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	return e.message
}

// Errno returns the POSIX error code this Error represents. Commands exit
// with this value (spec.md §6).
func (e *Error) Errno() syscall.Errno {
	return e.errno
}

// Is lets errors.Is match against the sentinel Errno values below.
func (e *Error) Is(target error) bool {
	other, ok := target.(syscall.Errno)
	return ok && e.errno == other
}

// The five error kinds spec.md §7 names, mapped onto real POSIX errno
// values (spec.md §6's "exit codes are the host's POSIX errno values").
var (
	// NotFound is returned when a path, or a component of it, does not exist.
	NotFound = syscall.ENOENT
	// Exists is returned when an operation's target name is already present.
	Exists = syscall.EEXIST
	// IsDirectory is returned when an operation that requires a non-directory
	// target is given a directory.
	IsDirectory = syscall.EISDIR
	// NoSpace is returned when the inode or block bitmap has no free slots.
	NoSpace = syscall.ENOSPC
	// NotRecoverable is restore's failure mode; per spec.md §4.6 it
	// propagates to callers as NotFound.
	NotRecoverable = syscall.ENOENT
)
