package everrors

import "errors"

// Portable error space shared by every backend. Callers compare with
// errors.Is; the reactor never branches on raw OS error codes.
var (
	ErrWouldBlock   = errors.New("operation would block")
	ErrCancelled    = errors.New("operation cancelled")
	ErrTimeout      = errors.New("operation timed out")
	ErrExist        = errors.New("entry already exists")
	ErrBusy         = errors.New("resource busy")
	ErrAccess       = errors.New("permission denied")
	ErrNoMem        = errors.New("out of memory")
	ErrNoSpace      = errors.New("no buffer space available")
	ErrInvalid      = errors.New("invalid argument")
	ErrNotFound     = errors.New("no such entry")
	ErrBadFd        = errors.New("bad file descriptor")
	ErrClosed       = errors.New("handle is closing or closed")
	ErrInterrupted  = errors.New("interrupted system call")
	ErrOutOfOrder   = errors.New("operation would break FIFO order")
	ErrNotSupported = errors.New("operation not supported by backend")
	ErrWorkPanic    = errors.New("work function panicked")

	// ErrPlatform wraps any OS error without a portable counterpart.
	ErrPlatform = errors.New("platform error")
)
