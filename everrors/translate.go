package everrors

import (
	"errors"
	"fmt"
	"syscall"
)

var errnoTable = map[syscall.Errno]error{
	syscall.EAGAIN:    ErrWouldBlock,
	syscall.ECANCELED: ErrCancelled,
	syscall.ETIMEDOUT: ErrTimeout,
	syscall.EEXIST:    ErrExist,
	syscall.EBUSY:     ErrBusy,
	syscall.EACCES:    ErrAccess,
	syscall.EPERM:     ErrAccess,
	syscall.ENOMEM:    ErrNoMem,
	syscall.ENOBUFS:   ErrNoSpace,
	syscall.EINVAL:    ErrInvalid,
	syscall.ENOENT:    ErrNotFound,
	syscall.EBADF:     ErrBadFd,
	syscall.EINTR:     ErrInterrupted,
	syscall.ENOSYS:    ErrNotSupported,
}

// Translate maps an OS level error into the portable error space.
//
// Errors which already belong to the portable space are returned unchanged.
// Errnos without a portable counterpart are wrapped in ErrPlatform; the
// original errno stays reachable through errors.As.
func Translate(err error) error {
	if err == nil {
		return nil
	}

	if Portable(err) {
		return err
	}

	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return fmt.Errorf("%w: %w", ErrPlatform, err)
	}

	if mapped, ok := errnoTable[errno]; ok {
		return fmt.Errorf("%w: %w", mapped, err)
	}
	return fmt.Errorf("%w: %w", ErrPlatform, err)
}

// Portable returns true if err is, or wraps, one of this package's errors.
func Portable(err error) bool {
	for _, target := range portable {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

var portable = []error{
	ErrWouldBlock,
	ErrCancelled,
	ErrTimeout,
	ErrExist,
	ErrBusy,
	ErrAccess,
	ErrNoMem,
	ErrNoSpace,
	ErrInvalid,
	ErrNotFound,
	ErrBadFd,
	ErrClosed,
	ErrInterrupted,
	ErrOutOfOrder,
	ErrNotSupported,
	ErrWorkPanic,
	ErrPlatform,
}
