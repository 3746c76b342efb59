package internal

import "github.com/talostrading/ev/everrors"

var (
	ErrTimeout      = everrors.ErrTimeout
	ErrNotSupported = everrors.ErrNotSupported
	ErrClosed       = everrors.ErrClosed
)
