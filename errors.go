package ev

import "github.com/talostrading/ev/everrors"

var (
	ErrCancelled  = everrors.ErrCancelled
	ErrExist      = everrors.ErrExist
	ErrBusy       = everrors.ErrBusy
	ErrAccess     = everrors.ErrAccess
	ErrNoSpace    = everrors.ErrNoSpace
	ErrInvalid    = everrors.ErrInvalid
	ErrClosed     = everrors.ErrClosed
	ErrOutOfOrder = everrors.ErrOutOfOrder
	ErrWorkPanic  = everrors.ErrWorkPanic
)
