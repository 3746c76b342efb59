package internal

import (
	"io"
	"sync/atomic"
	"time"
)

var _ Poller = &PortablePoller{}

// PortablePoller is a Poller which only knows how to wait and be woken up.
//
// It backs loops on platforms without a native backend, and loops which only
// drive timers and thread-pool completions. File descriptor registrations are
// rejected with ErrNotSupported.
type PortablePoller struct {
	wake   chan struct{}
	timer  *time.Timer
	closed uint32
}

func NewPortablePoller() *PortablePoller {
	t := time.NewTimer(time.Hour)
	t.Stop()
	return &PortablePoller{
		wake:  make(chan struct{}, 1),
		timer: t,
	}
}

func (p *PortablePoller) Poll(timeoutMs int) (int, error) {
	if p.Closed() {
		return 0, ErrClosed
	}

	switch {
	case timeoutMs == 0:
		select {
		case <-p.wake:
		default:
		}
	case timeoutMs < 0:
		<-p.wake
	default:
		p.timer.Reset(time.Duration(timeoutMs) * time.Millisecond)
		select {
		case <-p.wake:
		case <-p.timer.C:
		}
		p.timer.Stop()
	}
	return 0, nil
}

func (p *PortablePoller) Wakeup() error {
	if p.Closed() {
		return ErrClosed
	}
	select {
	case p.wake <- struct{}{}:
	default:
		// A wakeup is already pending.
	}
	return nil
}

func (p *PortablePoller) SetRead(*PollData) error  { return ErrNotSupported }
func (p *PortablePoller) SetWrite(*PollData) error { return ErrNotSupported }
func (p *PortablePoller) DelRead(*PollData) error  { return nil }
func (p *PortablePoller) DelWrite(*PollData) error { return nil }
func (p *PortablePoller) Del(*PollData) error      { return nil }
func (p *PortablePoller) Registered() int          { return 0 }

func (p *PortablePoller) Close() error {
	if !atomic.CompareAndSwapUint32(&p.closed, 0, 1) {
		return io.EOF
	}
	p.timer.Stop()
	return nil
}

func (p *PortablePoller) Closed() bool {
	return atomic.LoadUint32(&p.closed) == 1
}
