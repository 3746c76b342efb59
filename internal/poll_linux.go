//go:build linux

package internal

import (
	"io"
	"os"
	"sync/atomic"

	"go.uber.org/multierr"
	"golang.org/x/sys/unix"
)

const DefaultMaxEvents = 128

var _ Poller = &EpollPoller{}

func toEpoll(ev Events) uint32 {
	var flags uint32
	if ev.Has(EventRead) {
		flags |= unix.EPOLLIN
	}
	if ev.Has(EventWrite) {
		flags |= unix.EPOLLOUT
	}
	return flags
}

func fromEpoll(flags uint32) Events {
	var ev Events
	if flags&(unix.EPOLLIN|unix.EPOLLPRI) != 0 {
		ev |= EventRead
	}
	if flags&unix.EPOLLOUT != 0 {
		ev |= EventWrite
	}
	if flags&unix.EPOLLERR != 0 {
		ev |= EventError
	}
	if flags&(unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 {
		ev |= EventHup
	}
	return ev
}

type EpollPoller struct {
	// fd is the file descriptor returned by calling epoll_create1(0).
	fd int

	// events receives the events which occurred in a wait call.
	events []unix.EpollEvent

	// waker is used to wake up the poller when another goroutine calls
	// Wakeup. It is registered for reads with epoll.
	waker *EventFd

	// registered maps file descriptors to the caller owned PollData, keeping
	// it reachable while any interest is registered.
	registered map[int]*PollData

	// closed is true if Close() has been called.
	closed uint32

	wakerBytes [8]byte
}

func NewEpollPoller(maxEvents int) (*EpollPoller, error) {
	if maxEvents <= 0 {
		maxEvents = DefaultMaxEvents
	}

	epollFd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, os.NewSyscallError("epoll_create1", err)
	}

	waker, err := NewEventFd(true)
	if err != nil {
		_ = unix.Close(epollFd)
		return nil, err
	}

	p := &EpollPoller{
		fd:         epollFd,
		waker:      waker,
		events:     make([]unix.EpollEvent, maxEvents),
		registered: make(map[int]*PollData),
	}

	// The waker is not kept in registered: it is not a user registration.
	if err := p.ctl(unix.EPOLL_CTL_ADD, waker.Fd(), EventRead); err != nil {
		_ = waker.Close()
		_ = unix.Close(epollFd)
		return nil, err
	}

	return p, nil
}

func (p *EpollPoller) Poll(timeoutMs int) (int, error) {
	n, err := unix.EpollWait(p.fd, p.events, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, os.NewSyscallError("epoll_wait", err)
	}

	dispatched := 0
	for i := 0; i < n; i++ {
		event := &p.events[i]
		fd := int(event.Fd)

		if fd == p.waker.Fd() {
			p.drainWaker()
			continue
		}

		// A handler dispatched earlier in this batch may have removed the
		// registration.
		pd, ok := p.registered[fd]
		if !ok {
			continue
		}

		ready := fromEpoll(event.Events)
		ready &= pd.Flags | EventError | EventHup
		if ready == 0 {
			continue
		}

		dispatched++
		pd.Handler(ready)
	}

	return dispatched, nil
}

func (p *EpollPoller) drainWaker() {
	for {
		_, err := p.waker.Read(p.wakerBytes[:])
		if err != nil {
			return
		}
	}
}

func (p *EpollPoller) Wakeup() error {
	if p.Closed() {
		return ErrClosed
	}
	_, err := p.waker.Write(1)
	if err == unix.EAGAIN {
		// The counter is saturated, a wakeup is already pending.
		return nil
	}
	if err != nil {
		return os.NewSyscallError("eventfd_write", err)
	}
	return nil
}

func (p *EpollPoller) SetRead(pd *PollData) error {
	return p.set(pd, pd.Flags|EventRead)
}

func (p *EpollPoller) SetWrite(pd *PollData) error {
	return p.set(pd, pd.Flags|EventWrite)
}

func (p *EpollPoller) DelRead(pd *PollData) error {
	return p.set(pd, pd.Flags&^EventRead)
}

func (p *EpollPoller) DelWrite(pd *PollData) error {
	return p.set(pd, pd.Flags&^EventWrite)
}

func (p *EpollPoller) Del(pd *PollData) error {
	return p.set(pd, 0)
}

func (p *EpollPoller) set(pd *PollData, flags Events) error {
	flags &= EventRead | EventWrite
	if flags == pd.Flags {
		return nil
	}

	var err error
	switch {
	case pd.Flags == 0:
		err = p.ctl(unix.EPOLL_CTL_ADD, pd.Fd, flags)
	case flags == 0:
		err = p.ctl(unix.EPOLL_CTL_DEL, pd.Fd, 0)
	default:
		err = p.ctl(unix.EPOLL_CTL_MOD, pd.Fd, flags)
	}
	if err != nil {
		return err
	}

	pd.Flags = flags
	if flags == 0 {
		delete(p.registered, pd.Fd)
	} else {
		p.registered[pd.Fd] = pd
	}
	return nil
}

func (p *EpollPoller) ctl(op int, fd int, flags Events) error {
	event := unix.EpollEvent{
		Events: toEpoll(flags),
		Fd:     int32(fd),
	}
	if err := unix.EpollCtl(p.fd, op, fd, &event); err != nil {
		switch op {
		case unix.EPOLL_CTL_ADD:
			return os.NewSyscallError("epoll_ctl_add", err)
		case unix.EPOLL_CTL_MOD:
			return os.NewSyscallError("epoll_ctl_mod", err)
		default:
			return os.NewSyscallError("epoll_ctl_del", err)
		}
	}
	return nil
}

func (p *EpollPoller) Registered() int {
	return len(p.registered)
}

func (p *EpollPoller) Close() error {
	if !atomic.CompareAndSwapUint32(&p.closed, 0, 1) {
		return io.EOF
	}

	p.events = nil
	p.registered = nil

	return multierr.Append(
		p.waker.Close(),
		os.NewSyscallError("close", unix.Close(p.fd)),
	)
}

func (p *EpollPoller) Closed() bool {
	return atomic.LoadUint32(&p.closed) == 1
}
