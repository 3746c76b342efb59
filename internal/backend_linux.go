//go:build linux

package internal

// NewDefaultPoller returns the native backend of the platform.
func NewDefaultPoller(maxEvents int) (Poller, error) {
	return NewEpollPoller(maxEvents)
}

// NewEpoll is available on linux only.
func NewEpoll(maxEvents int) (Poller, error) {
	return NewEpollPoller(maxEvents)
}
