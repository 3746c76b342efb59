//go:build !linux

package internal

// NewDefaultPoller returns the native backend of the platform.
func NewDefaultPoller(int) (Poller, error) {
	return NewPortablePoller(), nil
}

// NewEpoll is available on linux only.
func NewEpoll(int) (Poller, error) {
	return nil, ErrNotSupported
}
