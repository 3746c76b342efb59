package evopts

// BackendKind selects the poller implementation driving a loop.
type BackendKind uint8

const (
	// BackendDefault picks epoll on linux and the portable backend elsewhere.
	BackendDefault BackendKind = iota

	// BackendEpoll is the readiness based linux backend.
	BackendEpoll

	// BackendPortable is a channel based backend available on every
	// platform. It supports timers, wakeups and thread-pool completions but
	// not file descriptor watchers.
	BackendPortable
)

func (k BackendKind) String() string {
	switch k {
	case BackendDefault:
		return "default"
	case BackendEpoll:
		return "epoll"
	case BackendPortable:
		return "portable"
	default:
		return "backend_unknown"
	}
}

type optionBackend struct {
	v BackendKind
}

func Backend(v BackendKind) Option {
	return &optionBackend{
		v: v,
	}
}

func (o *optionBackend) Type() OptionType {
	return TypeBackend
}

func (o *optionBackend) Value() interface{} {
	return o.v
}
