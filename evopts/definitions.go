package evopts

import "fmt"

type OptionType uint8

type Option interface {
	Type() OptionType
	Value() interface{}
}

const (
	TypeBackend OptionType = iota
	TypeMaxEvents
	TypeMetrics
	TypeLogger
	TypeClock
	TypeThreads
	TypeThreadPool
	MaxOption
)

func (t OptionType) String() string {
	switch t {
	case TypeBackend:
		return "backend"
	case TypeMaxEvents:
		return "max_events"
	case TypeMetrics:
		return "metrics"
	case TypeLogger:
		return "logger"
	case TypeClock:
		return "clock"
	case TypeThreads:
		return "threads"
	case TypeThreadPool:
		return "thread_pool"
	default:
		panic(fmt.Errorf("invalid option %d", t))
	}
}

func AddOption(add Option, opts []Option) []Option {
	for i, cur := range opts {
		if cur.Type() == add.Type() {
			opts[i] = add
			return opts
		}
	}
	opts = append(opts, add)
	return opts
}

func DelOption(del OptionType, opts []Option) []Option {
	for i := 0; i < len(opts); i++ {
		if opts[i].Type() == del {
			return append(opts[:i], opts[i+1:]...)
		}
	}
	return opts
}

// Find returns the last option of the given type, if any.
func Find(typ OptionType, opts []Option) (Option, bool) {
	var (
		found Option
		ok    bool
	)
	for _, opt := range opts {
		if opt != nil && opt.Type() == typ {
			found, ok = opt, true
		}
	}
	return found, ok
}
