package evopts

import "github.com/benbjohnson/clock"

type optionClock struct {
	v clock.Clock
}

// Clock replaces the monotonic time source of a loop. Mainly useful with
// clock.NewMock() in tests.
func Clock(v clock.Clock) Option {
	return &optionClock{
		v: v,
	}
}

func (o *optionClock) Type() OptionType {
	return TypeClock
}

func (o *optionClock) Value() interface{} {
	return o.v
}
