package evopts

type optionMaxEvents struct {
	v int
}

// MaxEvents sets how many readiness events the poller collects per wait.
func MaxEvents(v int) Option {
	return &optionMaxEvents{
		v: v,
	}
}

func (o *optionMaxEvents) Type() OptionType {
	return TypeMaxEvents
}

func (o *optionMaxEvents) Value() interface{} {
	return o.v
}
