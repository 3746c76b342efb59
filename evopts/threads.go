package evopts

type optionThreads struct {
	v int
}

// Threads sets the number of workers of a thread pool.
func Threads(v int) Option {
	return &optionThreads{
		v: v,
	}
}

func (o *optionThreads) Type() OptionType {
	return TypeThreads
}

func (o *optionThreads) Value() interface{} {
	return o.v
}
