package evopts

type optionMetrics struct {
	v bool
}

// Metrics enables latency histograms on the loop.
func Metrics(v bool) Option {
	return &optionMetrics{
		v: v,
	}
}

func (o *optionMetrics) Type() OptionType {
	return TypeMetrics
}

func (o *optionMetrics) Value() interface{} {
	return o.v
}
