package ev

import "github.com/talostrading/ev/evopts"

type optionThreadPool struct {
	v *ThreadPool
}

// UseThreadPool makes a loop submit its work to p instead of the default
// pool.
func UseThreadPool(p *ThreadPool) evopts.Option {
	return &optionThreadPool{
		v: p,
	}
}

func (o *optionThreadPool) Type() evopts.OptionType {
	return evopts.TypeThreadPool
}

func (o *optionThreadPool) Value() interface{} {
	return o.v
}
