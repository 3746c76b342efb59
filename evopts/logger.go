package evopts

import "github.com/joeycumines/logiface"

type optionLogger struct {
	v *logiface.Logger[logiface.Event]
}

// Logger attaches a structured logger. A nil logger disables logging.
func Logger(v *logiface.Logger[logiface.Event]) Option {
	return &optionLogger{
		v: v,
	}
}

func (o *optionLogger) Type() OptionType {
	return TypeLogger
}

func (o *optionLogger) Value() interface{} {
	return o.v
}
