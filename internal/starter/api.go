package starter

import (
	"context"

	"moff.io/moff-wallet/internal/config"
)

type Startable interface {
	Start(ctx context.Context)
}

type Configurable interface {
	Apply(*config.Configuration)
}

type Stopable interface {
	Stop()
}

// Start applies conf to every configurable element and starts them in order. The returned func stops the
// stopable ones in reverse order.
func Start(ctx context.Context, conf *config.Configuration, elems ...Startable) (stop func()) {
	var stopables []Stopable
	for _, ele := range elems {
		if configurable, ok := ele.(Configurable); ok {
			configurable.Apply(conf)
		}
		ele.Start(ctx)
		if stopable, ok := ele.(Stopable); ok {
			stopables = append(stopables, stopable)
		}
	}
	return func() {
		for i := len(stopables) - 1; i >= 0; i-- {
			stopables[i].Stop()
		}
	}
}
