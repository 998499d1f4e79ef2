package events

import (
	"context"
	"errors"
)

// Fanout forwards events to every publisher and joins their errors.
type Fanout []Publisher

var _ Publisher = Fanout(nil)

func (f Fanout) Publish(ctx context.Context, events ...Event) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, events...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
