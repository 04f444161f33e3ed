package writer

import (
	"context"
	"time"

	"github.com/jittakal/kafrotator/pkg/message"
)

// Run drives the writer as a stream stage. Elements are read from in and
// every RotationMessage is sent to out; out is closed when Run returns.
//
// When in is closed the current file is finished and its message is
// delivered. When ctx is cancelled the current file is finished and its
// message is delivered only if out can take it immediately; Run then
// returns ctx.Err(). A nil tick channel disables time-based rotation.
func (w *Writer[T, P]) Run(
	ctx context.Context,
	in <-chan message.WriteMessage[T, P],
	out chan<- message.RotationMessage[P],
	tick <-chan time.Time,
) error {
	defer close(out)

	for {
		select {
		case <-ctx.Done():
			return w.cancel(ctx, out)

		case msg, ok := <-in:
			if !ok {
				rm, err := w.Finish(ctx)
				if err != nil {
					return err
				}
				return w.deliver(ctx, out, rm)
			}
			rm, err := w.Process(ctx, msg)
			if err != nil {
				return err
			}
			if err := w.deliver(ctx, out, rm); err != nil {
				return err
			}

		case now := <-tick:
			rm, err := w.Tick(ctx, now)
			if err != nil {
				return err
			}
			if err := w.deliver(ctx, out, rm); err != nil {
				return err
			}
		}
	}
}

// deliver blocks until out accepts rm or ctx is cancelled.
func (w *Writer[T, P]) deliver(ctx context.Context, out chan<- message.RotationMessage[P], rm *message.RotationMessage[P]) error {
	if rm == nil {
		return nil
	}
	select {
	case out <- *rm:
		return nil
	case <-ctx.Done():
		w.logger.Warn("rotation message dropped on cancellation",
			"path", rm.Path,
			"rotation", rm.Rotation,
		)
		return w.cancel(ctx, out)
	}
}

// cancel finishes the current file and offers its message without blocking.
func (w *Writer[T, P]) cancel(ctx context.Context, out chan<- message.RotationMessage[P]) error {
	rm, err := w.Finish(ctx)
	if err != nil && w.err != nil {
		return err
	}
	if rm != nil {
		select {
		case out <- *rm:
		default:
			w.logger.Warn("final rotation message dropped on cancellation",
				"path", rm.Path,
				"rotation", rm.Rotation,
			)
		}
	}
	return ctx.Err()
}
