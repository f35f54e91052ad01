// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"errors"
	"io"
)

// =============================================================================
// PUMP
// =============================================================================

// Pump reads es until a terminal event and hands every event to deliver.
// It closes es before returning.
//
// A source that ends without a terminal event is delivered as Done. A read
// error other than cancellation is delivered as Failure carrying the error
// text and then returned. Cancellation (ctx done or ErrClosed) delivers
// nothing and returns the cause, since the canceller already finalized the
// exchange. When deliver returns false the pump stops quietly.
func Pump(ctx context.Context, es EventStream, deliver func(Event) bool) error {
	defer es.Close()

	for {
		ev, err := es.Next(ctx)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				deliver(Done())
				return nil
			case ctx.Err() != nil:
				return ctx.Err()
			case errors.Is(err, ErrClosed), errors.Is(err, context.Canceled):
				return err
			default:
				deliver(Failure(err.Error()))
				return err
			}
		}

		if !deliver(ev) {
			return nil
		}
		if ev.IsTerminal() {
			return nil
		}
	}
}
