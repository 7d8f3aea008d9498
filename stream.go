package insight

import "context"

// fragmentBuffer bounds how far a backend may run ahead of a slow reader.
const fragmentBuffer = 16

// Produce runs fn on its own goroutine and returns the channel it feeds.
//
// fn forwards fragments through emit, which reports false once ctx is done;
// fn must then stop reading its backend and return. The channel is closed
// after fn returns. A non-nil error from fn, or a cancelled ctx, is delivered
// as a final Chunk so readers can tell an abnormal end from a clean one.
func Produce(ctx context.Context, fn func(emit func(text string) bool) error) <-chan Chunk {
	ch := make(chan Chunk, fragmentBuffer)

	go func() {
		defer close(ch)

		emit := func(text string) bool {
			if ctx.Err() != nil {
				return false
			}
			select {
			case ch <- Chunk{Text: text}:
				return true
			case <-ctx.Done():
				return false
			}
		}

		err := fn(emit)
		if err == nil {
			err = ctx.Err()
		}
		if err == nil {
			return
		}

		select {
		case ch <- Chunk{Err: err}:
		case <-ctx.Done():
			// Reader may be gone; only hand over the error if there is room.
			select {
			case ch <- Chunk{Err: err}:
			default:
			}
		}
	}()

	return ch
}
