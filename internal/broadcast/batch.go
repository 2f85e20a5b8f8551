package broadcast

import (
	"context"
	"iter"
	"time"
)

// Clock abstracts time for pacing so tests can observe delays without sleeping.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// SystemClock is the wall clock.
var SystemClock Clock = realClock{}

// Partition splits ids into contiguous chunks of at most size elements.
// The chunks share ids' backing array but are capacity-limited, so appending
// to one never overwrites its neighbour.
func Partition(ids []int64, size int) [][]int64 {
	if size <= 0 {
		size = DefaultBatchSize
	}
	if len(ids) == 0 {
		return nil
	}
	out := make([][]int64, 0, (len(ids)+size-1)/size)
	for i := 0; i < len(ids); i += size {
		end := min(i+size, len(ids))
		out = append(out, ids[i:end:end])
	}
	return out
}

// Schedule yields the batches of ids in order, sleeping delay between the end of
// one batch (when the consumer's loop body returns) and the start of the next.
// No delay follows the last batch. The sequence stops early if ctx is done.
func Schedule(ctx context.Context, ids []int64, size int, delay time.Duration, clock Clock) iter.Seq2[int, []int64] {
	if clock == nil {
		clock = SystemClock
	}
	batches := Partition(ids, size)
	return func(yield func(int, []int64) bool) {
		for i, b := range batches {
			if i > 0 && delay > 0 {
				if err := clock.Sleep(ctx, delay); err != nil {
					return
				}
			}
			if ctx.Err() != nil {
				return
			}
			if !yield(i, b) {
				return
			}
		}
	}
}
