package broadcast

import (
	"context"
	"slices"
	"testing"
	"time"
)

func seq(n int) []int64 {
	out := make([]int64, n)
	for i := range out {
		out[i] = int64(i + 1)
	}
	return out
}

func TestPartition(t *testing.T) {
	tests := []struct {
		n, size int
		want    []int
	}{
		{0, 20, nil},
		{1, 20, []int{1}},
		{20, 20, []int{20}},
		{21, 20, []int{20, 1}},
		{45, 20, []int{20, 20, 5}},
		{5, 0, []int{5}},
	}
	for _, tt := range tests {
		got := Partition(seq(tt.n), tt.size)
		var sizes []int
		var flat []int64
		for _, b := range got {
			sizes = append(sizes, len(b))
			flat = append(flat, b...)
		}
		if !slices.Equal(sizes, tt.want) {
			t.Fatalf("n=%d size=%d: sizes=%v want %v", tt.n, tt.size, sizes, tt.want)
		}
		if !slices.Equal(flat, seq(tt.n)) && tt.n > 0 {
			t.Fatalf("n=%d: order not preserved: %v", tt.n, flat)
		}
	}
}

func TestPartitionChunksDoNotAlias(t *testing.T) {
	ids := seq(4)
	parts := Partition(ids, 2)
	_ = append(parts[0], 99)
	if parts[1][0] != 3 {
		t.Fatalf("append to first chunk overwrote second: %v", parts[1])
	}
}

func TestScheduleDelaysOnlyBetweenBatches(t *testing.T) {
	clock := newFakeClock()
	var seen []int
	for i, b := range Schedule(context.Background(), seq(45), 20, time.Second, clock) {
		if got := len(clock.slept()); got != i {
			t.Fatalf("batch %d started after %d delays", i, got)
		}
		seen = append(seen, len(b))
	}
	if !slices.Equal(seen, []int{20, 20, 5}) {
		t.Fatalf("batches=%v", seen)
	}
	if s := clock.slept(); !slices.Equal(s, []time.Duration{time.Second, time.Second}) {
		t.Fatalf("sleeps=%v", s)
	}
}

func TestScheduleSingleBatchNeverSleeps(t *testing.T) {
	clock := newFakeClock()
	n := 0
	for range Schedule(context.Background(), seq(3), 20, time.Second, clock) {
		n++
	}
	if n != 1 || len(clock.slept()) != 0 {
		t.Fatalf("batches=%d sleeps=%v", n, clock.slept())
	}
}

func TestScheduleStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clock := newFakeClock()
	n := 0
	for range Schedule(ctx, seq(100), 10, time.Second, clock) {
		n++
		if n == 2 {
			cancel()
		}
	}
	if n != 2 {
		t.Fatalf("batches after cancel=%d want 2", n)
	}
}

func TestScheduleConsumerBreak(t *testing.T) {
	clock := newFakeClock()
	for range Schedule(context.Background(), seq(60), 20, time.Second, clock) {
		break
	}
	if len(clock.slept()) != 0 {
		t.Fatalf("sleeps after break: %v", clock.slept())
	}
}
