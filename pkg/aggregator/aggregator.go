// Package aggregator accumulates consumer results (eg NN detections per frame)
// and reports a window of them only when the window is consistent.
package aggregator

import (
	"fmt"
	"time"

	"github.com/bmharper/ringbuffer"
)

type Mode string

const (
	ModeFrameCounter Mode = "frame_counter" // Window must be full, and all of one kind
	ModeTimeGap      Mode = "time_gap"      // As FrameCounter, and the window must span no more than TimeGap
)

// KindFunc classifies an item. Items of the same kind have equal results.
type KindFunc[T any] func(item T) string

type entry[T any] struct {
	item T
	at   time.Time
}

// Aggregator holds the most recent items, up to a threshold.
// It is not safe for concurrent use.
type Aggregator[T any] struct {
	mode      Mode
	threshold int
	timeGap   time.Duration
	kind      KindFunc[T]
	window    ringbuffer.RingP[entry[T]]
	now       func() time.Time
}

// NewFrameCounter creates an aggregator that reports windows of 'threshold' identical kinds
func NewFrameCounter[T any](threshold int, kind func(T) string) *Aggregator[T] {
	return newAggregator(ModeFrameCounter, threshold, 0, kind)
}

// NewTimeGap creates an aggregator that additionally requires the window's
// oldest item to be no older than timeGap
func NewTimeGap[T any](threshold int, timeGap time.Duration, kind func(T) string) *Aggregator[T] {
	return newAggregator(ModeTimeGap, threshold, timeGap, kind)
}

// New creates an aggregator from a mode name
func New[T any](mode Mode, threshold int, timeGap time.Duration, kind func(T) string) (*Aggregator[T], error) {
	if threshold < 1 {
		return nil, fmt.Errorf("Aggregator threshold must be at least 1 (got %v)", threshold)
	}
	switch mode {
	case ModeFrameCounter:
		return NewFrameCounter(threshold, kind), nil
	case ModeTimeGap:
		if timeGap <= 0 {
			return nil, fmt.Errorf("Aggregator time gap must be positive (got %v)", timeGap)
		}
		return NewTimeGap(threshold, timeGap, kind), nil
	}
	return nil, fmt.Errorf("Unknown aggregator mode '%v'", mode)
}

func newAggregator[T any](mode Mode, threshold int, timeGap time.Duration, kind func(T) string) *Aggregator[T] {
	return &Aggregator[T]{
		mode:      mode,
		threshold: threshold,
		timeGap:   timeGap,
		kind:      kind,
		window:    newWindow[T](threshold),
		now:       time.Now,
	}
}

func (a *Aggregator[T]) Mode() Mode {
	return a.mode
}

// Append adds an item, evicting the oldest item if the window is full
func (a *Aggregator[T]) Append(item T) {
	e := entry[T]{item: item}
	if a.mode == ModeTimeGap {
		e.at = a.now()
	}
	if a.window.Len() >= a.threshold {
		a.window.Next()
	}
	a.window.Add(e)
}

// Check returns the newest 'limit' items if they form a consistent window.
// If limit is less than 1, the threshold is used.
func (a *Aggregator[T]) Check(limit int) ([]T, bool) {
	if limit < 1 {
		limit = a.threshold
	}
	n := a.window.Len()
	if n < limit {
		return nil, false
	}
	first := n - limit
	if a.mode == ModeTimeGap && a.now().Sub(a.window.Peek(first).at) > a.timeGap {
		return nil, false
	}

	batch := make([]T, 0, limit)
	kind := a.kind(a.window.Peek(first).item)
	for i := first; i < n; i++ {
		item := a.window.Peek(i).item
		if a.kind(item) != kind {
			return nil, false
		}
		batch = append(batch, item)
	}
	return batch, true
}

// Reset discards all items
func (a *Aggregator[T]) Reset() {
	a.window = newWindow[T](a.threshold)
}

// newWindow allocates a ring that can hold at least threshold items.
// RingP holds one less than its power-of-2 size.
func newWindow[T any](threshold int) ringbuffer.RingP[entry[T]] {
	size := 2
	for size < threshold+1 {
		size *= 2
	}
	return ringbuffer.NewRingP[entry[T]](size)
}

func (a *Aggregator[T]) Len() int {
	return a.window.Len()
}

// Items returns the held items, oldest first
func (a *Aggregator[T]) Items() []T {
	items := make([]T, a.window.Len())
	for i := range items {
		items[i] = a.window.Peek(i).item
	}
	return items
}
