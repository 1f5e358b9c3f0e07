package balancedq

import (
	"context"
	"fmt"
	"sync"

	"github.com/cyclopcam/logs"
)

// Queue is a bounded, stack-ordered queue that sits between a fast producer
// (eg a camera) and a slower batched consumer (eg a neural network).
// On every mutation it retunes two knobs from the fill level: the batch size
// handed to the consumer, and a dilution factor that sheds backlog under
// high load. The most recently inserted items are retrieved first.
//
// Insert never blocks. Retrieve only blocks when asked to wait on an empty queue.
type Queue[T any] struct {
	id   string
	log  logs.Log
	keep DilutionKeep

	lock     sync.Mutex
	store    *stack[T]
	balancer balancer
	stats    Stats
	arrived  chan struct{} // Closed (and replaced) whenever items are pushed
}

// InsertResult describes what happened to an Insert call
type InsertResult struct {
	Accepted int  `json:"accepted"` // Number of items pushed
	Dropped  int  `json:"dropped"`  // Number of items that did not fit
	Rejected bool `json:"rejected"` // The queue was full, and nothing was pushed
	Cleared  bool `json:"cleared"`  // The insert filled the queue, so it was wiped
}

// RetrieveOptions controls Retrieve.
// The zero value retrieves one auto-sized batch, without waiting.
type RetrieveOptions struct {
	Count       int  // Number of batches. Values below 1 are treated as 1.
	NoAutoBatch bool // Return single items instead of batches of BatchSize()
	Wait        bool // Block until items are available (bounded by the context)
}

// Result of a Retrieve call.
// When Nested is false, there is at most one batch.
type Result[T any] struct {
	Batches [][]T
	Nested  bool // True when more than one batch was requested
}

// Items returns all retrieved items as a single slice
func (r *Result[T]) Items() []T {
	if len(r.Batches) == 1 {
		return r.Batches[0]
	}
	all := make([]T, 0, r.Len())
	for _, b := range r.Batches {
		all = append(all, b...)
	}
	return all
}

// Len returns the total number of items over all batches
func (r *Result[T]) Len() int {
	n := 0
	for _, b := range r.Batches {
		n += len(b)
	}
	return n
}

// State is a snapshot of the queue and its controllers
type State struct {
	ID               string  `json:"id"`
	Size             int     `json:"size"`
	Capacity         int     `json:"capacity"`
	Load             int     `json:"load"` // Fill percentage
	BatchSize        int     `json:"batchSize"`
	BatchSizeFloat   float64 `json:"batchSizeFloat"`
	PrevBatchLoad    int     `json:"prevBatchLoad"`
	Dilution         int     `json:"dilution"`
	PrevDilutionLoad int     `json:"prevDilutionLoad"`
}

// Stats are monotonic counters, from the moment the queue was created
type Stats struct {
	InsertedItems  int64 `json:"insertedItems"`
	RejectedCalls  int64 `json:"rejectedCalls"`  // Insert calls against a full queue
	TruncatedItems int64 `json:"truncatedItems"` // Items that did not fit into the free space
	Clears         int64 `json:"clears"`         // Number of times the queue filled up and was wiped
	ClearedItems   int64 `json:"clearedItems"`
	DilutedItems   int64 `json:"dilutedItems"` // Items discarded by dilution
	RetrievedItems int64 `json:"retrievedItems"`
	RetrieveCalls  int64 `json:"retrieveCalls"`
}

// New creates a queue. The id is only used for diagnostics.
func New[T any](log logs.Log, id string, cfg Config) (*Queue[T], error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("Queue %v: %w", id, err)
	}
	return &Queue[T]{
		id:       id,
		log:      log,
		keep:     cfg.DilutionKeep,
		store:    newStack[T](cfg.MaxSize),
		balancer: newBalancer(log, id, &cfg),
		arrived:  make(chan struct{}),
	}, nil
}

func (q *Queue[T]) ID() string {
	return q.id
}

func (q *Queue[T]) Capacity() int {
	return q.store.capacity()
}

// Size returns the number of items in the queue
func (q *Queue[T]) Size() int {
	q.lock.Lock()
	defer q.lock.Unlock()
	return q.store.len()
}

// BatchSize returns the current target batch size.
// This is zero when the queue is empty.
func (q *Queue[T]) BatchSize() int {
	q.lock.Lock()
	defer q.lock.Unlock()
	return q.balancer.batchSize()
}

// Dilution returns the number of items that a retrieval pops under high load.
// A value of 1 means that dilution is off.
func (q *Queue[T]) Dilution() int {
	q.lock.Lock()
	defer q.lock.Unlock()
	return q.balancer.dilution
}

func (q *Queue[T]) State() State {
	q.lock.Lock()
	defer q.lock.Unlock()
	size := q.store.len()
	return State{
		ID:               q.id,
		Size:             size,
		Capacity:         q.store.capacity(),
		Load:             q.balancer.load(size),
		BatchSize:        q.balancer.batchSize(),
		BatchSizeFloat:   q.balancer.batchSizeFloat,
		PrevBatchLoad:    q.balancer.prevBatchLoad,
		Dilution:         q.balancer.dilution,
		PrevDilutionLoad: q.balancer.prevDilutionLoad,
	}
}

func (q *Queue[T]) Stats() Stats {
	q.lock.Lock()
	defer q.lock.Unlock()
	return q.stats
}

// Insert pushes items onto the queue.
// If the queue is full, the whole call is rejected. If there is less free space
// than items, the items that fit are pushed and the rest are dropped.
// If the insert leaves the queue exactly full, the queue is wiped, because a
// full queue is a backlog that is too stale to serve.
func (q *Queue[T]) Insert(items ...T) InsertResult {
	q.lock.Lock()
	defer q.lock.Unlock()

	res := InsertResult{}
	// Insert clears the store whenever it fills, so this branch is unreachable
	// through the public API. It guards the store's capacity if that ever changes.
	if q.store.full() {
		q.stats.RejectedCalls++
		res.Rejected = true
		res.Dropped = len(items)
		q.log.Infof("%v ML queue is fully loaded, your put is skipped", q.id)
		return res
	}
	if len(items) == 0 {
		return res
	}

	n := min(len(items), q.store.free())
	for _, item := range items[:n] {
		q.store.push(item)
	}
	res.Accepted = n
	res.Dropped = len(items) - n
	q.stats.InsertedItems += int64(n)
	if res.Dropped != 0 {
		q.stats.TruncatedItems += int64(res.Dropped)
		q.log.Infof("%v ML queue had room for %v of %v items, %v dropped", q.id, n, len(items), res.Dropped)
	}

	q.balancer.sample(q.store.len())

	if q.store.full() {
		cleared := q.store.clear()
		q.balancer.reset()
		q.stats.Clears++
		q.stats.ClearedItems += int64(cleared)
		res.Cleared = true
		q.log.Infof("%v ML queue was fully loaded and cleared", q.id)
	} else {
		q.wakeWaiters()
	}
	return res
}

// Get retrieves a single batch. opts.Count is ignored.
func (q *Queue[T]) Get(ctx context.Context, opts RetrieveOptions) ([]T, error) {
	opts.Count = 1
	res, err := q.Retrieve(ctx, opts)
	return res.Items(), err
}

// Retrieve pulls one or more batches from the queue.
//
// While dilution is active, each batch is a single item that survived a
// discarded run of Dilution() items. Otherwise each batch holds BatchSize()
// items (or one item, if NoAutoBatch is set).
//
// If the queue is empty and opts.Wait is false, the result is empty. If
// opts.Wait is true, each batch waits for at least one item, until ctx is done.
// On cancellation the batches extracted so far are returned, along with ctx.Err().
// Callers that wait must pair it with a running producer, or a ctx deadline.
func (q *Queue[T]) Retrieve(ctx context.Context, opts RetrieveOptions) (Result[T], error) {
	res := Result[T]{
		Nested: opts.Count > 1,
	}
	count := max(opts.Count, 1)

	q.lock.Lock()
	defer q.lock.Unlock()

	if q.store.len() == 0 && !opts.Wait {
		return res, nil
	}

	var err error
	for i := 0; i < count; i++ {
		if q.store.len() == 0 {
			if !opts.Wait {
				break
			}
			if len(res.Batches) != 0 {
				// Other callers can observe the queue while we wait
				q.balancer.sample(q.store.len())
			}
			if err = q.waitForItems(ctx); err != nil {
				break
			}
		}
		batch := q.extractOne(!opts.NoAutoBatch)
		q.stats.RetrievedItems += int64(len(batch))
		res.Batches = append(res.Batches, batch)
	}

	if len(res.Batches) != 0 {
		q.stats.RetrieveCalls++
		q.balancer.sample(q.store.len())
	}
	return res, err
}

// extractOne pops a single batch. The store must not be empty.
func (q *Queue[T]) extractOne(autoBatch bool) []T {
	if q.balancer.dilution > 1 {
		n := min(q.balancer.dilution, q.store.len())
		newest, _ := q.store.pop()
		oldest := newest
		for i := 1; i < n; i++ {
			oldest, _ = q.store.pop()
		}
		q.stats.DilutedItems += int64(n - 1)
		return []T{keepFromRun(q.keep, newest, oldest)}
	}

	n := 1
	if autoBatch {
		if bs := q.balancer.batchSize(); bs != 0 {
			n = bs
		}
	}
	n = min(n, q.store.len())
	batch := make([]T, n)
	for i := range batch {
		batch[i], _ = q.store.pop()
	}
	return batch
}

// waitForItems must be called with the lock held. The lock is released while waiting.
func (q *Queue[T]) waitForItems(ctx context.Context) error {
	for q.store.len() == 0 {
		arrived := q.arrived
		q.lock.Unlock()
		select {
		case <-arrived:
			q.lock.Lock()
		case <-ctx.Done():
			q.lock.Lock()
			return ctx.Err()
		}
	}
	return nil
}

// wakeWaiters must be called with the lock held
func (q *Queue[T]) wakeWaiters() {
	close(q.arrived)
	q.arrived = make(chan struct{})
}
