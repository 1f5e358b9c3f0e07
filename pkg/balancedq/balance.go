package balancedq

import (
	"math"

	"github.com/cyclopcam/logs"
)

// balancer holds the two feedback loops (batch size and dilution) that are
// driven off the fill level of the store. It is owned by a single Queue, and
// all mutation goes through sample() or reset(), under the queue's lock.
type balancer struct {
	log logs.Log
	id  string

	capacity      int
	maxBatchSize  int
	threshold     int
	step          int
	stepLog       int
	backwardPurge int
	batchSizeStep float64 // Batch size change per point of scaled load (maxBatchSize / 100)
	itemsPerPct   float64 // Items per load % (capacity / 100)

	batchSizeFloat   float64
	prevBatchLoad    int
	dilution         int
	prevDilutionLoad int
}

// cfg must have had defaults applied
func newBalancer(log logs.Log, id string, cfg *Config) balancer {
	return balancer{
		log:           log,
		id:            id,
		capacity:      cfg.MaxSize,
		maxBatchSize:  cfg.MaxBatchSize,
		threshold:     *cfg.BalancerThreshold,
		step:          *cfg.BalancerStep,
		stepLog:       *cfg.BalancerStepLog,
		backwardPurge: *cfg.BalancerDilutionBackwardPurge,
		batchSizeStep: float64(cfg.MaxBatchSize) / 100,
		itemsPerPct:   float64(cfg.MaxSize) / 100,
		dilution:      1,
	}
}

// load returns the fill percentage (0..100) for the given number of items
func (b *balancer) load(size int) int {
	return roundInt(float64(size) / float64(b.capacity) * 100)
}

// sample recomputes the controllers after the store has changed size.
// A controller only recomputes when its scaled load has moved by at least
// 'step' raw load percent since it last recomputed.
func (b *balancer) sample(size int) {
	load := b.load(size)
	batchRatio := 100 / float64(b.threshold)
	dilutionRatio := 100 / float64(100-b.threshold)

	batchLoad := 0
	dilutionLoad := 0
	if load < b.threshold {
		batchLoad = roundInt(float64(load) * batchRatio)
	} else {
		batchLoad = 100
		dilutionLoad = roundInt(float64(load-b.threshold) * dilutionRatio)
	}

	batchDiff := batchLoad - b.prevBatchLoad
	dilutionDiff := dilutionLoad - b.prevDilutionLoad

	if float64(absInt(batchDiff))/batchRatio >= float64(b.step) {
		b.adjustBatchSize(load, batchDiff)
		b.prevBatchLoad = batchLoad
	}
	if float64(absInt(dilutionDiff))/dilutionRatio >= float64(b.step) {
		b.adjustDilution(load, dilutionDiff)
		b.prevDilutionLoad = dilutionLoad
	}

	if size == 0 {
		b.reset()
	}
}

// reset returns the controllers to their empty-store state
func (b *balancer) reset() {
	b.batchSizeFloat = 0
	b.prevBatchLoad = 0
	b.dilution = 1
	b.prevDilutionLoad = 0
}

func (b *balancer) adjustBatchSize(load, diff int) {
	increment := float64(diff) * b.batchSizeStep
	b.batchSizeFloat += increment
	if b.batchSizeFloat < 1 {
		b.batchSizeFloat = 1
	}
	// Refuse to grow past the ceiling, but don't snap to it either
	if b.batchSizeFloat > float64(b.maxBatchSize) {
		b.batchSizeFloat -= increment
	}
	if b.isLogPoint(load) {
		b.log.Infof("%v ML queue is loaded by %v%%, batch size is %v (%v now)", b.id, load, direction(diff), b.batchSize())
	}
}

func (b *balancer) adjustDilution(load, diff int) {
	excess := load - b.threshold + b.backwardPurge
	if excess >= b.stepLog {
		b.dilution = max(roundInt(b.itemsPerPct*float64(excess)), 1)
	} else {
		b.dilution = 1
	}
	if b.isLogPoint(load) {
		b.log.Infof("%v ML queue is loaded by %v%%, dilution is %v (%v now)", b.id, load, direction(diff), b.dilution)
	}
}

func (b *balancer) isLogPoint(load int) bool {
	return load != 0 && load%b.stepLog == 0
}

func (b *balancer) batchSize() int {
	return roundInt(b.batchSizeFloat)
}

func direction(diff int) string {
	if diff > 0 {
		return "increased"
	}
	return "decreased"
}

// Halves round to even
func roundInt(v float64) int {
	return int(math.RoundToEven(v))
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
