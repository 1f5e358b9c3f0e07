package balancedq

import (
	"testing"

	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"
)

func newTestBalancer(t *testing.T, cfg Config) *balancer {
	cfg = cfg.WithDefaults()
	require.NoError(t, cfg.Validate())
	b := newBalancer(logs.NewTestingLog(t), t.Name(), &cfg)
	return &b
}

func TestBatchSizeRefusesToGrowPastCeiling(t *testing.T) {
	b := newTestBalancer(t, Config{MaxSize: 100, MaxBatchSize: 10})
	b.batchSizeFloat = 9.5
	// +10 scaled load points is +1.0 batch size, which would overshoot
	b.adjustBatchSize(40, 10)
	require.Equal(t, 9.5, b.batchSizeFloat)
	require.Equal(t, 10, b.batchSize()) // rounds half to even

	b.batchSizeFloat = 8.25
	b.adjustBatchSize(40, 10)
	require.Equal(t, 9.25, b.batchSizeFloat)
	require.Equal(t, 9, b.batchSize())
}

func TestBatchSizeFloorIsOne(t *testing.T) {
	b := newTestBalancer(t, Config{MaxSize: 100, MaxBatchSize: 10})
	b.batchSizeFloat = 3
	b.adjustBatchSize(5, -90)
	require.Equal(t, 1.0, b.batchSizeFloat)
}

func TestDilutionFactor(t *testing.T) {
	b := newTestBalancer(t, Config{MaxSize: 200, MaxBatchSize: 10})
	// excess = 55 - 50 + 10 = 15 -> 2 items per % -> 30
	b.adjustDilution(55, 10)
	require.Equal(t, 30, b.dilution)
	// excess = 5, below the log step, so dilution switches off
	b.adjustDilution(45, -10)
	require.Equal(t, 1, b.dilution)
}

func TestDilutionFactorIsAtLeastOne(t *testing.T) {
	b := newTestBalancer(t, Config{MaxSize: 2, MaxBatchSize: 1})
	b.adjustDilution(60, 10)
	require.Equal(t, 1, b.dilution)
}

func TestHysteresis(t *testing.T) {
	b := newTestBalancer(t, Config{MaxSize: 100, MaxBatchSize: 10})

	// 4% load is 8 scaled points, which is only 4% in raw units
	b.sample(4)
	require.Equal(t, 0, b.prevBatchLoad)
	require.Equal(t, 0.0, b.batchSizeFloat)

	// 5% reaches the step
	b.sample(5)
	require.Equal(t, 10, b.prevBatchLoad)
	require.Equal(t, 1.0, b.batchSizeFloat)

	// Going back down by less than a step does nothing
	b.sample(2)
	require.Equal(t, 10, b.prevBatchLoad)
	require.Equal(t, 1.0, b.batchSizeFloat)

	// High regime: batch load pins at 100, dilution load starts moving
	b.sample(60)
	require.Equal(t, 100, b.prevBatchLoad)
	require.Equal(t, 20, b.prevDilutionLoad)
	require.Equal(t, 20, b.dilution) // excess = 60 - 50 + 10

	b.sample(62)
	require.Equal(t, 20, b.prevDilutionLoad)
	require.Equal(t, 20, b.dilution)

	b.sample(0)
	require.Equal(t, 0, b.prevBatchLoad)
	require.Equal(t, 0, b.prevDilutionLoad)
	require.Equal(t, 1, b.dilution)
	require.Equal(t, 0.0, b.batchSizeFloat)
}

func TestLoad(t *testing.T) {
	b := newTestBalancer(t, Config{MaxSize: 7000, MaxBatchSize: 250})
	require.Equal(t, 0, b.load(0))
	require.Equal(t, 57, b.load(4000))
	require.Equal(t, 100, b.load(7000))
}

func TestExplicitZeroIsNotDefaulted(t *testing.T) {
	cfg := Config{MaxSize: 100, MaxBatchSize: 10, BalancerStep: Int(0), BalancerDilutionBackwardPurge: Int(0)}.WithDefaults()
	require.Equal(t, 0, *cfg.BalancerStep)
	require.Equal(t, 0, *cfg.BalancerDilutionBackwardPurge)
	require.Equal(t, DefaultBalancerThreshold, *cfg.BalancerThreshold)
	require.Equal(t, DefaultBalancerStepLog, *cfg.BalancerStepLog)
}

func TestDilutionWithoutBackwardPurge(t *testing.T) {
	b := newTestBalancer(t, Config{MaxSize: 100, MaxBatchSize: 10, BalancerDilutionBackwardPurge: Int(0)})
	// excess = 60 - 50 + 0 = 10 -> 1 item per % -> 10
	b.adjustDilution(60, 10)
	require.Equal(t, 10, b.dilution)
	// excess = 5 is below the log step
	b.adjustDilution(55, -10)
	require.Equal(t, 1, b.dilution)

	q := newTestQueue[int](t, Config{MaxSize: 100, MaxBatchSize: 10, BalancerDilutionBackwardPurge: Int(0)})
	q.Insert(make([]int, 60)...)
	require.Equal(t, 10, q.Dilution())
}

func TestZeroStepRecomputesOnEveryChange(t *testing.T) {
	b := newTestBalancer(t, Config{MaxSize: 100, MaxBatchSize: 10, BalancerStep: Int(0)})
	// 1% load is 2 scaled points, which is below the default step
	b.sample(1)
	require.Equal(t, 2, b.prevBatchLoad)
	require.Equal(t, 1.0, b.batchSizeFloat)
}
