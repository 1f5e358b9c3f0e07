package balancedq

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is wrapped by every error returned from Config.Validate
var ErrInvalidConfig = errors.New("invalid balanced queue config")

const (
	DefaultBalancerThreshold             = 50 // Load % separating batch-size growth from dilution
	DefaultBalancerStep                  = 5  // Minimum load % change before a controller recomputes
	DefaultBalancerStepLog               = 10 // Controller changes are logged at multiples of this load %
	DefaultBalancerDilutionBackwardPurge = 10 // Offset added to the excess load before converting it to a discard count
)

// DilutionKeep selects the item that survives a diluted retrieval.
// Items in a diluted run are popped newest first.
type DilutionKeep string

const (
	DilutionKeepOldest DilutionKeep = "oldest" // Keep the last item popped (default)
	DilutionKeepNewest DilutionKeep = "newest" // Keep the first item popped
)

// Config of a balanced queue.
// The balancer fields are optional. A nil field takes its default, while an
// explicit zero is honoured.
type Config struct {
	MaxSize                       int          `json:"maxSize"`                       // Capacity (required)
	MaxBatchSize                  int          `json:"maxBatchSize"`                  // Upper bound of the adaptive batch size (required)
	BalancerThreshold             *int         `json:"balancerThreshold"`             // Default 50
	BalancerStep                  *int         `json:"balancerStep"`                  // Default 5
	BalancerStepLog               *int         `json:"balancerStepLog"`               // Default 10
	BalancerDilutionBackwardPurge *int         `json:"balancerDilutionBackwardPurge"` // Default 10
	DilutionKeep                  DilutionKeep `json:"dilutionKeep"`                  // Default "oldest"
}

// Int returns a pointer to v, for populating the optional fields of Config
func Int(v int) *int {
	return &v
}

// WithDefaults returns a copy of the config, with defaults filled in
func (c Config) WithDefaults() Config {
	if c.BalancerThreshold == nil {
		c.BalancerThreshold = Int(DefaultBalancerThreshold)
	}
	if c.BalancerStep == nil {
		c.BalancerStep = Int(DefaultBalancerStep)
	}
	if c.BalancerStepLog == nil {
		c.BalancerStepLog = Int(DefaultBalancerStepLog)
	}
	if c.BalancerDilutionBackwardPurge == nil {
		c.BalancerDilutionBackwardPurge = Int(DefaultBalancerDilutionBackwardPurge)
	}
	if c.DilutionKeep == "" {
		c.DilutionKeep = DilutionKeepOldest
	}
	return c
}

// Validate checks the config. Absent optional fields are checked as their defaults.
func (c *Config) Validate() error {
	d := c.WithDefaults()
	switch {
	case d.MaxSize < 1:
		return fmt.Errorf("%w: maxSize must be at least 1 (got %v)", ErrInvalidConfig, d.MaxSize)
	case d.MaxBatchSize < 1:
		return fmt.Errorf("%w: maxBatchSize must be at least 1 (got %v)", ErrInvalidConfig, d.MaxBatchSize)
	case *d.BalancerThreshold < 1 || *d.BalancerThreshold > 99:
		return fmt.Errorf("%w: balancerThreshold must be between 1 and 99 (got %v)", ErrInvalidConfig, *d.BalancerThreshold)
	case *d.BalancerStep < 0:
		return fmt.Errorf("%w: balancerStep may not be negative (got %v)", ErrInvalidConfig, *d.BalancerStep)
	case *d.BalancerStepLog < 1:
		return fmt.Errorf("%w: balancerStepLog must be at least 1 (got %v)", ErrInvalidConfig, *d.BalancerStepLog)
	case *d.BalancerDilutionBackwardPurge < 0:
		return fmt.Errorf("%w: balancerDilutionBackwardPurge may not be negative (got %v)", ErrInvalidConfig, *d.BalancerDilutionBackwardPurge)
	}
	switch d.DilutionKeep {
	case DilutionKeepOldest, DilutionKeepNewest:
	default:
		return fmt.Errorf("%w: unknown dilutionKeep '%v'", ErrInvalidConfig, d.DilutionKeep)
	}
	return nil
}

// keepFromRun picks the survivor of a diluted run.
// newest is the first item popped, oldest is the last.
func keepFromRun[T any](keep DilutionKeep, newest, oldest T) T {
	if keep == DilutionKeepNewest {
		return newest
	}
	return oldest
}
