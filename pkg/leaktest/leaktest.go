// Package leaktest wraps goleak with the goroutines that our dependencies start
// from init(), and never stop.
package leaktest

import (
	"testing"

	"go.uber.org/goleak"
)

// Options are the goleak options shared by all our tests
func Options() []goleak.Option {
	return []goleak.Option{
		// opencensus (pulled in by the GCP logging client under cyclopcam/logs) starts its default worker in init()
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
	}
}

// VerifyTestMain runs the tests, and fails the package if any goroutines are left running
func VerifyTestMain(m *testing.M) {
	goleak.VerifyTestMain(m, Options()...)
}
