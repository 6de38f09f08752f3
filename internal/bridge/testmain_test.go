package bridge_test

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain fails the package if any test leaves goroutines behind. The
// supervisor harness runs pumps and publishers; all of them must have
// stopped by the time a test returns.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
