package app

import (
	"os"
	"sync"
	"sync/atomic"
)

// LIBRIS_TEST_MODE=1 keeps cmd/libris and cmd/worker from dialing Postgres, Redis or
// SMTP when their packages are loaded by go test. testing/TestMain.go sets it.
const testModeEnv = "LIBRIS_TEST_MODE"

var (
	testMode     atomic.Bool
	testModeOnce sync.Once
)

func loadTestMode() {
	testMode.Store(os.Getenv(testModeEnv) == "1")
}

// InTestMode reports whether the binaries should return before touching external services.
func InTestMode() bool {
	testModeOnce.Do(loadTestMode)
	return testMode.Load()
}

// RefreshTestMode re-reads LIBRIS_TEST_MODE, for tests that change it with t.Setenv.
func RefreshTestMode() {
	testModeOnce.Do(func() {})
	loadTestMode()
}
