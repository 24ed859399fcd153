package app

import (
	"os"
	"strconv"
	"sync"
)

const testModeEnv = "RECONCILER_TEST_MODE"

var testMode = sync.OnceValue(func() bool {
	on, _ := strconv.ParseBool(os.Getenv(testModeEnv))
	return on
})

// InTestMode reports whether binaries should return before connecting to
// Postgres or Redis. Read once per process.
func InTestMode() bool {
	return testMode()
}
