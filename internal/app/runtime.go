package app

import (
	"os"
	"sync"
)

const testModeEnv = "CLEANOPS_TEST_MODE"

var testMode = sync.OnceValue(func() bool { return os.Getenv(testModeEnv) == "1" })

// InTestMode reports whether binaries should skip runtime side effects such as
// binding ports and dialing Postgres or Redis. The flag is read once.
func InTestMode() bool {
	return testMode()
}
