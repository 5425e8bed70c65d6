// Package testing switches binaries and config into test mode when imported
// for side effects by test packages.
package testing

import (
	"os"
	"path/filepath"
	"sync"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("CLEANOPS_TEST_MODE", "1")
		if os.Getenv("UPLOAD_DIR") == "" {
			_ = os.Setenv("UPLOAD_DIR", filepath.Join(os.TempDir(), "cleanops-test-uploads"))
		}
	})
}

func init() {
	ensureTestMode()
}
