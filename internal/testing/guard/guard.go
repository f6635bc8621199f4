// Package guard flips the binaries into test mode when imported for side
// effects from a test package.
package guard

import (
	"os"
	"sync"
)

const testModeEnv = "WAREHOUSE_TEST_MODE"

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv(testModeEnv) == "" {
			_ = os.Setenv(testModeEnv, "1")
		}
	})
}
