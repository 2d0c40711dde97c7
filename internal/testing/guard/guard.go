package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("SACOM_TEST_MODE") == "" {
			_ = os.Setenv("SACOM_TEST_MODE", "1")
		}
	})
}
