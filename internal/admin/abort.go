package admin

import (
	"os"
	"time"
)

// abortProcess exits the process with status 1 shortly after the HTTP
// response has had a chance to flush.
func abortProcess() {
	time.Sleep(100 * time.Millisecond)
	os.Exit(1)
}
