package integration

import (
	"fmt"
	"sync/atomic"
	"time"
)

var userSeq atomic.Int64

// TestUser generates unique test user values. The sequence keeps
// emails unique within a single test run.
func TestUser(suffix string) (name, email, password string) {
	n := userSeq.Add(1)
	name = "Test " + suffix
	email = fmt.Sprintf("test-%d-%d-%s@example.com", time.Now().Unix(), n, suffix)
	password = "Vault-Horse-42!"
	return
}
