package integration

import (
	"fmt"
	"time"
)

// TestIdentifier generates a unique email identifier for one test
func TestIdentifier(suffix string) string {
	return fmt.Sprintf("test-%d-%s@example.com", time.Now().UnixNano(), suffix)
}

// TestIP generates a deterministic test IP from a small index
func TestIP(n int) string {
	return fmt.Sprintf("203.0.113.%d", n%256)
}
