package node

import (
	"os"

	"github.com/denisbrodbeck/machineid"
)

// ID returns a stable identifier for this host, scoped to appID. The raw
// machine id never leaves the process: machineid hashes it with appID.
// Hosts without a readable machine id fall back to the hostname.
func ID(appID string) string {
	if id, err := machineid.ProtectedID(appID); err == nil && id != "" {
		return id[:16]
	}
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "unknown"
}
