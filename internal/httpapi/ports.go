package httpapi

import (
	"sort"

	gopsnet "github.com/shirou/gopsutil/v4/net"
)

// candidatePortMin/Max bound the range surfaced to the browser as
// preview candidates: below this a listener is almost always a system
// service, not a dev server the target CLI started.
const (
	candidatePortMin = 1024
	candidatePortMax = 65535
)

// discoverListeningPorts reports distinct local TCP ports currently in
// LISTEN state, for the client to offer as preview targets. It uses the
// same process-inspection library already wired for detecting foreign
// CLI sessions, rather than shelling out to a platform-specific tool.
func discoverListeningPorts() ([]uint32, error) {
	conns, err := gopsnet.Connections("tcp")
	if err != nil {
		return nil, err
	}

	seen := make(map[uint32]bool)
	for _, conn := range conns {
		if conn.Status != "LISTEN" {
			continue
		}
		port := conn.Laddr.Port
		if port < candidatePortMin || port > candidatePortMax {
			continue
		}
		seen[port] = true
	}

	ports := make([]uint32, 0, len(seen))
	for p := range seen {
		ports = append(ports, p)
	}
	sort.Slice(ports, func(i, j int) bool { return ports[i] < ports[j] })
	return ports, nil
}
