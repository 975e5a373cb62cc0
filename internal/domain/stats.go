package domain

import "time"

// MonitorStats is a point-in-time snapshot of the coordinator, safe to hand
// to API callers: it is a copy, never a live view.
type MonitorStats struct {
	IsRunning         bool
	PairCount         int
	VenueCount        int
	PendingCount      int
	RequestsRemaining int
	CyclesCompleted   uint64
	LastScanAt        time.Time
}
