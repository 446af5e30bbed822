package presence

import "sync/atomic"

// Metrics tracks hub activity with lock-free counters.
type Metrics struct {
	joins           atomic.Int64
	reconnects      atomic.Int64
	disconnects     atomic.Int64
	updatesAccepted atomic.Int64
	updatesFiltered atomic.Int64
	broadcasts      atomic.Int64
	broadcastBytes  atomic.Int64
	sendErrors      atomic.Int64
}

func (m *Metrics) addBroadcast(recipients int, bytes int) {
	if m == nil {
		return
	}
	m.broadcasts.Add(1)
	m.broadcastBytes.Add(int64(recipients * bytes))
}

// MetricsSnapshot is the JSON shape served on /diagnostics.
type MetricsSnapshot struct {
	Joins           int64 `json:"joins"`
	Reconnects      int64 `json:"reconnects"`
	Disconnects     int64 `json:"disconnects"`
	UpdatesAccepted int64 `json:"updatesAccepted"`
	UpdatesFiltered int64 `json:"updatesFiltered"`
	Broadcasts      int64 `json:"broadcasts"`
	BroadcastBytes  int64 `json:"broadcastBytes"`
	SendErrors      int64 `json:"sendErrors"`
}

// Snapshot returns a point-in-time copy of every counter.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	return MetricsSnapshot{
		Joins:           m.joins.Load(),
		Reconnects:      m.reconnects.Load(),
		Disconnects:     m.disconnects.Load(),
		UpdatesAccepted: m.updatesAccepted.Load(),
		UpdatesFiltered: m.updatesFiltered.Load(),
		Broadcasts:      m.broadcasts.Load(),
		BroadcastBytes:  m.broadcastBytes.Load(),
		SendErrors:      m.sendErrors.Load(),
	}
}
