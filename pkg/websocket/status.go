package websocket

import (
	"os"
	"sort"
	"time"
)

// ConnStatus describes one registered connection.
type ConnStatus struct {
	ID            string `json:"id"`
	Address       string `json:"address"`
	ConnectedAt   int64  `json:"connected_at"`
	FramesSent    uint64 `json:"frames_sent"`
	FramesDropped uint64 `json:"frames_dropped"`
}

// ReportingStatus is a snapshot of the registry served on the status endpoint.
type ReportingStatus struct {
	Node        string       `json:"node"`
	Status      string       `json:"status"`
	Reported    int64        `json:"reported_at"`
	StartupTime int64        `json:"startup_time"`
	SentMsgs    uint64       `json:"msgs_broadcast"`
	Connections []ConnStatus `json:"connections"`
}

type statusReporter interface {
	Status() ConnStatus
}

// Status lists registered connections, oldest first.
func (r *Registry) Status() ReportingStatus {
	stats := ReportingStatus{
		Node:        nodeName(),
		Status:      "OK",
		Reported:    time.Now().Unix(),
		StartupTime: r.startupTime.Unix(),
		SentMsgs:    r.sentMsgs.Load(),
		Connections: []ConnStatus{},
	}

	for _, ch := range r.Snapshot() {
		if rep, ok := ch.(statusReporter); ok {
			stats.Connections = append(stats.Connections, rep.Status())
		} else {
			stats.Connections = append(stats.Connections, ConnStatus{ID: ch.ID()})
		}
	}
	sort.Slice(stats.Connections, func(i, j int) bool {
		return stats.Connections[i].ConnectedAt < stats.Connections[j].ConnectedAt
	})

	return stats
}

func nodeName() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return UnknownAddress
}
