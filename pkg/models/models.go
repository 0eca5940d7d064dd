package models

import (
	"time"
)

// ConnectionType is the coarse class of the underlying network link
type ConnectionType string

const (
	ConnectionEthernet ConnectionType = "ethernet"
	ConnectionWifi     ConnectionType = "wifi"
	ConnectionCellular ConnectionType = "cellular"
	ConnectionUnknown  ConnectionType = "unknown"
)

// EffectiveType is the coarse quality class of the link
type EffectiveType string

const (
	EffectiveSlow2G  EffectiveType = "slow-2g"
	Effective2G      EffectiveType = "2g"
	Effective3G      EffectiveType = "3g"
	Effective4G      EffectiveType = "4g"
	EffectiveUnknown EffectiveType = "unknown"
)

// ConnectivityStatus is the monitor's current view of the link.
// It is recomputed on demand and never persisted.
type ConnectivityStatus struct {
	IsOnline       bool           `json:"is_online"`
	ConnectionType ConnectionType `json:"connection_type"`
	EffectiveType  EffectiveType  `json:"effective_type"`
	DownlinkMbps   float64        `json:"downlink_mbps"`
	RoundTripMs    int            `json:"round_trip_ms"`
	SaveDataMode   bool           `json:"save_data_mode"`
}

// Priority orders queued requests for replay
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank maps a priority to its replay rank. Lower ranks replay first;
// unrecognized values sort with medium.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityLow:
		return 2
	default:
		return 1
	}
}

// Valid reports whether p is one of the three known tiers
func (p Priority) Valid() bool {
	return p == PriorityHigh || p == PriorityMedium || p == PriorityLow
}

// QueuedRequest is a deferred mutating HTTP call awaiting replay.
// Records are owned exclusively by the offline queue and persisted
// after every mutation. Body is an opaque payload; it is not required
// to be JSON.
type QueuedRequest struct {
	ID         string            `json:"id"`
	URL        string            `json:"url"`
	Method     string            `json:"method"`
	Body       []byte            `json:"body,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	EnqueuedAt time.Time         `json:"enqueued_at"`
	RetryCount int               `json:"retry_count"`
	MaxRetries int               `json:"max_retries"`
	Priority   Priority          `json:"priority"`
}

// QueueStatus is a point-in-time summary of the offline queue
type QueueStatus struct {
	Total            int              `json:"total"`
	CountByPriority  map[Priority]int `json:"count_by_priority"`
	OldestEnqueuedAt *time.Time       `json:"oldest_enqueued_at,omitempty"`
}

// IsMutating reports whether an HTTP method has side effects on the
// server and is therefore eligible for offline queueing
func IsMutating(method string) bool {
	switch method {
	case "POST", "PUT", "PATCH", "DELETE":
		return true
	}
	return false
}
