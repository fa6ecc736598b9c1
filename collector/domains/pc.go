package domains

import "time"

// PC is the collector-side record for one tracked machine.
type PC struct {
	PCID                 string                 `json:"pcId"`
	Status               string                 `json:"status"`
	Owner                string                 `json:"owner,omitempty"`
	Location             string                 `json:"location,omitempty"`
	PCType               string                 `json:"pcType,omitempty"`
	SystemInfo           map[string]interface{} `json:"systemInfo,omitempty"`
	LastHeartbeatSuccess bool                   `json:"lastHeartbeatSuccess"`
	ShutdownReason       string                 `json:"shutdownReason,omitempty"`
	RegisteredAt         time.Time              `json:"registeredAt"`
	LastSeenAt           time.Time              `json:"lastSeenAt"`
}

// HeartbeatUpdate carries one accepted heartbeat into storage.
type HeartbeatUpdate struct {
	PCID                 string
	Status               string
	Timestamp            time.Time
	SystemInfo           map[string]interface{}
	LastHeartbeatSuccess bool
	ShutdownReason       string
}
