package models

// Status values reported in heartbeat messages.
const (
	StatusOnline  = "ONLINE"
	StatusOffline = "OFFLINE"
)

// RegisterSystemInfo is the static machine description sent once at
// registration.
type RegisterSystemInfo struct {
	Platform       string `json:"platform" validate:"required"`
	Arch           string `json:"arch" validate:"required"`
	RuntimeVersion string `json:"runtimeVersion" validate:"required"`
	Hostname       string `json:"hostname"`
}

// RegisterRequest is the body of POST /api/register-agent.
type RegisterRequest struct {
	PCID       string             `json:"pcId" validate:"required"`
	AuthToken  string             `json:"authToken" validate:"required"`
	SystemInfo RegisterSystemInfo `json:"systemInfo" validate:"required"`
}

// HeartbeatSystemInfo is the per-beat runtime snapshot. MemoryUsage is the
// agent process resident set in bytes. LastHeartbeatSuccess reports the
// outcome of the previous beat, giving the collector a continuity signal.
type HeartbeatSystemInfo struct {
	Platform             string `json:"platform"`
	Arch                 string `json:"arch"`
	RuntimeVersion       string `json:"runtimeVersion"`
	UptimeSeconds        uint64 `json:"uptimeSeconds"`
	MemoryUsage          uint64 `json:"memoryUsage"`
	LastHeartbeatSuccess bool   `json:"lastHeartbeatSuccess"`
}

// HeartbeatRequest is the body of POST /api/heartbeat, used both for
// periodic ONLINE reports and the terminal OFFLINE notice.
type HeartbeatRequest struct {
	PCID           string               `json:"pcId" validate:"required"`
	Timestamp      int64                `json:"timestamp" validate:"required"`
	Status         string               `json:"status" validate:"required,oneof=ONLINE OFFLINE"`
	SystemInfo     *HeartbeatSystemInfo `json:"systemInfo,omitempty"`
	ShutdownReason string               `json:"shutdownReason,omitempty"`
}

// RegisterResponse carries the collector's human-readable confirmation.
type RegisterResponse struct {
	Message string `json:"message"`
}

// HeartbeatResponse acknowledges a heartbeat.
type HeartbeatResponse struct {
	OK bool `json:"ok"`
}

// RunCredentialsRequest is the body of POST /api/run-credentials.
type RunCredentialsRequest struct {
	APIKey string `json:"apiKey" validate:"required"`
}

// RunCredentialsResponse returns the minted session handle.
type RunCredentialsResponse struct {
	SessionID string `json:"sessionId"`
}

// CredentialsResponse is returned by GET /api/credentials/:sessionId.
type CredentialsResponse struct {
	SessionID string `json:"sessionId"`
	APIKey    string `json:"apiKey"`
	CreatedAt string `json:"createdAt"`
}

// ErrorResponse is the collector's error envelope.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details,omitempty"`
}
