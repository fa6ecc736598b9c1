package dto

// EnrollPCRequest enrolls a machine ahead of its agent's first contact.
type EnrollPCRequest struct {
	PCID     string `json:"pcId" validate:"required"`
	Owner    string `json:"owner,omitempty"`
	Location string `json:"location,omitempty"`
	PCType   string `json:"pcType,omitempty"`
}

// EnrollPCResponse carries the minted agent token. The token is handed to
// the machine out of band and never reissued automatically.
type EnrollPCResponse struct {
	PCID      string `json:"pcId"`
	AuthToken string `json:"authToken"`
}

// UpdatePCRequest updates the operator-editable fields; absent fields are
// left unchanged.
type UpdatePCRequest struct {
	Owner    *string `json:"owner,omitempty"`
	Location *string `json:"location,omitempty"`
	PCType   *string `json:"pcType,omitempty"`
}

// PCResponse is one dashboard row.
type PCResponse struct {
	PCID                 string                 `json:"pcId"`
	Status               string                 `json:"status"`
	Owner                string                 `json:"owner,omitempty"`
	Location             string                 `json:"location,omitempty"`
	PCType               string                 `json:"pcType,omitempty"`
	SystemInfo           map[string]interface{} `json:"systemInfo,omitempty"`
	LastHeartbeatSuccess bool                   `json:"lastHeartbeatSuccess"`
	ShutdownReason       string                 `json:"shutdownReason,omitempty"`
	RegisteredAt         string                 `json:"registeredAt,omitempty"`
	LastSeenAt           string                 `json:"lastSeenAt,omitempty"`
	IsHealthy            bool                   `json:"isHealthy"`
}

// ListPCsResponse wraps the dashboard list.
type ListPCsResponse struct {
	PCs []PCResponse `json:"pcs"`
}

// APIKeyRequest stores the downstream-integration API key.
type APIKeyRequest struct {
	APIKey string `json:"apiKey" validate:"required"`
}

// APIKeyResponse reports whether a key is stored without echoing it in
// logs-friendly form; the dashboard needs the value itself for its input
// box.
type APIKeyResponse struct {
	APIKey string `json:"apiKey"`
	Set    bool   `json:"set"`
}
