package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"fleetwatch/collector/domains"
	"fleetwatch/collector/middleware"
	"fleetwatch/collector/services"
	"fleetwatch/collector/storage"
	"fleetwatch/collector/utils"
	"fleetwatch/pkg/logger"
	"fleetwatch/pkg/models"
)

// AgentHandler serves the two endpoints agents call.
type AgentHandler struct {
	store  storage.Adapter
	tokens *services.TokenService
	notify func(services.StatusEvent)
	log    *logger.Logger
}

// NewAgentHandler creates a new agent handler. notify receives status
// transitions for the dashboard feed and downstream integrations.
func NewAgentHandler(store storage.Adapter, tokens *services.TokenService, notify func(services.StatusEvent), log *logger.Logger) *AgentHandler {
	return &AgentHandler{store: store, tokens: tokens, notify: notify, log: log}
}

// authenticatedPCID returns the machine identifier the auth middleware
// bound, refusing requests whose body names a different machine.
func (h *AgentHandler) authenticatedPCID(c *gin.Context, bodyPCID string) (string, bool) {
	pcID := c.GetString(middleware.PCIDKey)
	if pcID == "" || pcID != bodyPCID {
		respondError(c, http.StatusUnauthorized, "token is not valid for this pc", nil)
		return "", false
	}
	return pcID, true
}

// Register handles POST /api/register-agent.
func (h *AgentHandler) Register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		respondError(c, http.StatusBadRequest, "validation failed", map[string]string{"error": err.Error()})
		return
	}

	pcID, ok := h.authenticatedPCID(c, req.PCID)
	if !ok {
		return
	}

	// The body repeats the token; it must match the identity the bearer
	// header authenticated as.
	if tokenPCID, err := h.tokens.ValidateToken(req.AuthToken); err != nil || tokenPCID != pcID {
		respondError(c, http.StatusUnauthorized, "auth token mismatch", nil)
		return
	}

	ctx := c.Request.Context()
	previous, err := h.store.GetPC(ctx, pcID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to register pc", nil)
		return
	}

	systemInfo := map[string]interface{}{
		"platform":       req.SystemInfo.Platform,
		"arch":           req.SystemInfo.Arch,
		"runtimeVersion": req.SystemInfo.RuntimeVersion,
		"hostname":       req.SystemInfo.Hostname,
	}

	if err := h.store.RegisterPC(ctx, pcID, systemInfo); err != nil {
		h.log.WithField("error", err).Error("failed to register pc")
		respondError(c, http.StatusInternalServerError, "failed to register pc", nil)
		return
	}

	h.log.WithField("pcId", pcID).Info("agent registered")

	// Re-registration of an already-ONLINE machine is not a transition.
	if h.notify != nil && (previous == nil || previous.Status != models.StatusOnline) {
		h.notify(services.StatusEvent{PCID: pcID, Status: models.StatusOnline, At: time.Now()})
	}

	respondJSON(c, http.StatusOK, models.RegisterResponse{
		Message: "agent " + pcID + " registered",
	})
}

// Heartbeat handles POST /api/heartbeat, for both periodic ONLINE reports
// and the terminal OFFLINE notice.
func (h *AgentHandler) Heartbeat(c *gin.Context) {
	var req models.HeartbeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		respondError(c, http.StatusBadRequest, "validation failed", map[string]string{"error": err.Error()})
		return
	}

	pcID, ok := h.authenticatedPCID(c, req.PCID)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	previous, err := h.store.GetPC(ctx, pcID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to check pc", nil)
		return
	}
	if previous == nil {
		respondError(c, http.StatusNotFound, "pc not registered", nil)
		return
	}

	update := domains.HeartbeatUpdate{
		PCID:           pcID,
		Status:         req.Status,
		Timestamp:      time.UnixMilli(req.Timestamp),
		ShutdownReason: req.ShutdownReason,
	}
	if req.SystemInfo != nil {
		update.LastHeartbeatSuccess = req.SystemInfo.LastHeartbeatSuccess
		update.SystemInfo = map[string]interface{}{
			"platform":       req.SystemInfo.Platform,
			"arch":           req.SystemInfo.Arch,
			"runtimeVersion": req.SystemInfo.RuntimeVersion,
			"uptimeSeconds":  req.SystemInfo.UptimeSeconds,
			"memoryUsage":    req.SystemInfo.MemoryUsage,
		}
	}

	if err := h.store.RecordHeartbeat(ctx, update); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(c, http.StatusNotFound, "pc not registered", nil)
			return
		}
		h.log.WithField("error", err).Error("failed to record heartbeat")
		respondError(c, http.StatusInternalServerError, "failed to record heartbeat", nil)
		return
	}

	if previous.Status != req.Status && h.notify != nil {
		h.notify(services.StatusEvent{PCID: pcID, Status: req.Status, At: time.Now()})
	}

	respondJSON(c, http.StatusOK, models.HeartbeatResponse{OK: true})
}
