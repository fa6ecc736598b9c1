package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"fleetwatch/collector/services"
	"fleetwatch/collector/utils"
	"fleetwatch/pkg/logger"
	"fleetwatch/pkg/models"
)

// CredentialsHandler serves the dashboard's run-credentials flow: mint a
// short-lived session bound to an operator-supplied API key, then let the
// execution surface fetch the key back by session id.
type CredentialsHandler struct {
	sessions services.SessionStore
	log      *logger.Logger
}

// NewCredentialsHandler creates a new credentials handler.
func NewCredentialsHandler(sessions services.SessionStore, log *logger.Logger) *CredentialsHandler {
	return &CredentialsHandler{sessions: sessions, log: log}
}

// RunCredentials handles POST /api/run-credentials.
func (h *CredentialsHandler) RunCredentials(c *gin.Context) {
	var req models.RunCredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		respondError(c, http.StatusBadRequest, "validation failed", map[string]string{"error": err.Error()})
		return
	}

	session, err := h.sessions.Create(c.Request.Context(), req.APIKey)
	if err != nil {
		h.log.WithField("error", err).Error("failed to create session")
		respondError(c, http.StatusInternalServerError, "failed to create session", nil)
		return
	}

	// The key itself is deliberately kept out of the log line.
	h.log.WithField("sessionId", session.ID).Info("run-credentials session created")
	respondJSON(c, http.StatusOK, models.RunCredentialsResponse{SessionID: session.ID})
}

// GetCredentials handles GET /api/credentials/:sessionId.
func (h *CredentialsHandler) GetCredentials(c *gin.Context) {
	session, err := h.sessions.Get(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to read session", nil)
		return
	}
	if session == nil {
		respondError(c, http.StatusNotFound, "session not found or expired", nil)
		return
	}

	respondJSON(c, http.StatusOK, models.CredentialsResponse{
		SessionID: session.ID,
		APIKey:    session.APIKey,
		CreatedAt: session.CreatedAt.Format(time.RFC3339),
	})
}
