package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fleetwatch/collector/dto"
	"fleetwatch/collector/storage"
	"fleetwatch/collector/utils"
	"fleetwatch/pkg/logger"
)

const apiKeySetting = "integration_api_key"

// SettingsHandler persists dashboard settings, currently the API key used
// by the downstream integration.
type SettingsHandler struct {
	store storage.Adapter
	log   *logger.Logger
}

// NewSettingsHandler creates a new settings handler.
func NewSettingsHandler(store storage.Adapter, log *logger.Logger) *SettingsHandler {
	return &SettingsHandler{store: store, log: log}
}

// SetAPIKey handles POST /api/settings/api-key.
func (h *SettingsHandler) SetAPIKey(c *gin.Context) {
	var req dto.APIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		respondError(c, http.StatusBadRequest, "validation failed", map[string]string{"error": err.Error()})
		return
	}

	if err := h.store.SetSetting(c.Request.Context(), apiKeySetting, req.APIKey); err != nil {
		h.log.WithField("error", err).Error("failed to store api key")
		respondError(c, http.StatusInternalServerError, "failed to store api key", nil)
		return
	}

	h.log.Info("integration api key updated")
	respondJSON(c, http.StatusOK, gin.H{"ok": true})
}

// GetAPIKey handles GET /api/settings/api-key.
func (h *SettingsHandler) GetAPIKey(c *gin.Context) {
	value, err := h.store.GetSetting(c.Request.Context(), apiKeySetting)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to read api key", nil)
		return
	}

	respondJSON(c, http.StatusOK, dto.APIKeyResponse{
		APIKey: value,
		Set:    value != "",
	})
}
