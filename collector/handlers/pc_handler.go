package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"fleetwatch/collector/domains"
	"fleetwatch/collector/dto"
	"fleetwatch/collector/services"
	"fleetwatch/collector/storage"
	"fleetwatch/collector/utils"
	"fleetwatch/pkg/logger"
	"fleetwatch/pkg/models"
)

// PCHandler serves the dashboard's machine-management endpoints.
type PCHandler struct {
	store        storage.Adapter
	tokens       *services.TokenService
	offlineAfter time.Duration
	log          *logger.Logger
}

// NewPCHandler creates a new PC handler.
func NewPCHandler(store storage.Adapter, tokens *services.TokenService, offlineAfter time.Duration, log *logger.Logger) *PCHandler {
	return &PCHandler{store: store, tokens: tokens, offlineAfter: offlineAfter, log: log}
}

// Enroll handles POST /api/pcs: creates the record and mints the agent
// token. This is the out-of-band identity assignment; the token is shown
// once and handed to the machine by the operator.
func (h *PCHandler) Enroll(c *gin.Context) {
	var req dto.EnrollPCRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		respondError(c, http.StatusBadRequest, "validation failed", map[string]string{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	if err := h.store.EnrollPC(ctx, req.PCID, req.Owner, req.Location, req.PCType); err != nil {
		h.log.WithField("error", err).Error("failed to enroll pc")
		respondError(c, http.StatusInternalServerError, "failed to enroll pc", nil)
		return
	}

	token, err := h.tokens.GenerateToken(req.PCID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to generate token", nil)
		return
	}

	h.log.WithField("pcId", req.PCID).Info("pc enrolled")
	respondJSON(c, http.StatusOK, dto.EnrollPCResponse{
		PCID:      req.PCID,
		AuthToken: token,
	})
}

func (h *PCHandler) toResponse(pc domains.PC, now time.Time) dto.PCResponse {
	resp := dto.PCResponse{
		PCID:                 pc.PCID,
		Status:               pc.Status,
		Owner:                pc.Owner,
		Location:             pc.Location,
		PCType:               pc.PCType,
		SystemInfo:           pc.SystemInfo,
		LastHeartbeatSuccess: pc.LastHeartbeatSuccess,
		ShutdownReason:       pc.ShutdownReason,
		IsHealthy:            pc.Status == models.StatusOnline && now.Sub(pc.LastSeenAt) < 2*h.offlineAfter,
	}
	if !pc.RegisteredAt.IsZero() {
		resp.RegisteredAt = pc.RegisteredAt.Format(time.RFC3339)
	}
	if !pc.LastSeenAt.IsZero() {
		resp.LastSeenAt = pc.LastSeenAt.Format(time.RFC3339)
	}
	return resp
}

// List handles GET /api/pcs.
func (h *PCHandler) List(c *gin.Context) {
	pcs, err := h.store.ListPCs(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to list pcs", nil)
		return
	}

	now := time.Now()
	responses := make([]dto.PCResponse, len(pcs))
	for i, pc := range pcs {
		responses[i] = h.toResponse(pc, now)
	}
	respondJSON(c, http.StatusOK, dto.ListPCsResponse{PCs: responses})
}

// Get handles GET /api/pcs/:pcId.
func (h *PCHandler) Get(c *gin.Context) {
	pc, err := h.store.GetPC(c.Request.Context(), c.Param("pcId"))
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to get pc", nil)
		return
	}
	if pc == nil {
		respondError(c, http.StatusNotFound, "pc not found", nil)
		return
	}
	respondJSON(c, http.StatusOK, h.toResponse(*pc, time.Now()))
}

// Update handles PUT /api/pcs/:pcId.
func (h *PCHandler) Update(c *gin.Context) {
	var req dto.UpdatePCRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}

	err := h.store.UpdatePCDetails(c.Request.Context(), c.Param("pcId"), req.Owner, req.Location, req.PCType)
	if errors.Is(err, storage.ErrNotFound) {
		respondError(c, http.StatusNotFound, "pc not found", nil)
		return
	}
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to update pc", nil)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"ok": true})
}

// Delete handles DELETE /api/pcs/:pcId.
func (h *PCHandler) Delete(c *gin.Context) {
	err := h.store.DeletePC(c.Request.Context(), c.Param("pcId"))
	if errors.Is(err, storage.ErrNotFound) {
		respondError(c, http.StatusNotFound, "pc not found", nil)
		return
	}
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to delete pc", nil)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"ok": true})
}
