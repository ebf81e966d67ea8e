package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"example.com/distribo/services/recouvrement/internal/api/middleware"
	"example.com/distribo/services/recouvrement/internal/services"
	"example.com/distribo/services/recouvrement/internal/tracing"
)

// RecoveryHandler handles urgency and delay-settings requests
type RecoveryHandler struct {
	recoveryService services.RecoveryService
	tracer          tracing.Tracer
}

// NewRecoveryHandler creates a new recovery handler
func NewRecoveryHandler(recoveryService services.RecoveryService, tracer tracing.Tracer) *RecoveryHandler {
	return &RecoveryHandler{recoveryService: recoveryService, tracer: tracer}
}

// HandleUrgentInvoices returns the currently overdue invoices
func (h *RecoveryHandler) HandleUrgentInvoices(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-urgent-invoices")
	defer h.tracer.EndTransaction(txn)

	result, err := h.recoveryService.UrgentInvoices(c.Request.Context())
	if err != nil {
		h.tracer.RecordError(txn, err)
		RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"urgentInvoices": result.Invoices,
		"settings":       result.Settings,
	})
}

// HandleCheckExpiredDelays triggers the batch urgency recompute
func (h *RecoveryHandler) HandleCheckExpiredDelays(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-check-expired-delays")
	defer h.tracer.EndTransaction(txn)

	result, err := h.recoveryService.RecomputeUrgency(c.Request.Context())
	if err != nil {
		h.tracer.RecordError(txn, err)
		RespondError(c, err)
		return
	}

	log.Info().Int("updated", result.Updated).Msg("Urgency recompute triggered over HTTP")
	c.JSON(http.StatusOK, gin.H{"success": true, "result": result})
}

// HandleListSettings lists the delay settings
func (h *RecoveryHandler) HandleListSettings(c *gin.Context) {
	settings, err := h.recoveryService.ListSettings(c.Request.Context())
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "settings": settings})
}

// HandleGetSettingByRoot returns the setting scoped to one root
func (h *RecoveryHandler) HandleGetSettingByRoot(c *gin.Context) {
	rootName := c.Query("root")
	if rootName == "" {
		RespondError(c, NewValidationError("query parameter 'root' is required"))
		return
	}

	setting, err := h.recoveryService.GetSettingByRoot(c.Request.Context(), rootName)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "setting": setting})
}

// SettingRequest is the create/update payload for a delay setting
type SettingRequest struct {
	Days   int        `json:"days" binding:"required"`
	RootID *uuid.UUID `json:"root_id"`
}

// HandleCreateSetting creates a delay setting
func (h *RecoveryHandler) HandleCreateSetting(c *gin.Context) {
	var req SettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, NewValidationError(err.Error()))
		return
	}

	setting, err := h.recoveryService.CreateSetting(c.Request.Context(), req.Days, req.RootID)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "setting": setting})
}

// HandleUpdateSetting updates a delay setting
func (h *RecoveryHandler) HandleUpdateSetting(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, NewValidationError("invalid setting id"))
		return
	}

	var req SettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, NewValidationError(err.Error()))
		return
	}

	setting, err := h.recoveryService.UpdateSetting(c.Request.Context(), id, req.Days, req.RootID)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "setting": setting})
}

// HandleDeleteSetting deletes a delay setting. The last global setting is
// protected.
func (h *RecoveryHandler) HandleDeleteSetting(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, NewValidationError("invalid setting id"))
		return
	}

	if err := h.recoveryService.DeleteSetting(c.Request.Context(), id); err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// CustomDelayRequest is the payload of a per-invoice override
type CustomDelayRequest struct {
	Days int `json:"days" binding:"required"`
}

// HandleSetCustomDelay creates or replaces an invoice's custom delay
func (h *RecoveryHandler) HandleSetCustomDelay(c *gin.Context) {
	var req CustomDelayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, NewValidationError(err.Error()))
		return
	}

	custom, err := h.recoveryService.SetCustomDelay(c.Request.Context(), c.Param("number"), req.Days)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "customDelay": custom})
}

// HandleListCustomDelays lists the still-active custom delays
func (h *RecoveryHandler) HandleListCustomDelays(c *gin.Context) {
	result, err := h.recoveryService.ActiveCustomDelays(c.Request.Context())
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"customDelays": result.Active,
		"expiredCount": result.ExpiredCount,
	})
}

// HandleDeleteCustomDelay deletes a custom delay
func (h *RecoveryHandler) HandleDeleteCustomDelay(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, NewValidationError("invalid custom delay id"))
		return
	}

	if err := h.recoveryService.RemoveCustomDelay(c.Request.Context(), id); err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// RegisterRoutes registers the handler's routes. Settings mutations are
// admin only.
func (h *RecoveryHandler) RegisterRoutes(group *gin.RouterGroup) {
	group.GET("/recovery/urgent-invoices", h.HandleUrgentInvoices)
	group.POST("/recovery/check-expired-delays", h.HandleCheckExpiredDelays)

	group.GET("/recovery/settings", h.HandleListSettings)
	group.GET("/recovery/settings/by-root", h.HandleGetSettingByRoot)

	admin := group.Group("", middleware.RequireAdmin())
	admin.POST("/recovery/settings", h.HandleCreateSetting)
	admin.PUT("/recovery/settings/:id", h.HandleUpdateSetting)
	admin.DELETE("/recovery/settings/:id", h.HandleDeleteSetting)

	group.PUT("/invoices/:number/custom-delay", h.HandleSetCustomDelay)
	group.GET("/recovery/custom-delays", h.HandleListCustomDelays)
	group.DELETE("/recovery/custom-delays/:id", h.HandleDeleteCustomDelay)
}
