package handler

import (
	"net/http"

	"opscheck/backend/internal/models"

	"github.com/gin-gonic/gin"
)

// Acknowledge handles POST /violations/:id/acknowledge.
func (h *Handler) Acknowledge(c *gin.Context) {
	claims, ok := h.actorFromRequest(c)
	if !ok {
		return
	}
	res, err := h.Engine.Acknowledge(c.Param("id"), claims.ActorID)
	respond(c, res, err)
}

// SubmitAction handles POST /violations/:id/action.
func (h *Handler) SubmitAction(c *gin.Context) {
	claims, ok := h.actorFromRequest(c)
	if !ok {
		return
	}
	var req struct {
		ActionSummary string `json:"action_summary"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.Engine.SubmitAction(c.Param("id"), claims.ActorID, req.ActionSummary)
	respond(c, res, err)
}

// Verify handles POST /violations/:id/verify.
func (h *Handler) Verify(c *gin.Context) {
	claims, ok := h.actorFromRequest(c)
	if !ok {
		return
	}
	res, err := h.Engine.Verify(c.Param("id"), claims.ActorID)
	respond(c, res, err)
}

// Resolve handles POST /violations/:id/resolve.
func (h *Handler) Resolve(c *gin.Context) {
	claims, ok := h.actorFromRequest(c)
	if !ok {
		return
	}
	var req struct {
		ResolutionNote string `json:"resolution_note"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	res, err := h.Engine.Resolve(c.Param("id"), claims.ActorID, req.ResolutionNote)
	respond(c, res, err)
}

// Waive handles POST /violations/:id/waive. The organization scope comes
// from the token, not the request body, so a caller cannot waive across
// tenants by supplying a different org id.
func (h *Handler) Waive(c *gin.Context) {
	claims, ok := h.actorFromRequest(c)
	if !ok {
		return
	}
	var req struct {
		WaiverReason string `json:"waiver_reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.Engine.Waive(c.Param("id"), claims.ActorID, req.WaiverReason, claims.OrgID)
	respond(c, res, err)
}

// LegacyResolve handles POST /violations/:id/legacy-resolve, the
// compatibility path for callers that do not drive the full machine.
func (h *Handler) LegacyResolve(c *gin.Context) {
	claims, ok := h.actorFromRequest(c)
	if !ok {
		return
	}
	var req struct {
		ResolutionNote string `json:"resolution_note"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	res, err := h.Engine.LegacyResolve(c.Param("id"), claims.ActorID, req.ResolutionNote)
	respond(c, res, err)
}

// CreateViolation handles POST /internal/violations, the primitive the
// external detection path calls.
func (h *Handler) CreateViolation(c *gin.Context) {
	claims, ok := h.actorFromRequest(c)
	if !ok {
		return
	}
	var req struct {
		VenueID              string   `json:"venue_id" binding:"required"`
		Category             string   `json:"category" binding:"required"`
		Tags                 []string `json:"tags"`
		VerificationRequired bool     `json:"verification_required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	v := &models.Violation{
		OrgID:                claims.OrgID,
		VenueID:              req.VenueID,
		Category:             req.Category,
		Tags:                 req.Tags,
		VerificationRequired: req.VerificationRequired,
	}
	if err := h.Engine.CreateViolation(v, claims.ActorID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusCreated, v)
}

// InsertEscalation handles POST /internal/violations/:id/escalations, the
// hook the external escalation trigger calls. Escalation events annotate
// the log; they never change status.
func (h *Handler) InsertEscalation(c *gin.Context) {
	if _, ok := h.actorFromRequest(c); !ok {
		return
	}
	var req struct {
		EventType string            `json:"event_type" binding:"required"`
		Metadata  map[string]string `json:"metadata"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.Engine.InsertEscalationEvent(c.Param("id"), models.EventType(req.EventType), req.Metadata)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "appended"})
}

// GetEvents handles GET /violations/:id/events and returns the full
// history in replay order.
func (h *Handler) GetEvents(c *gin.Context) {
	if _, ok := h.actorFromRequest(c); !ok {
		return
	}
	events, err := h.Storage.GetEventsForViolation(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}
