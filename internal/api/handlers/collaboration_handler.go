package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/roamly/roamly-backend/internal/api/middleware"
	"github.com/roamly/roamly-backend/internal/models"
	"github.com/roamly/roamly-backend/internal/service"
)

// CollaborationHandler handles invitations and membership management.
type CollaborationHandler struct {
	collabSvc service.CollaborationService
}

func NewCollaborationHandler(collabSvc service.CollaborationService) *CollaborationHandler {
	return &CollaborationHandler{collabSvc: collabSvc}
}

type inviteRequest struct {
	UserID string `json:"userId" binding:"required"`
	Role   string `json:"role" binding:"required,oneof=editor contributor viewer"`
}

type changeRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

// Invite handles POST /api/trips/:id/collaborators
func (h *CollaborationHandler) Invite(c *gin.Context) {
	userID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}

	var req inviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	invitation, err := h.collabSvc.Invite(c.Request.Context(), c.Param("id"), userID, req.UserID, models.Role(req.Role))
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, invitation)
}

// Accept handles POST /api/trips/:id/collaborators/accept
func (h *CollaborationHandler) Accept(c *gin.Context) {
	userID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}

	collaboration, err := h.collabSvc.Accept(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, collaboration)
}

// Decline handles POST /api/trips/:id/collaborators/decline
func (h *CollaborationHandler) Decline(c *gin.Context) {
	userID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}

	if err := h.collabSvc.Decline(c.Request.Context(), c.Param("id"), userID); err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Invitation declined"})
}

// Remove handles DELETE /api/trips/:id/collaborators/:userId
func (h *CollaborationHandler) Remove(c *gin.Context) {
	userID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}

	if err := h.collabSvc.Remove(c.Request.Context(), c.Param("id"), userID, c.Param("userId")); err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Collaborator removed"})
}

// ChangeRole handles PUT /api/trips/:id/collaborators/:userId/role
func (h *CollaborationHandler) ChangeRole(c *gin.Context) {
	userID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}

	var req changeRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	collaboration, err := h.collabSvc.ChangeRole(c.Request.Context(), c.Param("id"), userID, c.Param("userId"), models.Role(req.Role))
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, collaboration)
}

// List handles GET /api/trips/:id/collaborators
func (h *CollaborationHandler) List(c *gin.Context) {
	userID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}

	collaborators, err := h.collabSvc.Collaborators(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"collaborators": collaborators})
}

// Pending handles GET /api/invitations/pending
func (h *CollaborationHandler) Pending(c *gin.Context) {
	userID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}

	invitations, err := h.collabSvc.PendingForUser(c.Request.Context(), userID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"invitations": invitations})
}
