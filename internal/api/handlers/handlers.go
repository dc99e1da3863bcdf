package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/roamly/roamly-backend/internal/service"
)

// Handlers bundles every HTTP handler for route registration in main.
type Handlers struct {
	Trip          *TripHandler
	Collaboration *CollaborationHandler
}

func NewHandlers(services *service.Services) *Handlers {
	return &Handlers{
		Trip:          NewTripHandler(services.Trip, services.Permission, services.Activity),
		Collaboration: NewCollaborationHandler(services.Collaboration),
	}
}

// handleServiceError maps service errors to HTTP responses
func handleServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Resource not found"})
	case errors.Is(err, service.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
	case errors.Is(err, service.ErrInvitationNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Invitation not found"})
	case errors.Is(err, service.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
	case errors.Is(err, service.ErrAlreadyCollaborator):
		c.JSON(http.StatusConflict, gin.H{"error": "User is already a collaborator"})
	case errors.Is(err, service.ErrInvitationPending):
		c.JSON(http.StatusConflict, gin.H{"error": "An invitation is already pending"})
	case errors.Is(err, service.ErrStateConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "Operation conflicts with current state"})
	case errors.Is(err, service.ErrVersionConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "Trip was modified concurrently"})
	case errors.Is(err, service.ErrInvalidRole):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid role"})
	case errors.Is(err, service.ErrInvalidToken):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
