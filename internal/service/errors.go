package service

import "errors"

// Expected business conditions are returned as typed sentinel errors and
// mapped to HTTP statuses in the handlers. Only infrastructure failures
// abort the call chain as wrapped, untyped errors.
var (
	ErrValidation          = errors.New("validation failed")
	ErrNotFound            = errors.New("resource not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrPermissionDenied    = errors.New("permission denied")
	ErrAlreadyCollaborator = errors.New("user is already a collaborator")
	ErrInvitationPending   = errors.New("invitation already pending")
	ErrInvitationNotFound  = errors.New("invitation not found")
	ErrInvalidRole         = errors.New("invalid role")
	ErrStateConflict       = errors.New("operation conflicts with current state")
	ErrVersionConflict     = errors.New("trip was modified concurrently")
	ErrInvalidToken        = errors.New("invalid or expired token")
)
