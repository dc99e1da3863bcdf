package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TripStatus represents the lifecycle state of a trip
type TripStatus string

const (
	TripStatusPlanning  TripStatus = "planning"
	TripStatusActive    TripStatus = "active"
	TripStatusCompleted TripStatus = "completed"
	TripStatusArchived  TripStatus = "archived"
)

// Role represents a collaborator's role on a trip
type Role string

const (
	RoleOwner       Role = "owner"
	RoleEditor      Role = "editor"
	RoleContributor Role = "contributor"
	RoleViewer      Role = "viewer"
)

// CollaboratorStatus represents current state of a collaborator entry
type CollaboratorStatus string

const (
	CollaboratorPending  CollaboratorStatus = "pending"
	CollaboratorAccepted CollaboratorStatus = "accepted"
	CollaboratorDeclined CollaboratorStatus = "declined"
	CollaboratorRemoved  CollaboratorStatus = "removed"
)

// Permission is an atomic capability checked before an operation
type Permission string

const (
	PermissionViewTrip            Permission = "view_trip"
	PermissionEditTrip            Permission = "edit_trip"
	PermissionDeleteTrip          Permission = "delete_trip"
	PermissionInviteUsers         Permission = "invite_users"
	PermissionManageCollaborators Permission = "manage_collaborators"
)

// IsValid reports whether the role is one of the four known roles.
func (r Role) IsValid() bool {
	switch r {
	case RoleOwner, RoleEditor, RoleContributor, RoleViewer:
		return true
	}
	return false
}

// IsInvitable reports whether the role may be assigned through an invitation.
// Ownership is established at trip creation and never via invite.
func (r Role) IsInvitable() bool {
	switch r {
	case RoleEditor, RoleContributor, RoleViewer:
		return true
	}
	return false
}

// PermissionsFor returns the fixed permission set for a role. It is total
// over the four roles; an unrecognized role is a programming error.
func PermissionsFor(role Role) []Permission {
	switch role {
	case RoleOwner:
		return []Permission{
			PermissionViewTrip, PermissionEditTrip, PermissionDeleteTrip,
			PermissionInviteUsers, PermissionManageCollaborators,
		}
	case RoleEditor:
		return []Permission{PermissionViewTrip, PermissionEditTrip, PermissionInviteUsers}
	case RoleContributor:
		return []Permission{PermissionViewTrip, PermissionEditTrip}
	case RoleViewer:
		return []Permission{PermissionViewTrip}
	default:
		panic(fmt.Sprintf("models: unknown role %q", role))
	}
}

// RoleHasPermission reports whether the role's permission set contains p.
func RoleHasPermission(role Role, p Permission) bool {
	if !role.IsValid() {
		return false
	}
	for _, rp := range PermissionsFor(role) {
		if rp == p {
			return true
		}
	}
	return false
}

// Collaborator is a (user, role, status) membership record embedded in a
// Trip. It is a value type and never separately addressable.
type Collaborator struct {
	UserID       string             `json:"userId"`
	Role         Role               `json:"role"`
	Status       CollaboratorStatus `json:"status"`
	InvitedBy    string             `json:"invitedBy"`
	InvitedAt    time.Time          `json:"invitedAt"`
	AcceptedAt   *time.Time         `json:"acceptedAt,omitempty"`
	LastActiveAt *time.Time         `json:"lastActiveAt,omitempty"`
}

// IsActive reports whether the entry currently occupies the user's slot
// on the trip (pending or accepted).
func (c *Collaborator) IsActive() bool {
	return c.Status == CollaboratorPending || c.Status == CollaboratorAccepted
}

// Trip is the shared planning aggregate being collaborated upon.
type Trip struct {
	ID             string           `json:"id"`
	OwnerID        string           `json:"ownerId"`
	Title          string           `json:"title"`
	Destination    string           `json:"destination"`
	Description    *string          `json:"description,omitempty"`
	StartDate      *time.Time       `json:"startDate,omitempty"`
	EndDate        *time.Time       `json:"endDate,omitempty"`
	Budget         *decimal.Decimal `json:"budget,omitempty"`
	Tags           []string         `json:"tags,omitempty"`
	Status         TripStatus       `json:"status"`
	Collaborators  []Collaborator   `json:"collaborators"`
	Version        int64            `json:"version"`
	LastModifiedBy string           `json:"lastModifiedBy"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}

// NewOwnerCollaborator builds the sole owner entry created atomically
// with the trip. It can never be removed or re-roled.
func NewOwnerCollaborator(ownerID string, now time.Time) Collaborator {
	return Collaborator{
		UserID:     ownerID,
		Role:       RoleOwner,
		Status:     CollaboratorAccepted,
		InvitedBy:  ownerID,
		InvitedAt:  now,
		AcceptedAt: &now,
	}
}

// Collaborator returns a pointer to the entry for userID, or nil.
func (t *Trip) Collaborator(userID string) *Collaborator {
	for i := range t.Collaborators {
		if t.Collaborators[i].UserID == userID {
			return &t.Collaborators[i]
		}
	}
	return nil
}

// AcceptedCollaborator returns the entry for userID only if it is accepted.
func (t *Trip) AcceptedCollaborator(userID string) *Collaborator {
	c := t.Collaborator(userID)
	if c == nil || c.Status != CollaboratorAccepted {
		return nil
	}
	return c
}

// RoleOf resolves the accepted role of userID on the trip.
func (t *Trip) RoleOf(userID string) (Role, bool) {
	c := t.AcceptedCollaborator(userID)
	if c == nil {
		return "", false
	}
	return c.Role, true
}

// AcceptedCollaboratorIDs lists every user with an accepted entry,
// owner included. Used to drive cache fan-out on mutation.
func (t *Trip) AcceptedCollaboratorIDs() []string {
	ids := make([]string, 0, len(t.Collaborators))
	for i := range t.Collaborators {
		if t.Collaborators[i].Status == CollaboratorAccepted {
			ids = append(ids, t.Collaborators[i].UserID)
		}
	}
	return ids
}
