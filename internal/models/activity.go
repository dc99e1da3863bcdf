package models

import "time"

// Activity actions recorded on trip mutations
const (
	ActivityTripCreated         = "trip_created"
	ActivityTripUpdated         = "trip_updated"
	ActivityTripDeleted         = "trip_deleted"
	ActivityInvitationSent      = "invitation_sent"
	ActivityInvitationAccepted  = "invitation_accepted"
	ActivityInvitationDeclined  = "invitation_declined"
	ActivityInvitationExpired   = "invitation_expired"
	ActivityCollaboratorRemoved = "collaborator_removed"
	ActivityRoleChanged         = "role_changed"
)

// ActivityRecord is an append-only per-trip log entry written synchronously
// with the mutation it records. It is never mutated afterward.
type ActivityRecord struct {
	ID        string    `json:"id"`
	TripID    string    `json:"tripId"`
	ActorID   string    `json:"actorId"`
	Action    string    `json:"action"`
	Payload   *string   `json:"payload,omitempty"` // JSON details
	CreatedAt time.Time `json:"createdAt"`
}

// User is the minimal projection of an account managed by the identity
// layer. This service only ever reads users.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Avatar    *string   `json:"avatar,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
