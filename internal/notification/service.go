package notification

import "log"

// Trip change event types accepted by the sink
const (
	EventTripCreated             = "trip.created"
	EventTripUpdated             = "trip.updated"
	EventTripDeleted             = "trip.deleted"
	EventCollaboratorInvited     = "collaborator.invited"
	EventCollaboratorAccepted    = "collaborator.accepted"
	EventCollaboratorDeclined    = "collaborator.declined"
	EventCollaboratorRemoved     = "collaborator.removed"
	EventCollaboratorRoleChanged = "collaborator.role_changed"
)

// Broadcaster is the delivery surface for change notifications. Delivery
// and ordering guarantees are out of scope; publishing is fire-and-forget.
type Broadcaster interface {
	BroadcastTripEvent(tripID, eventType string, payload interface{}, excludeUserID string)
	NotifyUser(userID, eventType string, payload interface{})
}

// Service publishes change notifications after trip mutations commit.
type Service struct {
	broadcaster Broadcaster
}

func NewService() *Service {
	return &Service{}
}

// SetBroadcaster attaches the delivery surface once the hub is up.
func (s *Service) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// PublishTripEvent fans a change event out to everyone watching the trip.
func (s *Service) PublishTripEvent(tripID, eventType string, payload interface{}, actorID string) {
	if s == nil || s.broadcaster == nil {
		return
	}
	s.broadcaster.BroadcastTripEvent(tripID, eventType, payload, actorID)
}

// NotifyUser delivers a direct notification, e.g. a new invitation.
func (s *Service) NotifyUser(userID, eventType string, payload interface{}) {
	if s == nil || s.broadcaster == nil {
		log.Printf("[Notification] no broadcaster, dropping %s for user %s", eventType, userID)
		return
	}
	s.broadcaster.NotifyUser(userID, eventType, payload)
}
