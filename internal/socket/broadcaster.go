package socket

import "fmt"

// Broadcaster provides high-level methods for broadcasting trip events.
type Broadcaster struct {
	hub *Hub
}

func NewBroadcaster(hub *Hub) *Broadcaster {
	return &Broadcaster{hub: hub}
}

// BroadcastTripEvent pushes a change event to everyone watching the trip.
func (b *Broadcaster) BroadcastTripEvent(tripID, eventType string, payload interface{}, excludeUserID string) {
	room := fmt.Sprintf("trip:%s", tripID)
	b.hub.SendToRoom(room, MessageTripEvent, map[string]interface{}{
		"tripId": tripID,
		"event":  eventType,
		"data":   payload,
	}, excludeUserID)
}

// NotifyUser pushes a direct notification to all of a user's connections.
func (b *Broadcaster) NotifyUser(userID, eventType string, payload interface{}) {
	b.hub.SendToUser(userID, MessageNotification, map[string]interface{}{
		"event": eventType,
		"data":  payload,
	})
}
