package stream

import (
	"encoding/json"
	"time"
)

const (
	TypeSubscribe        = "SUBSCRIBE"
	TypeVehiclePosition  = "VEHICLE_POSITION"
	TypeRiderPosition    = "RIDER_POSITION"
	TypeVehicleBroadcast = "VEHICLE_POSITION_BROADCAST"
	TypeRiderBroadcast   = "RIDER_POSITION_BROADCAST"
)

// Position is a timestamped coordinate as carried on the wire.
type Position struct {
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	CapturedAt time.Time `json:"captured_at,omitempty"`
}

// Message is the single wire envelope; Type selects which fields are set.
type Message struct {
	Type        string    `json:"type"`
	TripID      string    `json:"trip_id,omitempty"`
	RiderID     string    `json:"rider_id,omitempty"`
	DisplayName string    `json:"display_name,omitempty"`
	Position    *Position `json:"position,omitempty"`
}

// Decode parses a wire message. A nil result means the payload was malformed
// or incomplete and must be dropped.
func Decode(raw []byte) *Message {
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	switch m.Type {
	case TypeSubscribe:
		if m.TripID == "" {
			return nil
		}
	case TypeVehiclePosition:
		if m.TripID == "" || m.Position == nil {
			return nil
		}
	case TypeRiderPosition:
		if m.TripID == "" || m.RiderID == "" || m.Position == nil {
			return nil
		}
	default:
		return nil
	}
	return &m
}

func encodeVehicleBroadcast(tripID string, pos Position) []byte {
	payload, _ := json.Marshal(Message{
		Type:     TypeVehicleBroadcast,
		TripID:   tripID,
		Position: &pos,
	})
	return payload
}

func encodeRiderBroadcast(tripID string, rider RiderPosition) []byte {
	pos := rider.Position
	payload, _ := json.Marshal(Message{
		Type:        TypeRiderBroadcast,
		TripID:      tripID,
		RiderID:     rider.RiderID,
		DisplayName: rider.DisplayName,
		Position:    &pos,
	})
	return payload
}
