package events

import "time"

const (
	EventTypeReservationCreated  = "ReservationCreated"
	EventTypeReservationCanceled = "ReservationCanceled"
)

type ReservationLine struct {
	ResourceID string `json:"resourceId"`
	Quantity   int    `json:"quantity"`
}

type ReservationCreatedPayload struct {
	ReservationID string            `json:"reservationId"`
	ClientID      string            `json:"clientId"`
	SpaceID       string            `json:"spaceId"`
	StartDate     time.Time         `json:"startDate"`
	EndDate       time.Time         `json:"endDate"`
	Resources     []ReservationLine `json:"resources,omitempty"`
}

type ReservationCanceledPayload struct {
	ReservationID string            `json:"reservationId"`
	ClientID      string            `json:"clientId"`
	SpaceID       string            `json:"spaceId"`
	ClosedAt      time.Time         `json:"closedAt"`
	Released      []ReservationLine `json:"released,omitempty"`
}
