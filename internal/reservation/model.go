package reservation

import "time"

type ResourceLine struct {
	ResourceID string `json:"resourceId"`
	Quantity   int    `json:"quantity"`
}

type Reservation struct {
	ID        string         `json:"reservationId"`
	ClientID  string         `json:"clientId"`
	SpaceID   string         `json:"spaceId"`
	StartDate time.Time      `json:"startDate"`
	EndDate   time.Time      `json:"endDate"`
	Status    Status         `json:"status"`
	Resources []ResourceLine `json:"resources"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	ClosedAt  *time.Time     `json:"closedAt,omitempty"`
}

// ResourceInfo is what the resource directory reports for a known resource.
type ResourceInfo struct {
	ID            string
	TotalQuantity int
	Active        bool
}
