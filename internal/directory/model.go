package directory

import "time"

const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

type Client struct {
	ID        string    `json:"clientId"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Space struct {
	ID        string    `json:"spaceId"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Resource struct {
	ID            string    `json:"resourceId"`
	Name          string    `json:"name"`
	TotalQuantity int       `json:"totalQuantity"`
	Committed     int       `json:"committed"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}
