package chat

import "time"

// Session captures a transient anonymous conversation about one city.
type Session struct {
	ID        string    `json:"id"`
	City      string    `json:"city"`
	CreatedAt time.Time `json:"createdAt"`
}
