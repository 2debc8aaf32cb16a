package events

import "time"

// ---- Inbound payloads (consumed by the reactor) ----

type CustomerStatusChanged struct {
	CustomerID     string `json:"customer_id"`
	PreviousStatus string `json:"previous_status"`
	NewStatus      string `json:"new_status"`
	Reason         string `json:"reason"`
}

type CustomerCreated struct {
	CustomerID string    `json:"customer_id"`
	NationalID string    `json:"national_id"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	Email      string    `json:"email"`
	Timestamp  time.Time `json:"timestamp"`
}

type CustomerDeleted struct {
	CustomerID string    `json:"customer_id"`
	NationalID string    `json:"national_id"`
	Timestamp  time.Time `json:"timestamp"`
}
