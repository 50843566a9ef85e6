package domain

import "time"

// Delivery statuses.
const (
	DeliveryPending   = "pending"
	DeliverySent      = "sent"
	DeliveryDelivered = "delivered"
	DeliveryFailed    = "failed"
)

// HistoryRecord is one delivery attempt. Append-only: a record is
// created as pending before the transport call and updated exactly once
// with the outcome.
type HistoryRecord struct {
	ID          string
	UserID      string
	Type        ReminderType
	Status      string
	Error       string
	RemindAt    *time.Time
	AttemptedAt time.Time
}

// DeliveryStats are aggregate delivery counts for the admin API.
type DeliveryStats struct {
	Total     int64 `json:"total"`
	Sent      int64 `json:"sent"`
	Delivered int64 `json:"delivered"`
	Failed    int64 `json:"failed"`
	Pending   int64 `json:"pending"`
}
