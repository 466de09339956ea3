package models

import "time"

// Appointment status codes as stored by the booking backend.
const (
	StatusPending             = "pending"
	StatusConfirmed           = "confirmed"
	StatusCompleted           = "completed"
	StatusRejected            = "rejected"
	StatusCancelledByCustomer = "cancelled_by_customer"
	StatusCancelledByAdmin    = "cancelled_by_admin"
)

// AppointmentSummary is the read-only view of a booking the assistant needs.
// A zero ScheduledAt means the stored date could not be resolved.
type AppointmentSummary struct {
	ID          string    `bson:"_id,omitempty" json:"id"`
	UserID      string    `bson:"user_id" json:"user_id"`
	ServiceName string    `bson:"service_name" json:"service_name"`
	ScheduledAt time.Time `bson:"scheduled_at,omitempty" json:"scheduled_at,omitempty"`
	Status      string    `bson:"status,omitempty" json:"status,omitempty"`
}

// HasDate reports whether the appointment carries a usable date.
func (a AppointmentSummary) HasDate() bool {
	return !a.ScheduledAt.IsZero()
}

// UserProfile holds the optional personal details used to personalise replies.
// Empty strings mean the field was never provided.
type UserProfile struct {
	Name    string `bson:"name,omitempty" json:"name,omitempty"`
	Gender  string `bson:"gender,omitempty" json:"gender,omitempty"`
	Phone   string `bson:"phone,omitempty" json:"phone,omitempty"`
	Address string `bson:"address,omitempty" json:"address,omitempty"`
}

// User is the authenticated identity attached to a chat session.
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name,omitempty"`
}

// SameUser reports whether a and b identify the same account. Two nil users
// are the same (both signed out).
func SameUser(a, b *User) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.ID == b.ID
}
