package models

import "time"

// ClassStatus is the moderation state of a published class.
type ClassStatus string

const (
	ClassStatusPending  ClassStatus = "PENDING"
	ClassStatusApproved ClassStatus = "APPROVED"
	ClassStatusDenied   ClassStatus = "DENIED"
)

// Valid reports whether the status belongs to the closed set.
func (s ClassStatus) Valid() bool {
	switch s {
	case ClassStatusPending, ClassStatusApproved, ClassStatusDenied:
		return true
	}
	return false
}

// Class represents an offering published by an instructor.
// Invariant: 0 <= enrolled_count <= capacity, enforced by conditional
// updates in the repository. Available seats are always derived.
type Class struct {
	ID              string      `db:"id" json:"id"`
	InstructorEmail string      `db:"instructor_email" json:"instructor_email"`
	Name            string      `db:"name" json:"name"`
	ImageURL        string      `db:"image_url" json:"image_url"`
	Capacity        int         `db:"capacity" json:"capacity"`
	EnrolledCount   int         `db:"enrolled_count" json:"enrolled_count"`
	Status          ClassStatus `db:"status" json:"status"`
	Feedback        *string     `db:"feedback" json:"feedback,omitempty"`
	Price           float64     `db:"price" json:"price"`
	CreatedAt       time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time   `db:"updated_at" json:"updated_at"`
}

// AvailableSeats returns the derived free-seat count.
func (c *Class) AvailableSeats() int {
	return c.Capacity - c.EnrolledCount
}

// ClassDetail extends Class with the instructor's display name.
type ClassDetail struct {
	Class
	InstructorName *string `db:"instructor_name" json:"instructor_name,omitempty"`
}

// ClassFilter defines filter criteria for listing classes.
type ClassFilter struct {
	Status    ClassStatus
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
