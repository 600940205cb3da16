package models

import "time"

// Selection represents a student's unconfirmed intent to purchase a
// class. It is deleted either by the student or as the last step of a
// successful purchase; it never outlives the enrollment it produced.
type Selection struct {
	ID           string    `db:"id" json:"id"`
	StudentEmail string    `db:"student_email" json:"student_email"`
	ClassID      string    `db:"class_id" json:"class_id"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// SelectionDetail adds class context for list responses.
type SelectionDetail struct {
	Selection
	ClassName string  `db:"class_name" json:"class_name"`
	ImageURL  string  `db:"image_url" json:"image_url"`
	Price     float64 `db:"price" json:"price"`
}
