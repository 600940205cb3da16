package models

import "time"

// Enrollment is the append-only record of a paid class purchase.
// Rows are created exactly once per successful transaction and never
// mutated or deleted. PaymentRef is unique, which is what makes
// purchase retries idempotent per payment reference.
type Enrollment struct {
	ID           string    `db:"id" json:"id"`
	StudentEmail string    `db:"student_email" json:"student_email"`
	ClassID      string    `db:"class_id" json:"class_id"`
	Amount       float64   `db:"amount" json:"amount"`
	PaymentRef   string    `db:"payment_ref" json:"payment_ref"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// EnrollmentDetail adds class context for responses and exports.
type EnrollmentDetail struct {
	Enrollment
	ClassName       string `db:"class_name" json:"class_name"`
	InstructorEmail string `db:"instructor_email" json:"instructor_email"`
}
