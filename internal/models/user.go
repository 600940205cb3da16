package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleUnassigned UserRole = "UNASSIGNED"
	RoleStudent    UserRole = "STUDENT"
	RoleInstructor UserRole = "INSTRUCTOR"
	RoleAdmin      UserRole = "ADMIN"
)

// Valid reports whether the role belongs to the closed set.
func (r UserRole) Valid() bool {
	switch r {
	case RoleUnassigned, RoleStudent, RoleInstructor, RoleAdmin:
		return true
	}
	return false
}

// User represents an identity record in the users table. Records are
// created on first sign-in and never deleted; afterwards only role
// promotion mutates them.
type User struct {
	Email     string    `db:"email" json:"email"`
	FullName  string    `db:"full_name" json:"full_name"`
	Role      UserRole  `db:"role" json:"role"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role      *UserRole
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
