package models

import "gorm.io/gorm"

// Role is a user's authorization role.
type Role string

const (
	RoleCustomer Role = "CUSTOMER"
	RoleStaff    Role = "STAFF"
)

// User is an account that can place orders; staff can also manage them.
type User struct {
	gorm.Model
	Name     string `gorm:"size:255;not null" json:"name"`
	Email    string `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Password string `gorm:"size:255;not null" json:"-"` // bcrypt hash
	Role     Role   `gorm:"size:50;not null;default:CUSTOMER" json:"role"`
}
