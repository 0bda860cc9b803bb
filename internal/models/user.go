package models

import (
	"strings"
	"time"
)

// Roles recognised by the authorization gate. Roles are assigned
// server-side at registration time and carried in JWT claims; the API
// never trusts a role supplied in a request body.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// User represents an account that can author or submit solutions.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	Email     string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Role      string    `gorm:"size:16;not null;default:user" json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsAdminRole reports whether the given role string grants admin rights.
func IsAdminRole(role string) bool {
	return strings.EqualFold(strings.TrimSpace(role), RoleAdmin)
}
