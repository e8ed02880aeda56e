package models

import "time"

// User is an issue author or assignee. IDs are supplied by callers.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// Email domains used for users created on first reference.
const (
	DefaultUserDomain  = "example.com"
	ImportedUserDomain = "imported.com"
)

// SyntheticUser derives a placeholder user for an id seen for the first time.
func SyntheticUser(id, domain string) *User {
	return &User{
		ID:       id,
		Username: "user_" + id,
		Email:    id + "@" + domain,
	}
}
