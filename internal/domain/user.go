package domain

import "time"

const (
	RoleStudent = "student"
	RoleAdmin   = "admin"
)

// Departments lista los departamentos válidos del campus.
var Departments = []string{"CEC", "CCT", "CCE", "CCP", "CBSA", "CCH", "CCHM"}

type User struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Email           string    `json:"email"`
	PasswordHash    string    `json:"-"`
	Department      string    `json:"department"`
	Role            string    `json:"role"`
	ProfileImageURL string    `json:"profile_image_url"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// UserSummary es la proyección pública de un usuario (nombre y avatar).
type UserSummary struct {
	ID              string `json:"_id"`
	Name            string `json:"name"`
	ProfileImageURL string `json:"profileImageUrl"`
}

func (u User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Name: u.Name, ProfileImageURL: u.ProfileImageURL}
}
