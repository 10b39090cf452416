package model

import "github.com/google/uuid"

// Profile is a patient or physiotherapist record joined with the user it
// wraps. ID is the profile id, not the user id.
type Profile struct {
	ID       uuid.UUID `json:"id" db:"id"`
	UserID   uuid.UUID `json:"user_id" db:"user_id"`
	FullName string    `json:"full_name" db:"full_name"`
	Email    string    `json:"email" db:"email"`
}
