package users

import (
	"time"

	"docvault/internal/access"
)

type User struct {
	ID         string      `json:"id"`
	Email      string      `json:"email"`
	FullName   string      `json:"fullName"`
	PictureURL string      `json:"pictureUrl"`
	Role       access.Role `json:"role"`
	CreatedAt  time.Time   `json:"createdAt"`
	UpdatedAt  time.Time   `json:"updatedAt"`
}
