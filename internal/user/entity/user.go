package entity

import (
	"strconv"
	"time"
)

const (
	TypeTrekker = "trekker"
	TypeGuide   = "guia"
)

// User represents an account row in the `users` table.
type User struct {
	ID             int64     `db:"id"`
	Name           string    `db:"name"`
	Email          string    `db:"email"`
	PasswordHash   string    `db:"password_hash"`
	PasswordAlgo   string    `db:"password_algo"`
	UserType       string    `db:"user_type"`
	CadasturNumber *string   `db:"cadastur_number"`
	IsActive       bool      `db:"is_active"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// IsGuide reports whether the account is a tour guide.
func (u *User) IsGuide() bool { return u.UserType == TypeGuide }

// View is the public projection of a user. It never carries the password
// hash. IDs are strings so JavaScript clients do not lose precision.
type View struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Email          string  `json:"email"`
	UserType       string  `json:"user_type"`
	CadasturNumber *string `json:"cadastur_number"`
	IsActive       bool    `json:"is_active"`
	CreatedAt      string  `json:"created_at"`
}

func (u *User) View() View {
	return View{
		ID:             strconv.FormatInt(u.ID, 10),
		Name:           u.Name,
		Email:          u.Email,
		UserType:       u.UserType,
		CadasturNumber: u.CadasturNumber,
		IsActive:       u.IsActive,
		CreatedAt:      u.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// ValidUserType reports whether t is a known account type.
func ValidUserType(t string) bool {
	return t == TypeTrekker || t == TypeGuide
}
