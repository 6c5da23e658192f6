package db

import "time"

// User is a Spotify user who has signed in to the web API.
type User struct {
	ID          string
	DisplayName string
	Email       string
	Country     string
	Product     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Session is an authenticated web session holding the user's Spotify tokens.
type Session struct {
	ID           string
	UserID       string
	AccessToken  string
	RefreshToken string
	TokenExpiry  time.Time
	CreatedAt    time.Time
	ExpiresAt    time.Time
}
