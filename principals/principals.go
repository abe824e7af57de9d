package principals

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Principal is the authenticated user identity shared across all service
// providers. It is owned by the credential store; the SSO core only reads it.
type Principal struct {
	ID           string    `json:"id,omitempty"`          // Unique identifier for the principal
	Username     string    `json:"username,omitempty"`    // Unique login name
	Email        string    `json:"email,omitempty"`       // Principal's email address
	PasswordHash string    `json:"-"`                     // Hashed password - never serialize
	FirstName    string    `json:"first_name,omitempty"`  // First name
	LastName     string    `json:"last_name,omitempty"`   // Last name
	DateJoined   time.Time `json:"date_joined,omitempty"` // When the principal registered
	LastLogin    time.Time `json:"last_login,omitempty"`  // Last successful login

	Locked bool `json:"locked,omitempty"` // Locked principals cannot log in
}

// Profile is the public subset of a Principal returned to service providers
// from a successful ticket validation. The password hash and lock state stay
// server-side.
type Profile struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

func (p *Principal) Profile() Profile {
	return Profile{
		ID:        p.ID,
		Username:  p.Username,
		Email:     p.Email,
		FirstName: p.FirstName,
		LastName:  p.LastName,
	}
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
