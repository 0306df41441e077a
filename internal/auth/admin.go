package auth

import (
	"crypto/subtle"
	"errors"
	"log"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrAdminDisabled      = errors.New("admin login is not configured")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// AdminAuth checks the single admin account configured by environment
type AdminAuth struct {
	username     string
	passwordHash []byte
	jwt          *JWTService
}

// NewAdminAuth creates an admin authenticator. An empty passwordHash disables admin login.
func NewAdminAuth(username, passwordHash string, jwtService *JWTService) *AdminAuth {
	return &AdminAuth{
		username:     username,
		passwordHash: []byte(passwordHash),
		jwt:          jwtService,
	}
}

// Login verifies the credentials and returns an admin token
func (a *AdminAuth) Login(username, password string) (string, error) {
	if len(a.passwordHash) == 0 {
		return "", ErrAdminDisabled
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.username)) == 1
	// always run bcrypt so a wrong username costs the same as a wrong password
	passErr := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password))
	if !userOK || passErr != nil {
		log.Printf("[auth] failed admin login for %q", username)
		return "", ErrInvalidCredentials
	}
	return a.jwt.SignAdminToken(a.username)
}
