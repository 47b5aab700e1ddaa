package utils

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is the shortest password accepted at registration.
const MinPasswordLength = 6

var (
	ErrPasswordTooShort = errors.New("password must be at least 6 characters")
	// bcrypt silently ignores anything past 72 bytes
	ErrPasswordTooLong = errors.New("password must be at most 72 bytes")
)

// ValidatePassword checks the registration password policy.
func ValidatePassword(password string) error {
	switch {
	case len(password) < MinPasswordLength:
		return ErrPasswordTooShort
	case len(password) > 72:
		return ErrPasswordTooLong
	}
	return nil
}

// HashPassword returns a bcrypt hash of a password that passed ValidatePassword.
func HashPassword(password string) (string, error) {
	if err := ValidatePassword(password); err != nil {
		return "", err
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(hashed), err
}

// CheckPassword compares a stored hash with a login attempt.
func CheckPassword(hashedPassword, password string) bool {
	if hashedPassword == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password)) == nil
}
