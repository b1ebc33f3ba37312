package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

const bcryptCost = 10

// HashPassword derives a salted bcrypt digest from a plaintext password.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password is empty")
	}
	digest, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

// VerifyPassword compares a plaintext password against a stored digest in
// constant time.
func VerifyPassword(digest, password string) error {
	if digest == "" {
		return errors.New("password digest is empty")
	}
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(password))
}
