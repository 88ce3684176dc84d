package utils

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// MaxPasswordBytes is the longest input bcrypt accepts.
const MaxPasswordBytes = 72

// PasswordCost is the bcrypt work factor used by HashPassword.
var PasswordCost = 12

var ErrPasswordTooLong = errors.New("password exceeds 72 bytes")

// HashPassword hashes password with bcrypt at PasswordCost. Inputs longer
// than MaxPasswordBytes are refused rather than truncated.
func HashPassword(password string) (string, error) {
	if len(password) > MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), PasswordCost)
	return string(hash), err
}

// CheckPasswordHash reports whether password matches a hash produced by
// HashPassword. Malformed hashes never match.
func CheckPasswordHash(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
