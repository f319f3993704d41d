package utils

import "golang.org/x/crypto/bcrypt"

// HashSecret produces the value stored in INTERNAL_API_KEY_HASH.
func HashSecret(secret string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	return string(b), err
}

func CheckSecret(hash, secret string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret))
}
