package cryptox

import "golang.org/x/crypto/bcrypt"

var passwordCost = 12

// HashPassword returns a bcrypt hash of password. It is one-way and must
// never be used for profile fields.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), passwordCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// VerifyPassword reports whether password matches the bcrypt hash.
func VerifyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
