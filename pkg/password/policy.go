package password

import (
	"fmt"
	"strings"
	"unicode"
)

const (
	MinLength = 8
	// MaxLength stays under bcrypt's 72-byte input limit with room for
	// the server pepper appended before hashing.
	MaxLength = 64
)

// PolicyError holds validation error details (internal use only)
type PolicyError struct {
	Errors []string
}

func (e *PolicyError) Error() string {
	if len(e.Errors) == 0 {
		return "password validation failed"
	}
	// Generic message to users; specific requirements stay server-side
	return "invalid password"
}

// Common weak passwords to reject
var commonPasswords = map[string]bool{
	"password":    true,
	"12345678":    true,
	"qwerty":      true,
	"abc123":      true,
	"password123": true,
	"123456":      true,
	"admin":       true,
	"letmein":     true,
	"welcome":     true,
	"monkey":      true,
	"dragon":      true,
	"master":      true,
	"123123":      true,
	"passw0rd":    true,
	"shadow":      true,
	"sunshine":    true,
	"princess":    true,
	"starwars":    true,
	"football":    true,
	"trustno1":    true,
}

// Validate enforces the password policy for registration and password
// changes
func Validate(password string) error {
	errors := make([]string, 0)

	if len(password) < MinLength {
		errors = append(errors, fmt.Sprintf("must be at least %d characters", MinLength))
	}
	if len(password) > MaxLength {
		errors = append(errors, fmt.Sprintf("must be at most %d characters", MaxLength))
	}

	hasUpper := false
	hasLower := false
	hasDigit := false
	hasSpecial := false

	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}

	if !hasUpper {
		errors = append(errors, "must contain at least one uppercase letter")
	}
	if !hasLower {
		errors = append(errors, "must contain at least one lowercase letter")
	}
	if !hasDigit {
		errors = append(errors, "must contain at least one digit")
	}
	if !hasSpecial {
		errors = append(errors, "must contain at least one special character")
	}

	if commonPasswords[strings.ToLower(password)] {
		errors = append(errors, "is too common, please choose a more unique password")
	}

	if len(errors) > 0 {
		return &PolicyError{Errors: errors}
	}

	return nil
}
