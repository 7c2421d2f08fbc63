package password

import (
	"errors"
	"fmt"
	"unicode"
)

// ErrPolicy tags all policy violations so callers can branch on the
// class without matching message text.
var ErrPolicy = errors.New("password policy violation")

// Policy describes the requirements a plaintext password must satisfy
// before it is accepted for registration, reset, or change.
type Policy struct {
	MinLength      int
	MaxLength      int
	RequireUpper   bool
	RequireLower   bool
	RequireDigit   bool
	RequireSpecial bool
}

// DefaultPolicy requires 8-128 characters with at least one upper-case
// letter, one lower-case letter, one digit, and one special character.
var DefaultPolicy = Policy{
	MinLength:      8,
	MaxLength:      128,
	RequireUpper:   true,
	RequireLower:   true,
	RequireDigit:   true,
	RequireSpecial: true,
}

// Validate checks plaintext against the policy and returns an error
// wrapping ErrPolicy describing the first unmet requirement.
func (p Policy) Validate(plaintext string) error {
	runes := []rune(plaintext)

	if p.MinLength > 0 && len(runes) < p.MinLength {
		return fmt.Errorf("%w: must be at least %d characters", ErrPolicy, p.MinLength)
	}
	if p.MaxLength > 0 && len(runes) > p.MaxLength {
		return fmt.Errorf("%w: must be at most %d characters", ErrPolicy, p.MaxLength)
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range runes {
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

	if p.RequireUpper && !hasUpper {
		return fmt.Errorf("%w: must contain an upper-case letter", ErrPolicy)
	}
	if p.RequireLower && !hasLower {
		return fmt.Errorf("%w: must contain a lower-case letter", ErrPolicy)
	}
	if p.RequireDigit && !hasDigit {
		return fmt.Errorf("%w: must contain a digit", ErrPolicy)
	}
	if p.RequireSpecial && !hasSpecial {
		return fmt.Errorf("%w: must contain a special character", ErrPolicy)
	}

	return nil
}
