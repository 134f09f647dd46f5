package domain

import "strings"

// NormalizeEmail lowercases and trims an address for case-insensitive
// uniqueness checks.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidRole reports whether r is a known role.
func ValidRole(r Role) bool {
	switch r {
	case RoleAdmin, RoleAmbassador, RoleClientUser:
		return true
	}
	return false
}
