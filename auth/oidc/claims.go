package oidc

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Known application roles, in the order Gustav documents them.
const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"
)

var knownRoles = map[string]struct{}{
	RoleStudent: {},
	RoleTeacher: {},
	RoleAdmin:   {},
}

// RealmAccess is Keycloak's realm role claim.
type RealmAccess struct {
	Roles []string `json:"roles"`
}

// Claims are the verified ID token claims Gustav reads.
type Claims struct {
	jwt.RegisteredClaims

	Nonce             string      `json:"nonce,omitempty"`
	Email             string      `json:"email,omitempty"`
	EmailVerified     *bool       `json:"email_verified,omitempty"`
	Name              string      `json:"name,omitempty"`
	PreferredUsername string      `json:"preferred_username,omitempty"`
	GustavDisplayName string      `json:"gustav_display_name,omitempty"`
	RealmAccess       RealmAccess `json:"realm_access"`
}

// IsEmailVerified treats a missing claim as verified.
func (c *Claims) IsEmailVerified() bool {
	return c.EmailVerified == nil || *c.EmailVerified
}

// Roles returns the known realm roles in first-seen order without
// duplicates. A user without any known role is a student.
func (c *Claims) Roles() []string {
	seen := make(map[string]struct{}, len(c.RealmAccess.Roles))
	roles := make([]string, 0, len(c.RealmAccess.Roles))
	for _, r := range c.RealmAccess.Roles {
		if _, ok := knownRoles[r]; !ok {
			continue
		}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		roles = append(roles, r)
	}
	if len(roles) == 0 {
		return []string{RoleStudent}
	}
	return roles
}

// DisplayName picks the friendliest non-empty name the token offers.
func (c *Claims) DisplayName() string {
	if v := strings.TrimSpace(c.GustavDisplayName); v != "" {
		return v
	}
	if v := strings.TrimSpace(c.Name); v != "" {
		return v
	}
	if local, _, ok := strings.Cut(c.Email, "@"); ok && local != "" {
		return local
	}
	if v := strings.TrimSpace(c.PreferredUsername); v != "" {
		return v
	}
	return c.Subject
}
