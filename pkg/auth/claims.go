package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleMember, RoleAdmin:
		return true
	}
	return false
}

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	MemberID string
	Role     Role
	JTI      string
}

// AccessTokenClaims represents the typed JWT issued to members and staff.
type AccessTokenClaims struct {
	MemberID string `json:"member_id"`
	Role     Role   `json:"role"`
	jwt.RegisteredClaims
}
