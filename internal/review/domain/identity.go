package domain

import "strings"

// Role describes the caller's account role.
type Role int

const (
	// RoleNormal is a regular community member.
	RoleNormal Role = iota
	// RoleCertified is a trusted reviewer granted by an admin.
	RoleCertified
	// RoleAdmin is a site administrator.
	RoleAdmin
)

// CertifiedTrustThreshold is the minimum trust level that makes a
// non-certified, non-admin user review-eligible.
const CertifiedTrustThreshold = 3

// ParseRole maps the role string supplied by the auth collaborator.
// Unknown values degrade to RoleNormal.
func ParseRole(value string) Role {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "admin":
		return RoleAdmin
	case "certified":
		return RoleCertified
	default:
		return RoleNormal
	}
}

// String returns the wire form of the role.
func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "admin"
	case RoleCertified:
		return "certified"
	default:
		return "normal"
	}
}

// Identity carries the caller facts attached to every engine call. The
// engine trusts these as given and performs only its own authorization
// checks on top.
type Identity struct {
	UserID     string
	Role       Role
	TrustLevel int
}

// ReviewEligible reports whether the caller may perform stage-2 review
// actions: admins always, everyone else by trust level. The certified role
// is a label admins grant at the same threshold; the trust level is what
// the predicate checks.
func (i Identity) ReviewEligible() bool {
	if i.Role == RoleAdmin {
		return true
	}
	return i.TrustLevel >= CertifiedTrustThreshold
}

// CanManage reports whether the caller may change runtime settings.
func (i Identity) CanManage() bool {
	return i.Role == RoleAdmin
}
