// AngelaMos | 2026
// entity.go

package organization

import (
	"time"
)

const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
)

type Organization struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	Slug      string    `db:"slug"`
	CreatedAt time.Time `db:"created_at"`
}

type Member struct {
	ID             string    `db:"id"`
	OrganizationID string    `db:"organization_id"`
	UserID         string    `db:"user_id"`
	Role           string    `db:"role"`
	CreatedAt      time.Time `db:"created_at"`
}

// MemberDetail is a membership joined with the user it belongs to.
type MemberDetail struct {
	Member
	Email string `db:"email"`
	Name  string `db:"name"`
}

// Membership is an organization seen from one of its members.
type Membership struct {
	Organization
	Role string `db:"role"`
}

// CanInvite reports whether a member with role may send invitations.
func CanInvite(role string) bool {
	return role == RoleOwner || role == RoleAdmin
}

// CanManageMembers reports whether role may remove members.
func CanManageMembers(role string) bool {
	return CanInvite(role)
}

func ValidRole(role string) bool {
	switch role {
	case RoleOwner, RoleAdmin, RoleMember:
		return true
	}
	return false
}
