// AngelaMos | 2026
// dto.go

package organization

import (
	"time"
)

type SwitchRequest struct {
	OrganizationID string `json:"organization_id" validate:"required,uuid"`
}

type OrganizationResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Role        string    `json:"role"`
	Active      bool      `json:"active"`
	MemberCount *int      `json:"member_count,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type MemberResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

type MembersResponse struct {
	Members []MemberResponse `json:"members"`
	Count   int              `json:"count"`
}

// ActiveOrganization is the caller's current organization context.
type ActiveOrganization struct {
	Organization
	Role        string
	MemberCount int
}

func toOrganizationResponse(m Membership, activeID string) OrganizationResponse {
	return OrganizationResponse{
		ID:        m.ID,
		Name:      m.Name,
		Slug:      m.Slug,
		Role:      m.Role,
		Active:    m.ID == activeID,
		CreatedAt: m.CreatedAt,
	}
}

func toMemberResponse(m MemberDetail) MemberResponse {
	return MemberResponse{
		ID:        m.ID,
		UserID:    m.UserID,
		Email:     m.Email,
		Name:      m.Name,
		Role:      m.Role,
		CreatedAt: m.CreatedAt,
	}
}
