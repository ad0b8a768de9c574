// AngelaMos | 2026
// dto.go

package invitation

import (
	"time"
)

// SendRequest carries one or more addresses separated by commas,
// semicolons or whitespace.
type SendRequest struct {
	Emails string `json:"emails" validate:"required,max=5000"`
	Role   string `json:"role"   validate:"omitempty,oneof=owner admin member"`
}

// Skip reasons reported by Send.
const (
	SkipSelf           = "self"
	SkipAlreadyMember  = "already_member"
	SkipAlreadyInvited = "already_invited"
)

type Skipped struct {
	Email  string `json:"email"`
	Reason string `json:"reason"`
}

type SendResult struct {
	OrganizationID string               `json:"organization_id"`
	Created        []InvitationResponse `json:"created"`
	Skipped        []Skipped            `json:"skipped"`
}

type InvitationResponse struct {
	ID               string    `json:"id"`
	OrganizationID   string    `json:"organization_id"`
	OrganizationName string    `json:"organization_name,omitempty"`
	Email            string    `json:"email"`
	Role             string    `json:"role"`
	Status           string    `json:"status"`
	InviterEmail     string    `json:"inviter_email,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

type InvitationsResponse struct {
	Invitations []InvitationResponse `json:"invitations"`
}

func toResponse(i Invitation) InvitationResponse {
	return InvitationResponse{
		ID:             i.ID,
		OrganizationID: i.OrganizationID,
		Email:          i.Email,
		Role:           i.Role,
		Status:         i.Status,
		CreatedAt:      i.CreatedAt,
	}
}

func toDetailResponse(d Detail) InvitationResponse {
	resp := toResponse(d.Invitation)
	resp.OrganizationName = d.OrganizationName
	if d.InviterEmail != nil {
		resp.InviterEmail = *d.InviterEmail
	}
	return resp
}

func toDetailResponses(ds []Detail) []InvitationResponse {
	out := make([]InvitationResponse, 0, len(ds))
	for _, d := range ds {
		out = append(out, toDetailResponse(d))
	}
	return out
}
