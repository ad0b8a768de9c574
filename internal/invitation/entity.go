// AngelaMos | 2026
// entity.go

package invitation

import (
	"time"
)

// Invitation states. Only pending invitations can change state; the other
// three are terminal.
const (
	StatusPending  = "pending"
	StatusAccepted = "accepted"
	StatusRejected = "rejected"
	StatusCanceled = "canceled"
)

type Invitation struct {
	ID             string    `db:"id"`
	OrganizationID string    `db:"organization_id"`
	Email          string    `db:"email"`
	Role           string    `db:"role"`
	Status         string    `db:"status"`
	InviterID      *string   `db:"inviter_id"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

func (i *Invitation) IsPending() bool {
	return i.Status == StatusPending
}

// Detail is an invitation with the names a recipient needs to decide.
type Detail struct {
	Invitation
	OrganizationName string  `db:"organization_name"`
	InviterEmail     *string `db:"inviter_email"`
}
