// AngelaMos | 2026
// entity.go

package user

import (
	"time"
)

type User struct {
	ID                   string    `db:"id"`
	Email                string    `db:"email"`
	Name                 string    `db:"name"`
	Role                 string    `db:"role"`
	StripeCustomerID     *string   `db:"stripe_customer_id"`
	ActiveOrganizationID *string   `db:"active_organization_id"`
	TokenVersion         int       `db:"token_version"`
	CreatedAt            time.Time `db:"created_at"`
	UpdatedAt            time.Time `db:"updated_at"`
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// PurgeResult counts what a purge removed. Memberships and invitations of
// deleted organizations go with them through foreign keys and are not
// counted.
type PurgeResult struct {
	UserID               string
	Email                string
	SubscriptionsDeleted int64
	OrganizationsDeleted int64
}

// DeletedCount is the figure reported by the cleanup endpoint.
func (r PurgeResult) DeletedCount() int64 {
	return r.OrganizationsDeleted
}
