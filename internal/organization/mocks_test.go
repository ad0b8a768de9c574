// AngelaMos | 2026
// mocks_test.go

package organization_test

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/carterperez-dev/templates/saas-backend/internal/core"
	"github.com/carterperez-dev/templates/saas-backend/internal/organization"
)

// memRepo is an in-memory organization store with the same uniqueness
// rules as the schema.
type memRepo struct {
	orgs    map[string]organization.Organization
	members map[string]organization.Member
	emails  map[string]string
	active  map[string]*string
	locked  []string
	seq     int
}

func newMemRepo() *memRepo {
	return &memRepo{
		orgs:    map[string]organization.Organization{},
		members: map[string]organization.Member{},
		emails:  map[string]string{},
		active:  map[string]*string{},
	}
}

func (r *memRepo) tick() time.Time {
	r.seq++
	return time.Date(2026, 1, 1, 0, 0, r.seq, 0, time.UTC)
}

func (r *memRepo) addUser(id, email string) {
	r.emails[id] = email
	r.active[id] = nil
}

func (r *memRepo) Create(_ context.Context, org *organization.Organization) error {
	for _, o := range r.orgs {
		if o.Slug == org.Slug {
			return core.ErrDuplicateKey
		}
	}
	org.CreatedAt = r.tick()
	r.orgs[org.ID] = *org
	return nil
}

func (r *memRepo) Get(_ context.Context, id string) (*organization.Organization, error) {
	o, ok := r.orgs[id]
	if !ok {
		return nil, fmt.Errorf("get organization: %w", core.ErrNotFound)
	}
	return &o, nil
}

func (r *memRepo) AddMember(_ context.Context, m *organization.Member) (bool, error) {
	for _, existing := range r.members {
		if existing.OrganizationID == m.OrganizationID && existing.UserID == m.UserID {
			return false, nil
		}
	}
	m.CreatedAt = r.tick()
	r.members[m.ID] = *m
	return true, nil
}

func (r *memRepo) GetMembership(_ context.Context, orgID, userID string) (*organization.Member, error) {
	for _, m := range r.members {
		if m.OrganizationID == orgID && m.UserID == userID {
			return &m, nil
		}
	}
	return nil, fmt.Errorf("get membership: %w", core.ErrNotFound)
}

func (r *memRepo) GetMember(_ context.Context, memberID string) (*organization.Member, error) {
	m, ok := r.members[memberID]
	if !ok {
		return nil, fmt.Errorf("get member: %w", core.ErrNotFound)
	}
	return &m, nil
}

func (r *memRepo) sortedMembers() []organization.Member {
	out := make([]organization.Member, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (r *memRepo) ListForUser(_ context.Context, userID string) ([]organization.Membership, error) {
	var out []organization.Membership
	for _, m := range r.sortedMembers() {
		if m.UserID == userID {
			out = append(out, organization.Membership{Organization: r.orgs[m.OrganizationID], Role: m.Role})
		}
	}
	return out, nil
}

func (r *memRepo) ListMembers(_ context.Context, orgID string) ([]organization.MemberDetail, error) {
	var out []organization.MemberDetail
	for _, m := range r.sortedMembers() {
		if m.OrganizationID == orgID {
			out = append(out, organization.MemberDetail{Member: m, Email: r.emails[m.UserID]})
		}
	}
	return out, nil
}

func (r *memRepo) CountMembers(_ context.Context, orgID string) (int, error) {
	n := 0
	for _, m := range r.members {
		if m.OrganizationID == orgID {
			n++
		}
	}
	return n, nil
}

func (r *memRepo) CountOwners(_ context.Context, orgID string) (int, error) {
	n := 0
	for _, m := range r.members {
		if m.OrganizationID == orgID && m.Role == organization.RoleOwner {
			n++
		}
	}
	return n, nil
}

func (r *memRepo) RemoveMember(_ context.Context, memberID string) error {
	if _, ok := r.members[memberID]; !ok {
		return fmt.Errorf("remove member: %w", core.ErrNotFound)
	}
	delete(r.members, memberID)
	return nil
}

func (r *memRepo) IsMemberByEmail(_ context.Context, orgID, email string) (bool, error) {
	for _, m := range r.members {
		if m.OrganizationID == orgID && r.emails[m.UserID] == email {
			return true, nil
		}
	}
	return false, nil
}

func (r *memRepo) GetActiveOrganizationID(_ context.Context, userID string) (*string, error) {
	a, ok := r.active[userID]
	if !ok {
		return nil, fmt.Errorf("get active organization: %w", core.ErrNotFound)
	}
	return a, nil
}

func (r *memRepo) SetActiveOrganizationID(_ context.Context, userID string, orgID *string) error {
	if _, ok := r.active[userID]; !ok {
		return fmt.Errorf("set active organization: %w", core.ErrNotFound)
	}
	r.active[userID] = orgID
	return nil
}

func (r *memRepo) LockUser(_ context.Context, userID string) error {
	if _, ok := r.emails[userID]; !ok {
		return fmt.Errorf("lock user: %w", core.ErrNotFound)
	}
	r.locked = append(r.locked, userID)
	return nil
}

type fakeTx struct {
	repo organization.Repository
}

func (f *fakeTx) WithTx(_ context.Context, fn func(repo organization.Repository) error) error {
	return fn(f.repo)
}
