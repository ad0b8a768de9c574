//go:build e2e

// AngelaMos | 2026
// invite_test.go

package e2e_test

import (
	"errors"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/carterperez-dev/templates/saas-backend/internal/e2e"
)

type invitee struct {
	email  string
	action string
}

type inviter struct {
	email    string
	invitees []invitee
}

func u(local string) string {
	return e2e.UniquifyEmail(local + "@e2e.com")
}

var matrix = []inviter{
	{email: u("invite"), invitees: []invitee{
		{u("invite1"), "accept"},
		{u("invite2"), "accept"},
		{u("invite3"), "accept"},
	}},
	{email: u("invite1"), invitees: []invitee{
		{u("invite"), ""},
		{u("invite2"), ""},
		{u("invite3"), ""},
	}},
	{email: u("invite2"), invitees: []invitee{
		{u("invite"), "reject"},
		{u("invite1"), "reject"},
		{u("invite3"), "reject"},
	}},
	{email: u("invite3"), invitees: []invitee{
		{u("invite"), "accept"},
		{u("invite1"), "reject"},
		{u("invite2"), ""},
	}},
}

// invitersOf returns who invited email with the given action.
func invitersOf(email, action string) []string {
	var out []string
	for _, from := range matrix {
		for _, to := range from.invitees {
			if to.email == email && to.action == action {
				out = append(out, from.email)
			}
		}
	}
	return out
}

func emailsOf(invitees []invitee) []string {
	out := make([]string, 0, len(invitees))
	for _, i := range invitees {
		out = append(out, i.email)
	}
	return out
}

var _ = Describe("invite matrix", Ordered, func() {
	BeforeAll(func() {
		for _, user := range matrix {
			cleanUp(user.email)
		}
	})

	for _, user := range matrix {
		It(fmt.Sprintf("invites from %s", user.email), func() {
			c := signIn(user.email)

			_, err := c.InviteUsers(ctxFor(), emailsOf(user.invitees), "")
			Expect(err).NotTo(HaveOccurred())
			Expect(c.VerifyInvitations(ctxFor(), emailsOf(user.invitees))).To(Succeed())
		})
	}

	for _, user := range matrix {
		It(fmt.Sprintf("handles invitations for %s", user.email), func() {
			c := signIn(user.email)

			if accept := invitersOf(user.email, "accept"); len(accept) > 0 {
				Expect(c.AcceptInvitations(ctxFor(), accept)).To(Succeed())
			}
			if reject := invitersOf(user.email, "reject"); len(reject) > 0 {
				Expect(c.RejectInvitations(ctxFor(), reject)).To(Succeed())
			}
		})
	}

	for _, user := range matrix {
		accepted := 0
		for _, i := range user.invitees {
			if i.action == "accept" {
				accepted++
			}
		}

		It(fmt.Sprintf("counts %d members for %s", 1+accepted, user.email), func() {
			c := signIn(user.email)

			Eventually(func() (int, error) {
				return c.MemberCount(ctxFor())
			}).Should(Equal(1 + accepted))
		})
	}
})

var _ = Describe("a invites b, c and d", Ordered, func() {
	var (
		a = u("scenario-a")
		b = u("scenario-b")
		c = u("scenario-c")
		d = u("scenario-d")
	)

	BeforeAll(func() {
		cleanUp(a, b, c, d)
	})

	It("counts the owner and the two who accepted", func() {
		owner := signIn(a)
		_, err := owner.InviteUsers(ctxFor(), []string{b, c, d}, "member")
		Expect(err).NotTo(HaveOccurred())
		Expect(owner.VerifyInvitations(ctxFor(), []string{b, c, d})).To(Succeed())

		Expect(signIn(b).AcceptInvitations(ctxFor(), []string{a})).To(Succeed())
		Expect(signIn(c).AcceptInvitations(ctxFor(), []string{a})).To(Succeed())
		Expect(signIn(d).RejectInvitations(ctxFor(), []string{a})).To(Succeed())

		Expect(owner.ExpectMemberCount(ctxFor(), 3)).To(Succeed())
	})
})

var _ = Describe("admin invites on behalf of the owner", Ordered, func() {
	var (
		owner  = u("role-owner")
		admin  = u("role-admin")
		member = u("role-member")
		orgID  string
	)

	BeforeAll(func() {
		cleanUp(owner, admin, member)
	})

	It("lets the owner invite an admin", func() {
		c := signIn(owner)
		res, err := c.InviteUsers(ctxFor(), []string{admin}, "admin")
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Created).To(HaveLen(1))
		orgID = res.OrganizationID
	})

	It("lets the admin switch and invite a member", func() {
		c := signIn(admin)
		Expect(c.AcceptInvitations(ctxFor(), []string{owner})).To(Succeed())
		Expect(c.SwitchOrganization(ctxFor(), orgID)).To(Succeed())

		active, err := c.ActiveOrganization(ctxFor())
		Expect(err).NotTo(HaveOccurred())
		Expect(active.ID).To(Equal(orgID))
		Expect(active.Role).To(Equal("admin"))

		_, err = c.InviteUsers(ctxFor(), []string{member}, "member")
		Expect(err).NotTo(HaveOccurred())
		Expect(c.VerifyInvitations(ctxFor(), []string{member})).To(Succeed())
	})

	It("refuses invitations from a plain member", func() {
		c := signIn(member)
		Expect(c.AcceptInvitations(ctxFor(), []string{admin})).To(Succeed())
		Expect(c.SwitchOrganization(ctxFor(), orgID)).To(Succeed())

		_, err := c.InviteUsers(ctxFor(), []string{u("role-outsider")}, "member")
		var apiErr *e2e.APIError
		Expect(errors.As(err, &apiErr)).To(BeTrue())
		Expect(apiErr.Status).To(Equal(403))
	})

	It("counts owner, admin and member", func() {
		Expect(signIn(owner).ExpectMemberCount(ctxFor(), 3)).To(Succeed())
	})
})
