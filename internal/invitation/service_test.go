// AngelaMos | 2026
// service_test.go

package invitation_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/carterperez-dev/templates/saas-backend/internal/core"
	"github.com/carterperez-dev/templates/saas-backend/internal/invitation"
	"github.com/carterperez-dev/templates/saas-backend/internal/middleware"
	"github.com/carterperez-dev/templates/saas-backend/internal/organization"
)

var _ = Describe("ParseEmails", func() {
	v := validator.New()

	It("splits on commas, semicolons and whitespace", func() {
		got, err := invitation.ParseEmails(v, "b@e2e.com, c@e2e.com;d@e2e.com\n e@e2e.com")
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal([]string{"b@e2e.com", "c@e2e.com", "d@e2e.com", "e@e2e.com"}))
	})

	It("lower-cases and drops duplicates", func() {
		got, err := invitation.ParseEmails(v, "B@e2e.com b@E2E.com")
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal([]string{"b@e2e.com"}))
	})

	It("rejects empty input", func() {
		_, err := invitation.ParseEmails(v, " ,, ; ")
		Expect(err).To(MatchError(invitation.ErrNoRecipients))
	})

	It("names every invalid address", func() {
		_, err := invitation.ParseEmails(v, "ok@e2e.com nope also-bad@")
		Expect(err).To(MatchError(core.ErrInvalidInput))
		Expect(err.Error()).To(ContainSubstring("nope"))
		Expect(err.Error()).To(ContainSubstring("also-bad@"))
	})
})

var _ = Describe("Service", func() {
	var (
		ctx      context.Context
		w        *world
		tx       *worldTx
		orgs     *organization.Service
		svc      *invitation.Service
		mailer   *captureMailer
		recorder *countingRecorder
	)

	BeforeEach(func() {
		ctx = context.Background()
		w = newWorld()
		tx = &worldTx{w: w}
		mailer = &captureMailer{}
		recorder = &countingRecorder{}
		orgs = organization.NewService(orgStore{w: w}, orgTx{w: w})
		svc = invitation.NewService(invitation.Deps{
			Repo:    invitationStore{w: w},
			Tx:      tx,
			Users:   w,
			Orgs:    orgs,
			Mailer:  mailer,
			Metrics: recorder,
		})
	})

	signIn := func(id string) {
		if _, ok := w.users[id]; ok {
			return
		}
		w.addUser(id, id+"@e2e.com")
		Expect(orgs.EnsureDefault(ctx, id, id)).To(Succeed())
	}

	activeOrg := func(id string) string {
		a, err := orgs.Active(ctx, id)
		Expect(err).NotTo(HaveOccurred())
		return a.ID
	}

	memberCount := func(id string) int {
		n, err := orgs.MemberCount(ctx, activeOrg(id))
		Expect(err).NotTo(HaveOccurred())
		return n
	}

	invite := func(from, role string, to ...string) *invitation.SendResult {
		emails := make([]string, 0, len(to))
		for _, t := range to {
			emails = append(emails, t+"@e2e.com")
		}
		res, err := svc.Send(ctx, from, invitation.SendRequest{Emails: strings.Join(emails, ", "), Role: role})
		Expect(err).NotTo(HaveOccurred())
		return res
	}

	pendingFrom := func(userID, orgID string) string {
		received, err := svc.ListReceived(ctx, userID)
		Expect(err).NotTo(HaveOccurred())
		for _, d := range received {
			if d.OrganizationID == orgID {
				return d.ID
			}
		}
		Fail("no pending invitation for " + userID + " from " + orgID)
		return ""
	}

	Describe("Send", func() {
		BeforeEach(func() {
			signIn("a")
		})

		It("creates one pending member invitation per address and mails each", func() {
			res := invite("a", "", "b", "c", "d")

			Expect(res.OrganizationID).To(Equal(activeOrg("a")))
			Expect(res.Created).To(HaveLen(3))
			for _, c := range res.Created {
				Expect(c.Role).To(Equal(organization.RoleMember))
				Expect(c.Status).To(Equal(invitation.StatusPending))
			}
			Expect(mailer.recipients()).To(ConsistOf("b@e2e.com", "c@e2e.com", "d@e2e.com"))
			Expect(recorder.count("created")).To(Equal(3))
		})

		It("skips the inviter, existing members and pending invitees", func() {
			signIn("b")
			invite("a", "", "b")
			Expect(svc.Accept(ctx, "b", pendingFrom("b", activeOrg("a")))).Error().NotTo(HaveOccurred())
			invite("a", "", "c")

			res := invite("a", "", "a", "b", "c", "d")

			Expect(res.Created).To(HaveLen(1))
			Expect(res.Created[0].Email).To(Equal("d@e2e.com"))
			Expect(res.Skipped).To(ConsistOf(
				invitation.Skipped{Email: "a@e2e.com", Reason: invitation.SkipSelf},
				invitation.Skipped{Email: "b@e2e.com", Reason: invitation.SkipAlreadyMember},
				invitation.Skipped{Email: "c@e2e.com", Reason: invitation.SkipAlreadyInvited},
			))
		})

		It("refuses the owner role", func() {
			_, err := svc.Send(ctx, "a", invitation.SendRequest{Emails: "b@e2e.com", Role: organization.RoleOwner})
			Expect(err).To(MatchError(invitation.ErrCannotInviteOwner))
		})

		It("refuses plain members", func() {
			signIn("b")
			invite("a", "", "b")
			_, err := svc.Accept(ctx, "b", pendingFrom("b", activeOrg("a")))
			Expect(err).NotTo(HaveOccurred())
			_, err = orgs.Switch(ctx, "b", activeOrg("a"))
			Expect(err).NotTo(HaveOccurred())

			_, err = svc.Send(ctx, "b", invitation.SendRequest{Emails: "c@e2e.com"})

			Expect(err).To(MatchError(core.ErrForbidden))
			Expect(w.invitations).To(HaveLen(1))
		})
	})

	Describe("responding", func() {
		var orgA, invID string

		BeforeEach(func() {
			signIn("a")
			signIn("b")
			orgA = activeOrg("a")
			invite("a", organization.RoleAdmin, "b")
			invID = pendingFrom("b", orgA)
		})

		It("accepts into the inviting organization at the invited role", func() {
			inv, err := svc.Accept(ctx, "b", invID)

			Expect(err).NotTo(HaveOccurred())
			Expect(inv.Status).To(Equal(invitation.StatusAccepted))
			role, err := orgs.Role(ctx, orgA, "b")
			Expect(err).NotTo(HaveOccurred())
			Expect(role).To(Equal(organization.RoleAdmin))
		})

		It("leaves the accepting user's active organization alone", func() {
			before := activeOrg("b")
			_, err := svc.Accept(ctx, "b", invID)
			Expect(err).NotTo(HaveOccurred())
			Expect(activeOrg("b")).To(Equal(before))
		})

		It("refuses a second response to a resolved invitation", func() {
			_, err := svc.Accept(ctx, "b", invID)
			Expect(err).NotTo(HaveOccurred())

			_, err = svc.Accept(ctx, "b", invID)
			Expect(err).To(MatchError(invitation.ErrNotPending))
			_, err = svc.Reject(ctx, "b", invID)
			Expect(err).To(MatchError(invitation.ErrNotPending))
			Expect(memberCount("a")).To(Equal(2))
		})

		It("creates one membership under concurrent accepts", func() {
			var wg sync.WaitGroup
			errs := make([]error, 8)
			for i := range errs {
				wg.Add(1)
				go func(i int) {
					defer GinkgoRecover()
					defer wg.Done()
					_, errs[i] = svc.Accept(ctx, "b", invID)
				}(i)
			}
			wg.Wait()

			succeeded := 0
			for _, err := range errs {
				if err == nil {
					succeeded++
				} else {
					Expect(err).To(MatchError(invitation.ErrNotPending))
				}
			}
			Expect(succeeded).To(Equal(1))
			Expect(memberCount("a")).To(Equal(2))
		})

		It("only lets the addressee respond", func() {
			signIn("c")
			_, err := svc.Accept(ctx, "c", invID)

			Expect(err).To(MatchError(invitation.ErrEmailMismatch))
			Expect(tx.rolledBack).To(Equal(1))
		})

		It("rejects without creating a membership", func() {
			inv, err := svc.Reject(ctx, "b", invID)

			Expect(err).NotTo(HaveOccurred())
			Expect(inv.Status).To(Equal(invitation.StatusRejected))
			Expect(memberCount("a")).To(Equal(1))
			Expect(svc.ListReceived(ctx, "b")).To(BeEmpty())
		})

		It("lets the organization cancel a pending invitation", func() {
			Expect(svc.Cancel(ctx, "a", invID)).To(Succeed())

			_, err := svc.Accept(ctx, "b", invID)
			Expect(err).To(MatchError(invitation.ErrNotPending))
		})

		It("does not cancel another organization's invitation", func() {
			err := svc.Cancel(ctx, "b", invID)
			Expect(err).To(MatchError(core.ErrNotFound))
		})

		It("lists sent invitations with the inviter's address", func() {
			sent, err := svc.ListSent(ctx, "a")

			Expect(err).NotTo(HaveOccurred())
			Expect(sent).To(HaveLen(1))
			Expect(sent[0].InviterEmail).To(HaveValue(Equal("a@e2e.com")))
		})
	})

	Describe("scenarios", func() {
		It("counts three members after two accepts and a reject", func() {
			for _, id := range []string{"a", "b", "c", "d"} {
				signIn(id)
			}
			orgA := activeOrg("a")
			invite("a", "", "b", "c", "d")

			Expect(svc.Accept(ctx, "b", pendingFrom("b", orgA))).Error().NotTo(HaveOccurred())
			Expect(svc.Accept(ctx, "c", pendingFrom("c", orgA))).Error().NotTo(HaveOccurred())
			Expect(svc.Reject(ctx, "d", pendingFrom("d", orgA))).Error().NotTo(HaveOccurred())

			Expect(memberCount("a")).To(Equal(3))
		})

		It("lets an invited admin invite from the owner's organization", func() {
			signIn("owner")
			signIn("admin")
			ownerOrg := activeOrg("owner")

			invite("owner", organization.RoleAdmin, "admin")
			Expect(svc.Accept(ctx, "admin", pendingFrom("admin", ownerOrg))).Error().NotTo(HaveOccurred())

			active, err := orgs.Switch(ctx, "admin", ownerOrg)
			Expect(err).NotTo(HaveOccurred())
			Expect(organization.CanInvite(active.Role)).To(BeTrue())

			res := invite("admin", "", "member")
			Expect(res.OrganizationID).To(Equal(ownerOrg))

			signIn("member")
			Expect(svc.Accept(ctx, "member", pendingFrom("member", ownerOrg))).Error().NotTo(HaveOccurred())

			Expect(memberCount("owner")).To(Equal(3))
		})

		It("resolves the cross-invite matrix independently per organization", func() {
			type invitee struct{ id, action string }
			matrix := []struct {
				id       string
				invitees []invitee
			}{
				{"invite", []invitee{{"invite1", "accept"}, {"invite2", "accept"}, {"invite3", "accept"}}},
				{"invite1", []invitee{{"invite", ""}, {"invite2", ""}, {"invite3", ""}}},
				{"invite2", []invitee{{"invite", "reject"}, {"invite1", "reject"}, {"invite3", "reject"}}},
				{"invite3", []invitee{{"invite", "accept"}, {"invite1", "reject"}, {"invite2", ""}}},
			}

			for _, u := range matrix {
				signIn(u.id)
				ids := make([]string, 0, len(u.invitees))
				for _, i := range u.invitees {
					ids = append(ids, i.id)
				}
				Expect(invite(u.id, "", ids...).Created).To(HaveLen(3))
			}

			for _, u := range matrix {
				orgID := activeOrg(u.id)
				for _, i := range u.invitees {
					switch i.action {
					case "accept":
						Expect(svc.Accept(ctx, i.id, pendingFrom(i.id, orgID))).Error().NotTo(HaveOccurred())
					case "reject":
						Expect(svc.Reject(ctx, i.id, pendingFrom(i.id, orgID))).Error().NotTo(HaveOccurred())
					}
				}
			}

			Expect(memberCount("invite")).To(Equal(4))
			Expect(memberCount("invite1")).To(Equal(1))
			Expect(memberCount("invite2")).To(Equal(1))
			Expect(memberCount("invite3")).To(Equal(2))

			received, err := svc.ListReceived(ctx, "invite2")
			Expect(err).NotTo(HaveOccurred())
			Expect(received).To(HaveLen(2))
		})
	})

	Describe("Handler", func() {
		var router chi.Router

		asHeader := func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
				claims := &middleware.AccessTokenClaims{UserID: r.Header.Get("X-User"), Role: "user"}
				next.ServeHTTP(rw, r.WithContext(middleware.WithClaims(r.Context(), claims)))
			})
		}

		do := func(user, method, path, body string) *httptest.ResponseRecorder {
			req := httptest.NewRequest(method, path, strings.NewReader(body))
			req.Header.Set("X-User", user)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			return rec
		}

		BeforeEach(func() {
			signIn("a")
			signIn("b")
			router = chi.NewRouter()
			invitation.NewHandler(svc, nil).RegisterRoutes(router, asHeader)
		})

		It("sends invitations and reports skips", func() {
			rec := do("a", http.MethodPost, "/organization/invitations",
				`{"emails":"a@e2e.com, b@e2e.com","role":"admin"}`)

			Expect(rec.Code).To(Equal(http.StatusCreated))
			var body struct {
				Data invitation.SendResult `json:"data"`
			}
			Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
			Expect(body.Data.Created).To(HaveLen(1))
			Expect(body.Data.Skipped).To(HaveLen(1))
		})

		It("answers 400 for empty or malformed recipients", func() {
			Expect(do("a", http.MethodPost, "/organization/invitations", `{"emails":""}`).Code).
				To(Equal(http.StatusBadRequest))
			rec := do("a", http.MethodPost, "/organization/invitations", `{"emails":"not-an-email"}`)
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(rec.Body.String()).To(ContainSubstring("not-an-email"))
		})

		It("answers 400 for the owner role", func() {
			rec := do("a", http.MethodPost, "/organization/invitations", `{"emails":"b@e2e.com","role":"owner"}`)
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("accepts through the recipient's inbox", func() {
			do("a", http.MethodPost, "/organization/invitations", `{"emails":"b@e2e.com"}`)

			rec := do("b", http.MethodGet, "/invitations", "")
			Expect(rec.Code).To(Equal(http.StatusOK))
			var inbox struct {
				Data invitation.InvitationsResponse `json:"data"`
			}
			Expect(json.Unmarshal(rec.Body.Bytes(), &inbox)).To(Succeed())
			Expect(inbox.Data.Invitations).To(HaveLen(1))
			Expect(inbox.Data.Invitations[0].InviterEmail).To(Equal("a@e2e.com"))

			id := inbox.Data.Invitations[0].ID
			Expect(do("b", http.MethodPost, "/invitations/"+id+"/accept", "").Code).To(Equal(http.StatusOK))
			Expect(do("b", http.MethodPost, "/invitations/"+id+"/accept", "").Code).To(Equal(http.StatusConflict))
		})

		It("answers 403 when someone else responds", func() {
			do("a", http.MethodPost, "/organization/invitations", `{"emails":"b@e2e.com"}`)
			id := pendingFrom("b", activeOrg("a"))

			Expect(do("a", http.MethodPost, "/invitations/"+id+"/reject", "").Code).To(Equal(http.StatusForbidden))
		})

		It("answers 400 for a malformed invitation id and 404 for an unknown one", func() {
			Expect(do("b", http.MethodPost, "/invitations/nope/accept", "").Code).To(Equal(http.StatusBadRequest))
			Expect(do("b", http.MethodPost, "/invitations/9b2f3c4e-1111-4a2b-8c3d-000000000000/accept", "").Code).
				To(Equal(http.StatusNotFound))
		})

		It("hides sent invitations from plain members", func() {
			do("a", http.MethodPost, "/organization/invitations", `{"emails":"b@e2e.com"}`)
			id := pendingFrom("b", activeOrg("a"))
			do("b", http.MethodPost, "/invitations/"+id+"/accept", "")
			_, err := orgs.Switch(ctx, "b", activeOrg("a"))
			Expect(err).NotTo(HaveOccurred())

			Expect(do("b", http.MethodGet, "/organization/invitations", "").Code).To(Equal(http.StatusForbidden))
			Expect(do("a", http.MethodGet, "/organization/invitations", "").Code).To(Equal(http.StatusOK))
		})

		It("cancels with 204", func() {
			do("a", http.MethodPost, "/organization/invitations", `{"emails":"b@e2e.com"}`)
			id := pendingFrom("b", activeOrg("a"))

			Expect(do("a", http.MethodDelete, "/organization/invitations/"+id, "").Code).To(Equal(http.StatusNoContent))
			Expect(recorder.count(invitation.StatusCanceled)).To(Equal(1))
		})
	})
})
