//go:build e2e

// AngelaMos | 2026
// stripe_test.go

package e2e_test

import (
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/carterperez-dev/templates/saas-backend/internal/billing"
	"github.com/carterperez-dev/templates/saas-backend/internal/e2e"
)

var _ = Describe("stripe1", Ordered, func() {
	plan := billing.Plans()[0]
	email := e2e.UniquifyEmail("stripe1-" + strings.ToLower(plan.MonthlyPriceLookupKey) + "@e2e.com")

	var c *e2e.Client

	BeforeAll(func() {
		cleanUp(email)
		c = signIn(email)
	})

	It("opens a hosted checkout for the monthly price", func() {
		checkout, err := c.Subscribe(ctxFor(), plan.MonthlyPriceLookupKey)
		Expect(err).NotTo(HaveOccurred())
		Expect(checkout.URL).To(HavePrefix("https://"))
		Expect(checkout.SessionID).NotTo(BeEmpty())
	})

	It("shows the plan as trialing once Stripe reports it", func() {
		if webhookSecret == "" {
			Skip("E2E_STRIPE_WEBHOOK_SECRET not set; cannot stand in for Stripe")
		}

		org, err := c.ActiveOrganization(ctxFor())
		Expect(err).NotTo(HaveOccurred())

		Expect(c.DeliverSubscriptionEvent(ctxFor(), webhookSecret, e2e.SubscriptionEvent{
			ReferenceID: org.ID,
			PlanKey:     plan.Key,
			LookupKey:   plan.MonthlyPriceLookupKey,
			Status:      "trialing",
			TrialDays:   int(plan.FreeTrialDays),
		})).To(Succeed())

		Expect(c.VerifySubscription(ctxFor(), plan.Name, "trialing")).To(Succeed())
	})

	AfterAll(func() {
		res, err := newClient().DeleteUser(ctxFor(), email)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Success).To(BeTrue())
	})
})
