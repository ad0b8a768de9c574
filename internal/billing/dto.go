// AngelaMos | 2026
// dto.go

package billing

import (
	"time"
)

type CheckoutRequest struct {
	LookupKey string `json:"lookup_key" validate:"required,max=64"`
}

type CheckoutResponse struct {
	URL       string `json:"url"`
	SessionID string `json:"session_id"`
}

type PortalResponse struct {
	URL string `json:"url"`
}

type PlansResponse struct {
	Plans []Plan `json:"plans"`
}

type SubscriptionResponse struct {
	ReferenceID       string     `json:"reference_id"`
	Plan              string     `json:"plan"`
	PlanName          string     `json:"plan_name"`
	Status            string     `json:"status"`
	CancelAtPeriodEnd bool       `json:"cancel_at_period_end"`
	TrialEnd          *time.Time `json:"trial_end,omitempty"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func toSubscriptionResponse(s Subscription) SubscriptionResponse {
	name := s.Plan
	if p, err := FindByKey(s.Plan); err == nil {
		name = p.Name
	}
	return SubscriptionResponse{
		ReferenceID:       s.ReferenceID,
		Plan:              s.Plan,
		PlanName:          name,
		Status:            s.Status,
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
		TrialEnd:          s.TrialEnd,
		UpdatedAt:         s.UpdatedAt,
	}
}
