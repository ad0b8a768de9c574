// AngelaMos | 2026
// plan.go

package billing

import (
	"errors"
	"fmt"
	"strings"
)

var ErrPlanNotFound = errors.New("plan not found")

type Plan struct {
	Key                   string `json:"key"`
	Name                  string `json:"name"`
	Description           string `json:"description"`
	MonthlyPriceLookupKey string `json:"monthly_price_lookup_key"`
	MonthlyPriceCents     int64  `json:"monthly_price_cents"`
	AnnualPriceLookupKey  string `json:"annual_price_lookup_key"`
	AnnualPriceCents      int64  `json:"annual_price_cents"`
	FreeTrialDays         int64  `json:"free_trial_days"`
}

var plans = []Plan{
	{
		Key:                   "basic",
		Name:                  "Basic",
		Description:           "For small teams getting started",
		MonthlyPriceLookupKey: "basicMonthly",
		MonthlyPriceCents:     500,
		AnnualPriceLookupKey:  "basicAnnual",
		AnnualPriceCents:      5000,
		FreeTrialDays:         2,
	},
	{
		Key:                   "pro",
		Name:                  "Pro",
		Description:           "For growing teams",
		MonthlyPriceLookupKey: "proMonthly",
		MonthlyPriceCents:     1000,
		AnnualPriceLookupKey:  "proAnnual",
		AnnualPriceCents:      10000,
		FreeTrialDays:         7,
	},
}

// Plans returns a copy of the catalogue in display order.
func Plans() []Plan {
	out := make([]Plan, len(plans))
	copy(out, plans)
	return out
}

// FindByLookupKey resolves a monthly or annual price lookup key to its plan.
func FindByLookupKey(key string) (Plan, error) {
	for _, p := range plans {
		if p.MonthlyPriceLookupKey == key || p.AnnualPriceLookupKey == key {
			return p, nil
		}
	}
	return Plan{}, fmt.Errorf("lookup key %q: %w", key, ErrPlanNotFound)
}

// FindByKey resolves a plan key case-insensitively.
func FindByKey(key string) (Plan, error) {
	for _, p := range plans {
		if strings.EqualFold(p.Key, key) {
			return p, nil
		}
	}
	return Plan{}, fmt.Errorf("plan %q: %w", key, ErrPlanNotFound)
}
