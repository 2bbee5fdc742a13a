package payments

import (
	"encoding/json"
	"fmt"
	"sort"
)

// RefundTier maps a minimum lead time to an eligible refund percentage.
type RefundTier struct {
	MinHoursBefore int `json:"min_hours_before"`
	Percent        int `json:"percent"`
}

// RefundPolicy is the tiered eligibility schedule, ordered by descending lead
// time. It is configuration, not code: operators adjust tiers via
// REFUND_POLICY_JSON without a deploy.
type RefundPolicy []RefundTier

// DefaultRefundPolicy keeps the standing business terms: full refund three
// days out, half refund a day out, nothing inside that.
func DefaultRefundPolicy() RefundPolicy {
	return RefundPolicy{
		{MinHoursBefore: 72, Percent: 100},
		{MinHoursBefore: 24, Percent: 50},
	}
}

// ParseRefundPolicy decodes a policy from JSON; empty input yields the
// default.
func ParseRefundPolicy(raw string) (RefundPolicy, error) {
	if raw == "" {
		return DefaultRefundPolicy(), nil
	}
	var policy RefundPolicy
	if err := json.Unmarshal([]byte(raw), &policy); err != nil {
		return nil, fmt.Errorf("payments: parse refund policy: %w", err)
	}
	if len(policy) == 0 {
		return nil, fmt.Errorf("payments: refund policy must have at least one tier")
	}
	for _, t := range policy {
		if t.Percent < 0 || t.Percent > 100 {
			return nil, fmt.Errorf("payments: refund tier percent %d out of range", t.Percent)
		}
		if t.MinHoursBefore < 0 {
			return nil, fmt.Errorf("payments: refund tier lead time %d negative", t.MinHoursBefore)
		}
	}
	sort.Slice(policy, func(i, j int) bool {
		return policy[i].MinHoursBefore > policy[j].MinHoursBefore
	})
	return policy, nil
}

// PercentFor returns the eligible refund percentage given the hours remaining
// until service. A past or imminent service date yields 0 regardless of
// tiers.
func (p RefundPolicy) PercentFor(hoursUntilService float64) int {
	if hoursUntilService <= 0 {
		return 0
	}
	for _, tier := range p {
		if hoursUntilService >= float64(tier.MinHoursBefore) {
			return tier.Percent
		}
	}
	return 0
}
