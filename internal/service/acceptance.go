package service

import (
	"fmt"

	"github.com/noah-isme/uat-crowdtest-api/internal/models"
)

// DefaultAcceptancePolicy returns the stock completion thresholds.
func DefaultAcceptancePolicy() models.AcceptancePolicy {
	return models.AcceptancePolicy{
		AcceptThreshold:      100,
		ProvisionalThreshold: 90,
		ConditionalThreshold: 70,
	}
}

// normalizePolicy fills unset thresholds from the defaults.
func normalizePolicy(p models.AcceptancePolicy) models.AcceptancePolicy {
	def := DefaultAcceptancePolicy()
	if p.AcceptThreshold <= 0 {
		p.AcceptThreshold = def.AcceptThreshold
	}
	if p.ProvisionalThreshold <= 0 {
		p.ProvisionalThreshold = def.ProvisionalThreshold
	}
	if p.ConditionalThreshold <= 0 {
		p.ConditionalThreshold = def.ConditionalThreshold
	}
	return p
}

// DecideAcceptance applies the policy to the report inputs. Rules are
// evaluated in order and the first match wins.
func DecideAcceptance(policy models.AcceptancePolicy, completion float64, bugs models.BugSummary) (models.AcceptanceStatus, string) {
	switch {
	case bugs.UnresolvedCritical > 0:
		return models.AcceptanceRejected, fmt.Sprintf("%d unresolved critical bug(s)", bugs.UnresolvedCritical)
	case bugs.UnresolvedHigh > 0:
		return models.AcceptanceRework, fmt.Sprintf("%d unresolved high severity bug(s)", bugs.UnresolvedHigh)
	case completion < policy.ConditionalThreshold:
		return models.AcceptanceRework, fmt.Sprintf("completion %.1f%% below %.0f%%", completion, policy.ConditionalThreshold)
	case completion >= policy.AcceptThreshold:
		return models.AcceptanceAccept, fmt.Sprintf("completion %.1f%% with no unresolved blocking bugs", completion)
	case completion >= policy.ProvisionalThreshold:
		return models.AcceptanceProvisional, fmt.Sprintf("completion %.1f%% reaches %.0f%%", completion, policy.ProvisionalThreshold)
	default:
		return models.AcceptanceConditional, fmt.Sprintf("completion %.1f%% reaches %.0f%%", completion, policy.ConditionalThreshold)
	}
}
