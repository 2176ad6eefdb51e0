package spof

import (
	"fmt"
	"sort"

	"github.com/DrSkyle/faultline/pkg/engine/impact"
	"github.com/DrSkyle/faultline/pkg/resource"
)

// Advisor contributes extra recommendations for an entry.
type Advisor interface {
	Recommend(e Entry) []string
}

var categoryAdvice = map[resource.Category]string{
	resource.CategoryEntryPoint:     "Run at least two instances behind a health-checked load balancer across zones",
	resource.CategorySecurity:       "Replicate the secret/identity store and cache credentials so consumers survive an outage",
	resource.CategoryDataStore:      "Add a replica or enable multi-AZ failover and rehearse restore from backup",
	resource.CategoryMessaging:      "Enable a redundant broker or queue replica and configure dead-letter handling",
	resource.CategoryInfrastructure: "Deploy a standby in a second zone and automate failover",
	resource.CategoryCompute:        "Scale out to multiple instances or enable autoscaling with a minimum of two",
	resource.CategoryStorage:        "Enable cross-region replication or versioned backups",
	resource.CategoryNetworking:     "Provision redundant paths (second gateway, peering or VPN tunnel)",
}

// builtinRecommendations always yields at least one recommendation.
func builtinRecommendations(model *resource.Model, e Entry) []string {
	cat := model.Category(resource.Type(e.ResourceType))
	out := []string{categoryAdvice[cat]}
	if out[0] == "" {
		out[0] = categoryAdvice[resource.CategoryCompute]
	}
	if e.DependentsCount >= 10 {
		out = append(out, fmt.Sprintf("%d resources depend on this directly; consider splitting its responsibilities", e.DependentsCount))
	}
	if e.UserImpact.Rank() >= impact.ImpactHigh.Rank() {
		out = append(out, "Failure is user-visible; add synthetic monitoring and a runbook for this resource")
	}
	if len(e.CriticalPath) > 3 {
		out = append(out, fmt.Sprintf("Failure cascades %d hops; add circuit breakers along the critical path", len(e.CriticalPath)-1))
	}
	return out
}

// mergeRecommendations appends extra advice, dropping duplicates and blanks.
func mergeRecommendations(base []string, extra []string) []string {
	seen := make(map[string]struct{}, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, r := range append(base, extra...) {
		if r == "" {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

func sortChanges(changes []Change) {
	sort.SliceStable(changes, func(i, j int) bool {
		if changes[i].ChangeType != changes[j].ChangeType {
			return changes[i].ChangeType == ChangeNew
		}
		return changes[i].ResourceID < changes[j].ResourceID
	})
}
