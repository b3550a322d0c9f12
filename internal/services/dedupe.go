package services

import (
	"fmt"
	"sort"

	"github.com/forgeapps/licensing-backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DedupePlan partitions one customer's entitlements into three disjoint
// sets. Keep and FixDevices together are the survivors; Archive rows get
// is_archived=true and are never deleted.
type DedupePlan struct {
	Keep       []uuid.UUID `json:"keep"`
	Archive    []uuid.UUID `json:"archive"`
	FixDevices []uuid.UUID `json:"fix_devices"`
}

// scoreEntitlement ranks duplicates; higher wins. Lifetime dominates
// everything, then status, then attached license key and subscription.
// The recency term stays below one point so it can only break ties.
func scoreEntitlement(e models.Entitlement) float64 {
	score := 0.0
	if e.IsLifetime {
		score += 1000
	}
	switch e.Status {
	case models.EntitlementStatusActive:
		score += 100
	case models.EntitlementStatusInactive:
		score += 10
	case models.EntitlementStatusExpired:
		score += 5
	case models.EntitlementStatusCanceled:
		score += 1
	}
	if e.LicenseKeyID != nil {
		score += 50
	}
	if e.StripeSubscriptionID != "" {
		score += 30
	}
	// Strictly increasing in creation time, bounded well under 1 for any
	// realistic timestamp (2^63ns ≈ year 2262 maps to ~0.09).
	score += float64(e.CreatedAt.Unix()) / 1e11
	return score
}

// needsDeviceFix reports whether a kept entitlement's device allowance must
// be normalized to one.
func needsDeviceFix(e models.Entitlement) bool {
	return (e.Tier == models.TierMaker || e.Tier == models.TierPro) && e.MaxDevices != 1
}

// PlanDedupe computes the keep/archive/fix partition for one customer's
// entitlements. It is a pure function of its input: the same set, in any
// order, yields an identical plan, and it never touches the store.
func PlanDedupe(entitlements []models.Entitlement) DedupePlan {
	byTier := make(map[string][]models.Entitlement)
	for _, e := range entitlements {
		if e.IsArchived {
			continue
		}
		byTier[e.Tier] = append(byTier[e.Tier], e)
	}

	tiers := make([]string, 0, len(byTier))
	for tier := range byTier {
		tiers = append(tiers, tier)
	}
	sort.Strings(tiers)

	var plan DedupePlan
	for _, tier := range tiers {
		group := byTier[tier]
		sort.Slice(group, func(i, j int) bool {
			si, sj := scoreEntitlement(group[i]), scoreEntitlement(group[j])
			if si != sj {
				return si > sj
			}
			// Identical timestamps only; keep the order total.
			return group[i].ID.String() < group[j].ID.String()
		})

		winner := group[0]
		if needsDeviceFix(winner) {
			plan.FixDevices = append(plan.FixDevices, winner.ID)
		} else {
			plan.Keep = append(plan.Keep, winner.ID)
		}
		for _, loser := range group[1:] {
			plan.Archive = append(plan.Archive, loser.ID)
		}
	}

	sortIDs(plan.Keep)
	sortIDs(plan.Archive)
	sortIDs(plan.FixDevices)
	return plan
}

func sortIDs(ids []uuid.UUID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
}

// DedupeResult reports what an apply pass changed. Individual record
// failures are collected; the batch keeps going.
type DedupeResult struct {
	Archived int
	Fixed    int
	Errors   []error
}

// ApplyDedupePlan mutates the store according to a previously computed plan.
// Archival is a flag flip, never a delete.
func ApplyDedupePlan(db *gorm.DB, plan DedupePlan) *DedupeResult {
	result := &DedupeResult{}

	for _, id := range plan.Archive {
		err := db.Model(&models.Entitlement{}).
			Where("id = ?", id).
			Update("is_archived", true).Error
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("archive %s: %w", id, err))
			continue
		}
		result.Archived++
	}

	for _, id := range plan.FixDevices {
		err := db.Model(&models.Entitlement{}).
			Where("id = ?", id).
			Update("max_devices", 1).Error
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("fix devices %s: %w", id, err))
			continue
		}
		result.Fixed++
	}

	return result
}

// PlanDedupeAll loads every customer's non-archived entitlements and merges
// their per-customer plans. Used by the offline job runner.
func PlanDedupeAll(db *gorm.DB) (DedupePlan, error) {
	var ents []models.Entitlement
	if err := db.Where("is_archived = ?", false).Find(&ents).Error; err != nil {
		return DedupePlan{}, fmt.Errorf("failed to list entitlements: %w", err)
	}

	byCustomer := make(map[uuid.UUID][]models.Entitlement)
	for _, e := range ents {
		byCustomer[e.CustomerID] = append(byCustomer[e.CustomerID], e)
	}

	customers := make([]uuid.UUID, 0, len(byCustomer))
	for id := range byCustomer {
		customers = append(customers, id)
	}
	sortIDs(customers)

	var merged DedupePlan
	for _, id := range customers {
		p := PlanDedupe(byCustomer[id])
		merged.Keep = append(merged.Keep, p.Keep...)
		merged.Archive = append(merged.Archive, p.Archive...)
		merged.FixDevices = append(merged.FixDevices, p.FixDevices...)
	}
	return merged, nil
}
