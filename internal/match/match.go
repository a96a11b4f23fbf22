// Package match scores rental units against a lead profile.
package match

import (
	"sort"
	"strings"

	"github.com/hurttlocker/leasebot/internal/lead"
)

// rentByBedrooms is the comparable-rent table used for estimates and mocks.
var rentByBedrooms = map[int]int{
	0: 1200, // studio
	1: 1500,
	2: 1800,
	3: 2400,
	4: 3000,
}

// DefaultRent is the estimate for bedroom counts outside the table.
const DefaultRent = 2000

// RentEstimate returns the typical monthly rent for a bedroom count.
func RentEstimate(bedrooms int) int {
	if r, ok := rentByBedrooms[bedrooms]; ok {
		return r
	}
	return DefaultRent
}

// Score returns the mean of the applicable factor scores, in [0,1].
//
// Bedrooms, budget and pets always count toward the denominator; amenities
// count only when the lead has stated preferences.
func Score(p lead.Profile, c lead.Candidate) float64 {
	var score float64
	factors := 3

	if p.Bedrooms != nil && c.Bedrooms == *p.Bedrooms {
		score++
	}

	if p.Budget != nil && *p.Budget > 0 && c.Rent <= *p.Budget {
		ratio := float64(c.Rent) / float64(*p.Budget)
		score += 1 - abs(1-ratio)
	}

	if p.IsPetFriendly() && c.PetFriendly {
		score++
	}

	if len(p.Preferences) > 0 {
		factors++
		score += amenityOverlap(p.Preferences, c.Amenities)
	}

	return score / float64(factors)
}

// amenityOverlap is the fraction of preference tags found, case-insensitively,
// as a substring of any candidate amenity.
func amenityOverlap(prefs, amenities []string) float64 {
	lowered := make([]string, len(amenities))
	for i, a := range amenities {
		lowered[i] = strings.ToLower(a)
	}
	hits := 0
	for _, pref := range prefs {
		needle := strings.ToLower(pref)
		for _, a := range lowered {
			if strings.Contains(a, needle) {
				hits++
				break
			}
		}
	}
	return float64(hits) / float64(len(prefs))
}

// Rank scores a copy of every candidate and orders them best first.
// Ties keep their input order.
func Rank(p lead.Profile, candidates []lead.Candidate) []lead.Candidate {
	out := make([]lead.Candidate, len(candidates))
	for i, c := range candidates {
		c.Amenities = append([]string(nil), c.Amenities...)
		c.MatchScore = Score(p, c)
		out[i] = c
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].MatchScore > out[j].MatchScore
	})
	return out
}

// MockCandidates returns three deterministic stand-in units priced around
// the lead's budget (or the rent estimate when no budget is known). Used when
// the property search is unavailable.
func MockCandidates(p lead.Profile) []lead.Candidate {
	bedrooms := 2
	if p.Bedrooms != nil {
		bedrooms = *p.Bedrooms
	}
	base := RentEstimate(bedrooms)
	if p.Budget != nil {
		base = *p.Budget
	}
	return []lead.Candidate{
		{
			ID:        "mock-1",
			Address:   "123 Main Street, Apt 201",
			Bedrooms:  bedrooms,
			Bathrooms: 2,
			Rent:      base - 100,
			Available: true,
			Amenities: []string{"Parking", "Pool", "Gym", "In-unit laundry"},
		},
		{
			ID:          "mock-2",
			Address:     "456 Oak Avenue, Unit 5B",
			Bedrooms:    bedrooms,
			Bathrooms:   1,
			Rent:        base - 200,
			Available:   true,
			PetFriendly: true,
			Amenities:   []string{"Parking", "Pet-friendly", "Balcony"},
		},
		{
			ID:        "mock-3",
			Address:   "789 Pine Boulevard, Suite 12",
			Bedrooms:  bedrooms,
			Bathrooms: 2,
			Rent:      base,
			Available: true,
			Amenities: []string{"Gym", "Pool", "Concierge", "In-unit laundry", "Garage"},
		},
	}
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
