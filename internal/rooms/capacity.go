package rooms

import (
	"fmt"
	"sort"
	"strings"

	"costamar_booking/internal/domain"
)

// CapacityError carries the human-readable alternatives computed when a
// party does not fit the requested category. It is relayed to the
// customer, not treated as a hard failure.
type CapacityError struct {
	Category  domain.Category
	Occupancy float64
	Suggestions []string
}

func (e *CapacityError) Error() string {
	if len(e.Suggestions) == 0 {
		return fmt.Sprintf("party (occupancy %.1f) does not fit %s and no alternative fits either", e.Occupancy, e.Category)
	}
	return fmt.Sprintf("party (occupancy %.1f) does not fit %s; alternatives: %s", e.Occupancy, e.Category, strings.Join(e.Suggestions, ", "))
}

// suggestion-ordering list; Pasadía is excluded because a day pass is
// never a substitute for an overnight category.
var overnightCategories = []domain.Category{
	domain.CategoryMatrimonial,
	domain.CategoryJunior,
	domain.CategoryFamiliar,
	domain.CategoryHabitacion,
}

// ValidateCapacity checks a party against the requested category's
// occupancy bounds. Children aged 0-5 never count; each child aged 6-10
// counts half an adult. On failure the returned error lists every
// single-unit category the party would fit, plus small multi-unit
// combinations for parties too large for any single unit.
func ValidateCapacity(cat domain.Category, p domain.PartySpec) error {
	min, max, ok := Bounds(cat)
	if !ok {
		return fmt.Errorf("unknown category %q", cat)
	}
	occ := p.OccupancyScore()
	if fits(occ, min, max) {
		return nil
	}
	return &CapacityError{Category: cat, Occupancy: occ, Suggestions: Alternatives(occ, cat)}
}

// Alternatives computes category suggestions for a given occupancy,
// excluding the category that already failed. Single units first, then
// 2- and 3-unit splits of one category.
func Alternatives(occ float64, exclude domain.Category) []string {
	var out []string
	for _, c := range overnightCategories {
		if c == exclude {
			continue
		}
		min, max, _ := Bounds(c)
		if fits(occ, min, max) {
			out = append(out, string(c))
		}
	}
	for units := 2; units <= 3; units++ {
		for _, c := range overnightCategories {
			min, max, _ := Bounds(c)
			if max == 0 {
				continue
			}
			// n units of c hold the party when each unit stays in bounds
			if occ >= float64(units)*min && occ <= float64(units)*max {
				out = append(out, fmt.Sprintf("%d× %s", units, c))
			}
		}
	}
	return out
}

func fits(occ, min, max float64) bool {
	if occ < min {
		return false
	}
	if max == 0 { // unbounded
		return true
	}
	return occ <= max
}

// CombinedAlternatives suggests options for the summed occupancy of a
// multi-unit request that could not be fully allocated. Sorted for
// stable output.
func CombinedAlternatives(parties []domain.PartySpec) []string {
	var total float64
	for _, p := range parties {
		total += p.OccupancyScore()
	}
	alts := Alternatives(total, "")
	sort.Strings(alts)
	return alts
}
