package rooms

import (
	"regexp"
	"strconv"

	"costamar_booking/internal/domain"
)

// Unit identifiers carry the category implicitly: plain numbers are
// bungalows (a reserved handful are the couples' Matrimonial units),
// number+letter identifiers are hotel rooms, and the single PASADIA
// sentinel is the day pass.
const pasadiaUnit = "PASADIA"

var matrimonialUnits = map[string]bool{"3": true, "4": true, "7": true}

var roomPattern = regexp.MustCompile(`^[0-9]+[A-Z]$`)

// Classify maps a raw inventory identifier to its category. The second
// return is false for identifiers outside the known numbering scheme.
func Classify(identifier string) (domain.Category, bool) {
	if identifier == pasadiaUnit {
		return domain.CategoryPasadia, true
	}
	if n, err := strconv.Atoi(identifier); err == nil {
		switch {
		case n >= 1 && n <= 14:
			if matrimonialUnits[identifier] {
				return domain.CategoryMatrimonial, true
			}
			return domain.CategoryJunior, true
		case n >= 15 && n <= 24:
			return domain.CategoryFamiliar, true
		}
		return "", false
	}
	if roomPattern.MatchString(identifier) {
		return domain.CategoryHabitacion, true
	}
	return "", false
}

// Bounds returns the [min,max] occupancy limits of a category. Max 0
// means unbounded (day pass).
func Bounds(cat domain.Category) (min, max float64, ok bool) {
	switch cat {
	case domain.CategoryMatrimonial:
		return 1, 3, true
	case domain.CategoryJunior:
		return 2, 8, true
	case domain.CategoryFamiliar:
		return 4, 12, true
	case domain.CategoryHabitacion:
		return 1, 4, true
	case domain.CategoryPasadia:
		return 1, 0, true
	}
	return 0, 0, false
}
