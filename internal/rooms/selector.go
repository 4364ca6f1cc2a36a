package rooms

import (
	"fmt"
	"math/rand"
	"sort"

	"costamar_booking/internal/domain"
)

// Request is one unit's worth of a booking: the category asked for and
// the party that will occupy it.
type Request struct {
	Category domain.Category
	Party    domain.PartySpec
}

// Select picks one unit of the requested category from a live
// availability snapshot (unit id -> raw identifier), skipping anything in
// excluded. The pick is uniform-random among eligible units so load
// spreads across physically similar bungalows instead of always landing
// on the lowest number. Returns ErrNoAvailability when nothing fits.
func Select(avail map[string]string, cat domain.Category, excluded map[string]bool) (domain.RoomAllocation, error) {
	eligible := make([]string, 0, len(avail))
	for unitID, identifier := range avail {
		if excluded[unitID] {
			continue
		}
		c, ok := Classify(identifier)
		if !ok || c != cat {
			continue
		}
		eligible = append(eligible, unitID)
	}
	if len(eligible) == 0 {
		return domain.RoomAllocation{}, domain.ErrNoAvailability
	}
	sort.Strings(eligible)
	unit := eligible[rand.Intn(len(eligible))]
	min, max, _ := Bounds(cat)
	return domain.RoomAllocation{UnitID: unit, Category: cat, MinOcc: min, MaxOcc: max}, nil
}

// MultiError reports a partial multi-unit selection: which requests were
// satisfiable plus combined-party alternatives for the caller to offer.
type MultiError struct {
	Allocated    []domain.RoomAllocation
	FailedIndex  int
	Alternatives []string
}

func (e *MultiError) Error() string {
	return fmt.Sprintf("only %d of multi-unit request allocatable (failed at request %d)", len(e.Allocated), e.FailedIndex)
}

// SelectMany allocates one unit per request from the same snapshot.
// Capacity is validated for every request up front (no external call
// needed for that), then units are picked greedily with an accumulating
// exclusion set so no unit is handed out twice. Units in the initial
// exclusion set are never considered (conflict retries pass the units
// that just failed). A request that cannot be satisfied yields a
// MultiError carrying alternatives for the combined party, letting the
// caller offer options instead of a bare rejection.
func SelectMany(reqs []Request, avail map[string]string, initialExcluded map[string]bool) ([]domain.RoomAllocation, error) {
	for _, r := range reqs {
		if err := ValidateCapacity(r.Category, r.Party); err != nil {
			return nil, err
		}
	}
	excluded := make(map[string]bool, len(reqs)+len(initialExcluded))
	for u := range initialExcluded {
		excluded[u] = true
	}
	out := make([]domain.RoomAllocation, 0, len(reqs))
	for i, r := range reqs {
		alloc, err := Select(avail, r.Category, excluded)
		if err != nil {
			parties := make([]domain.PartySpec, len(reqs))
			for j, rr := range reqs {
				parties[j] = rr.Party
			}
			return nil, &MultiError{Allocated: out, FailedIndex: i, Alternatives: CombinedAlternatives(parties)}
		}
		excluded[alloc.UnitID] = true
		out = append(out, alloc)
	}
	return out, nil
}
