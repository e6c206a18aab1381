// internal/wizard/residences.go
package wizard

import "renter-wizard/internal/models"

// reconcileResidences keeps the residential history just long enough to
// cover minMonths. Entries after the one that reaches the minimum are
// dropped; when the total is still short and the last entry has a duration,
// an empty entry is appended for the next address.
func reconcileResidences(history []models.Residence, minMonths int) []models.Residence {
	if minMonths <= 0 {
		minMonths = DefaultMinResidenceMonths
	}
	if len(history) == 0 {
		return []models.Residence{{}}
	}

	total := 0
	for i, r := range history {
		total += r.DurationOfTenancy
		if total >= minMonths {
			return history[:i+1]
		}
	}

	if history[len(history)-1].DurationOfTenancy > 0 {
		history = append(history, models.Residence{})
	}
	return history
}

// TotalTenancyMonths sums durationOfTenancy across the history.
func TotalTenancyMonths(history []models.Residence) int {
	total := 0
	for _, r := range history {
		total += r.DurationOfTenancy
	}
	return total
}
