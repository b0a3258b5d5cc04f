package chain

import "slices"

// Conditions restrict which triggers a chain accepts.
// Empty lists accept everything.
type Conditions struct {
	Severities []string
	CampusIDs  []string
}

// Accepts reports whether a trigger with the given severity and campus matches.
func (c Conditions) Accepts(severity, campusID string) bool {
	if len(c.Severities) > 0 && !slices.Contains(c.Severities, severity) {
		return false
	}
	if len(c.CampusIDs) > 0 && !slices.Contains(c.CampusIDs, campusID) {
		return false
	}
	return true
}

// UpdatedAverage folds one more sample into a running mean over count samples.
// count is the number of samples already included in avg.
func UpdatedAverage(avg float64, count int, sample int) float64 {
	if count <= 0 {
		return float64(sample)
	}
	n := float64(count + 1)
	return avg + (float64(sample)-avg)/n
}
