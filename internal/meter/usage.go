package meter

import (
	"github.com/ukydev/fleet-pm/internal/models"
)

// DailyRate computes (latest - earliest) / windowDays over readings sorted
// oldest first. It reports false with fewer than two readings.
func DailyRate(readings []models.MeterReading, windowDays float64) (float64, bool) {
	if len(readings) < 2 || windowDays <= 0 {
		return 0, false
	}
	earliest := readings[0].Value
	latest := readings[len(readings)-1].Value
	return (latest - earliest) / windowDays, true
}

// EffectiveUsage returns the usage accumulated since a baseline, given the
// readings taken at or after it (oldest first). A reading lower than its
// predecessor resets the baseline to that reading. latest is nil when there
// are no readings.
func EffectiveUsage(baseline float64, readings []models.MeterReading) (usage float64, latest *models.MeterReading) {
	if len(readings) == 0 {
		return 0, nil
	}
	effective := baseline
	prev := baseline
	for _, r := range readings {
		if r.Value < prev {
			effective = r.Value
		}
		prev = r.Value
	}
	last := readings[len(readings)-1]
	return last.Value - effective, &last
}
