package services

import (
	"time"

	"idx_portal/models"
)

// IsDue reports whether search should run at now. now must already be in the portal's
// wall-clock zone. Scheduled searches run at most once per minute, so a search whose
// last run falls in the same minute as now is not due again.
func IsDue(search *models.SavedSearch, now time.Time) bool {
	if search == nil || !search.IsActive || search.Schedule == nil {
		return false
	}

	if search.Schedule.Frequency() != models.FrequencyRealtime && search.LastRunAt != nil {
		last := search.LastRunAt.In(now.Location())
		if last.Truncate(time.Minute).Equal(now.Truncate(time.Minute)) {
			return false
		}
	}

	return models.ScheduledAt(search.Schedule, now)
}
