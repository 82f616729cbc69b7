package equipment

import (
	"fmt"

	"diabetes-clinic-server/internal/models"
)

// DefaultExpiringSoonDays is how many days before the warranty end date a
// unit is reported as expiring soon.
const DefaultExpiringSoonDays = 30

// WarrantyEndDate derives the end of a warranty from its start and length in
// calendar years.
func WarrantyEndDate(start models.Date, years int) models.Date {
	return start.AddYears(years)
}

// WarrantyStatus classifies a warranty ending on end as seen on today.
// The result depends only on its arguments.
func WarrantyStatus(end, today models.Date, soonDays int) models.WarrantyInfo {
	remaining := today.DaysUntil(end)

	switch {
	case today.After(end):
		return models.WarrantyInfo{
			Status:        models.WarrantyExpired,
			DaysRemaining: remaining,
			Message:       fmt.Sprintf("Warranty expired on %s (%s ago)", end, pluralDays(-remaining)),
		}
	case remaining <= soonDays:
		msg := fmt.Sprintf("Warranty expires in %s", pluralDays(remaining))
		if remaining == 0 {
			msg = "Warranty expires today"
		}
		return models.WarrantyInfo{
			Status:        models.WarrantyExpiringSoon,
			DaysRemaining: remaining,
			Message:       msg,
		}
	default:
		return models.WarrantyInfo{
			Status:        models.WarrantyActive,
			DaysRemaining: remaining,
			Message:       fmt.Sprintf("Warranty active until %s", end),
		}
	}
}

func pluralDays(n int) string {
	if n == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", n)
}
