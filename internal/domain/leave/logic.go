package leave

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrEndBeforeStart  = errors.New("end date before start date")
	ErrPartialDayRange = errors.New("partial day requires start and end on the same date")
	halfDay            = decimal.NewFromFloat(0.5)
)

// DateOnly truncates t to its calendar date in UTC.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// CalculateDays returns inclusive day count between start and end.
func CalculateDays(start, end time.Time) (int, error) {
	start, end = DateOnly(start), DateOnly(end)
	if end.Before(start) {
		return 0, ErrEndBeforeStart
	}
	return int(end.Sub(start).Hours()/24) + 1, nil
}

// CalculateTotalDays is the inclusive day count, or half a day for a partial-day request.
func CalculateTotalDays(start, end time.Time, partialDay bool) (decimal.Decimal, error) {
	days, err := CalculateDays(start, end)
	if err != nil {
		return decimal.Zero, err
	}
	if partialDay {
		if days != 1 {
			return decimal.Zero, ErrPartialDayRange
		}
		return halfDay, nil
	}
	return decimal.NewFromInt(int64(days)), nil
}
