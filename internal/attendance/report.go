package attendance

import (
	"sort"
	"time"
)

// Day is one session day of a course.
type Day struct {
	Date    string   `json:"date"` // YYYY-MM-DD
	Records []Record `json:"records"`
}

// BuildReport groups records by calendar day in loc, keeping each
// student's first scan of the day. Days are newest first, records within
// a day in scan order.
func BuildReport(records []Record, loc *time.Location) []Day {
	if loc == nil {
		loc = time.Local
	}
	sorted := append([]Record(nil), records...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].RecordedAt.Before(sorted[j].RecordedAt)
	})

	byDay := make(map[string]*Day)
	seen := make(map[string]bool)
	for _, rec := range sorted {
		date := rec.RecordedAt.In(loc).Format("2006-01-02")
		who := rec.StudentID
		if who == "" {
			who = rec.StudentEmail
		}
		if seen[date+"\x00"+who] {
			continue
		}
		seen[date+"\x00"+who] = true
		d, ok := byDay[date]
		if !ok {
			d = &Day{Date: date}
			byDay[date] = d
		}
		d.Records = append(d.Records, rec)
	}

	days := make([]Day, 0, len(byDay))
	for _, d := range byDay {
		days = append(days, *d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date > days[j].Date })
	return days
}
