package matching

import (
	"testing"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
)

func mustDate(s string) civil.Date {
	d, err := civil.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestCalculateDaysDiff(t *testing.T) {
	assert.Equal(t, 0, CalculateDaysDiff(mustDate("2024-01-15"), mustDate("2024-01-15")))
	assert.Equal(t, 3, CalculateDaysDiff(mustDate("2024-01-15"), mustDate("2024-01-12")))
	assert.Equal(t, 3, CalculateDaysDiff(mustDate("2024-01-12"), mustDate("2024-01-15")))
	assert.Equal(t, 2, CalculateDaysDiff(mustDate("2024-02-28"), mustDate("2024-03-01")))
}

func TestCompareDates(t *testing.T) {
	base := mustDate("2024-01-15")

	tests := []struct {
		name      string
		target    string
		opts      DateOptions
		wantScore int
		wantMatch bool
		wantCap   int
	}{
		{name: "same day", target: "2024-01-15", wantScore: 30, wantMatch: true},
		{name: "one day", target: "2024-01-16", wantScore: 25, wantMatch: true},
		{name: "two days", target: "2024-01-13", wantScore: 20, wantMatch: true},
		{name: "three days", target: "2024-01-18", wantScore: 15, wantMatch: true},
		{name: "beyond default window", target: "2024-01-20", wantScore: 0, wantMatch: false},
		{name: "weak inside custom window", target: "2024-01-20", opts: DateOptions{MaxDaysDiff: 7}, wantScore: 0, wantMatch: true, wantCap: 90},
		{name: "cap floor", target: "2024-02-04", opts: DateOptions{MaxDaysDiff: 30}, wantScore: 0, wantMatch: true, wantCap: 50},
		{name: "strict mode", target: "2024-01-17", opts: DateOptions{StrictMode: true}, wantScore: 20, wantMatch: true},
		{name: "strict mode floor", target: "2024-01-25", opts: DateOptions{StrictMode: true, MaxDaysDiff: 10}, wantScore: 0, wantMatch: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CompareDates(base, mustDate(tt.target), tt.opts)
			assert.Equal(t, tt.wantScore, got.Score)
			assert.Equal(t, tt.wantMatch, got.IsMatch)
			assert.Equal(t, tt.wantCap, got.ConfidenceCap)
			assert.NotEmpty(t, got.Reason)
		})
	}
}

func TestIsDateInPeriod(t *testing.T) {
	start, end := mustDate("2024-01-01"), mustDate("2024-01-31")
	assert.True(t, IsDateInPeriod(mustDate("2024-01-01"), start, end))
	assert.True(t, IsDateInPeriod(mustDate("2024-01-31"), start, end))
	assert.False(t, IsDateInPeriod(mustDate("2024-02-01"), start, end))
}

func TestDateSearchWindow(t *testing.T) {
	from, to := DateSearchWindow(mustDate("2024-03-01"), 3)
	assert.Equal(t, mustDate("2024-02-27"), from)
	assert.Equal(t, mustDate("2024-03-04"), to)
}
