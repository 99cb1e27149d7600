package streak

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWalk(t *testing.T) {
	tests := []struct {
		name  string
		dates []string
		today string
		want  int
	}{
		{name: "no history", dates: nil, today: "2026-03-04", want: 0},
		{name: "only today", dates: []string{"2026-03-04"}, today: "2026-03-04", want: 1},
		{name: "only yesterday", dates: []string{"2026-03-03"}, today: "2026-03-04", want: 1},
		{name: "stale history", dates: []string{"2026-03-01"}, today: "2026-03-04", want: 0},
		{name: "three consecutive", dates: []string{"2026-03-04", "2026-03-03", "2026-03-02"}, today: "2026-03-04", want: 3},
		{name: "gap stops walk", dates: []string{"2026-03-04", "2026-03-02", "2026-03-01"}, today: "2026-03-04", want: 1},
		{name: "duplicate days ignored", dates: []string{"2026-03-04", "2026-03-04", "2026-03-03"}, today: "2026-03-04", want: 2},
		{name: "across month boundary", dates: []string{"2026-03-01", "2026-02-28", "2026-02-27"}, today: "2026-03-01", want: 3},
		{name: "future date is ignored", dates: []string{"2026-03-05"}, today: "2026-03-04", want: 0},
		{name: "malformed stops walk", dates: []string{"2026-03-04", "garbage", "2026-03-02"}, today: "2026-03-04", want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Walk(tt.dates, tt.today))
		})
	}
}

func TestAfterAppend(t *testing.T) {
	// consecutive days D, D+1, D+2
	assert.Equal(t, 1, AfterAppend([]string{"2026-03-02"}, "2026-03-02"))
	assert.Equal(t, 2, AfterAppend([]string{"2026-03-03", "2026-03-02"}, "2026-03-03"))
	assert.Equal(t, 3, AfterAppend([]string{"2026-03-04", "2026-03-03", "2026-03-02"}, "2026-03-04"))

	// D then D+2
	assert.Equal(t, 1, AfterAppend([]string{"2026-03-04", "2026-03-02"}, "2026-03-04"))

	// broken chain without today's row restarts
	assert.Equal(t, 1, AfterAppend([]string{"2026-02-20"}, "2026-03-04"))
}
