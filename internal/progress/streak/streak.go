// Package streak derives consecutive-day streaks from completion history.
package streak

import "github.com/smallbiznis/goalforge/internal/clock"

// Walk returns the current streak ending today or yesterday.
//
// datesDesc holds YYYY-MM-DD days with at least one completion, most recent
// first. If the latest day is older than yesterday the chain is broken and the
// result is 0. Otherwise days are counted backwards while each step is at most
// one calendar day, stopping at the first larger gap.
func Walk(datesDesc []string, today string) int {
	if len(datesDesc) == 0 {
		return 0
	}

	lag, err := clock.DaysBetween(datesDesc[0], today)
	if err != nil || lag < 0 || lag > 1 {
		return 0
	}

	length := 1
	prev := datesDesc[0]
	for _, day := range datesDesc[1:] {
		gap, err := clock.DaysBetween(day, prev)
		if err != nil || gap < 0 || gap > 1 {
			break
		}
		if gap == 1 {
			length++
		}
		prev = day
	}
	return length
}

// AfterAppend is the streak right after a completion for today was recorded.
// A broken chain restarts at 1 because today now has activity.
func AfterAppend(datesDesc []string, today string) int {
	if n := Walk(datesDesc, today); n > 0 {
		return n
	}
	return 1
}
