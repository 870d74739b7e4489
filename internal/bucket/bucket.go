// Package bucket provides the pure time arithmetic shared by the counter
// tier, the window reader and the rollup pipeline: flooring timestamps to
// bucket boundaries and enumerating the buckets that cover a window.
package bucket

import "time"

// Start floors t to the boundary of the bucket containing it. Results are
// always in UTC so keys derived from them are stable across hosts.
func Start(t time.Time, size time.Duration) time.Time {
	return t.UTC().Truncate(size)
}

// Covering returns the ordered bucket start times for every bucket that
// overlaps [windowStart, windowEnd). A window that is not a whole multiple
// of size still includes the partially covered buckets at both edges.
func Covering(windowStart, windowEnd time.Time, size time.Duration) []time.Time {
	if size <= 0 || !windowStart.Before(windowEnd) {
		return nil
	}

	first := Start(windowStart, size)
	end := windowEnd.UTC()

	starts := make([]time.Time, 0, int(end.Sub(first)/size)+1)
	for cur := first; cur.Before(end); cur = cur.Add(size) {
		starts = append(starts, cur)
	}
	return starts
}
