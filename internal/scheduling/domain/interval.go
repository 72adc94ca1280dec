package domain

import (
	"sort"
	"time"
)

// Interval is a half-open range of instants [Start, End).
// Adjacent intervals do not overlap.
type Interval struct {
	Start time.Time
	End   time.Time
}

// NewInterval creates an interval. Start must be before End for the
// interval to be non-empty; callers that cannot guarantee this should
// check IsEmpty on the result.
func NewInterval(start, end time.Time) Interval {
	return Interval{Start: start, End: end}
}

// IsEmpty reports whether the interval contains no instants.
func (iv Interval) IsEmpty() bool {
	return !iv.Start.Before(iv.End)
}

// Duration returns the length of the interval.
func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

// Overlaps reports whether two half-open intervals share any instant.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && other.Start.Before(iv.End)
}

// Contains reports whether the instant t falls inside the interval.
func (iv Interval) Contains(t time.Time) bool {
	return !t.Before(iv.Start) && t.Before(iv.End)
}

// Intersect returns the overlap of a and b. The second return value is
// false when the intervals are disjoint or merely adjacent.
func Intersect(a, b Interval) (Interval, bool) {
	start := a.Start
	if b.Start.After(start) {
		start = b.Start
	}
	end := a.End
	if b.End.Before(end) {
		end = b.End
	}
	if !start.Before(end) {
		return Interval{}, false
	}
	return Interval{Start: start, End: end}, true
}

// Subtract removes every interval in removals from src and returns the
// remaining gaps ordered by start. Removals may overlap src partially,
// fully, or each other; the output intervals never overlap. An empty
// slice is returned when the removals cover src entirely.
func Subtract(src Interval, removals []Interval) []Interval {
	if src.IsEmpty() {
		return nil
	}

	overlapping := make([]Interval, 0, len(removals))
	for _, r := range removals {
		if r.Overlaps(src) {
			overlapping = append(overlapping, r)
		}
	}
	if len(overlapping) == 0 {
		return []Interval{src}
	}

	sort.Slice(overlapping, func(i, j int) bool {
		return overlapping[i].Start.Before(overlapping[j].Start)
	})

	gaps := make([]Interval, 0, len(overlapping)+1)
	cursor := src.Start
	for _, r := range overlapping {
		if r.Start.After(cursor) {
			gaps = append(gaps, Interval{Start: cursor, End: r.Start})
		}
		if r.End.After(cursor) {
			cursor = r.End
		}
	}
	if cursor.Before(src.End) {
		gaps = append(gaps, Interval{Start: cursor, End: src.End})
	}
	return gaps
}

// Chunk tiles iv with fixed-duration sub-intervals packed greedily from
// the start. A tail remainder shorter than d is discarded.
func Chunk(d time.Duration, iv Interval) []Interval {
	if d <= 0 || iv.IsEmpty() {
		return nil
	}
	n := int(iv.Duration() / d)
	chunks := make([]Interval, 0, n)
	for start := iv.Start; !start.Add(d).After(iv.End); start = start.Add(d) {
		chunks = append(chunks, Interval{Start: start, End: start.Add(d)})
	}
	return chunks
}
