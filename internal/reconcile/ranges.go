package reconcile

import "sort"

// Range is a half-open byte range [Start, End) within one file.
type Range struct {
	Start int64
	End   int64
}

// Len returns the number of bytes in r.
func (r Range) Len() int64 {
	return r.End - r.Start
}

// rangeSet is a sorted list of disjoint, non-adjacent ranges.
type rangeSet []Range

// add inserts r, merging it with any range it overlaps or touches.
func (s *rangeSet) add(r Range) {
	if r.Len() <= 0 {
		return
	}

	set := *s
	i := sort.Search(len(set), func(i int) bool { return set[i].End >= r.Start })
	j := i
	for j < len(set) && set[j].Start <= r.End {
		r.Start = min(r.Start, set[j].Start)
		r.End = max(r.End, set[j].End)
		j++
	}

	out := make(rangeSet, 0, len(set)-(j-i)+1)
	out = append(out, set[:i]...)
	out = append(out, r)
	out = append(out, set[j:]...)
	*s = out
}

// covers reports whether r lies entirely inside one range of s.
func (s rangeSet) covers(r Range) bool {
	i := sort.Search(len(s), func(i int) bool { return s[i].End > r.Start })
	return i < len(s) && s[i].Start <= r.Start && s[i].End >= r.End
}

// subtract returns the parts of r not in s, in order.
func (s rangeSet) subtract(r Range) []Range {
	var out []Range
	pos := r.Start

	i := sort.Search(len(s), func(i int) bool { return s[i].End > r.Start })
	for ; i < len(s) && s[i].Start < r.End; i++ {
		if s[i].Start > pos {
			out = append(out, Range{Start: pos, End: s[i].Start})
		}
		pos = max(pos, s[i].End)
	}
	if pos < r.End {
		out = append(out, Range{Start: pos, End: r.End})
	}

	return out
}

func (s rangeSet) clone() rangeSet {
	return append(rangeSet(nil), s...)
}
