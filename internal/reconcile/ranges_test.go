package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRangeSetAdd(t *testing.T) {
	var s rangeSet
	s.add(Range{10, 20})
	s.add(Range{30, 40})
	s.add(Range{0, 5})
	assert.Equal(t, rangeSet{{0, 5}, {10, 20}, {30, 40}}, s)

	s.add(Range{20, 30})
	assert.Equal(t, rangeSet{{0, 5}, {10, 40}}, s)

	s.add(Range{3, 12})
	assert.Equal(t, rangeSet{{0, 40}}, s)

	s.add(Range{50, 50})
	assert.Equal(t, rangeSet{{0, 40}}, s)
}

func TestRangeSetCovers(t *testing.T) {
	s := rangeSet{{0, 10}, {20, 30}}

	assert.True(t, s.covers(Range{0, 10}))
	assert.True(t, s.covers(Range{22, 25}))
	assert.False(t, s.covers(Range{5, 25}))
	assert.False(t, s.covers(Range{10, 20}))
	assert.False(t, s.covers(Range{29, 31}))
}

func TestRangeSetSubtract(t *testing.T) {
	s := rangeSet{{10, 20}, {30, 40}}

	assert.Equal(t, []Range{{0, 10}, {20, 30}, {40, 50}}, s.subtract(Range{0, 50}))
	assert.Equal(t, []Range{{20, 25}}, s.subtract(Range{15, 25}))
	assert.Empty(t, s.subtract(Range{12, 18}))
	assert.Equal(t, []Range{{50, 60}}, s.subtract(Range{50, 60}))
}
