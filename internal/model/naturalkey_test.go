package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSortNatural(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{
			name: "numeric segments compare as integers",
			in:   []string{"Q2-1", "Q10-1", "Q1-2", "Q1-1"},
			want: []string{"Q1-1", "Q1-2", "Q2-1", "Q10-1"},
		},
		{
			name: "feedback sorts after numbered keys",
			in:   []string{"feedback", "Q1-1", "Q3-2"},
			want: []string{"Q1-1", "Q3-2", "feedback"},
		},
		{
			name: "analysis labels",
			in:   []string{"분석10", "분석2", "분석1"},
			want: []string{"분석1", "분석2", "분석10"},
		},
		{
			name: "empty input",
			in:   nil,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			keys := append([]string(nil), tt.in...)
			SortNatural(keys)
			if tt.want == nil {
				assert.Empty(t, keys)
				return
			}
			assert.Equal(t, tt.want, keys)
		})
	}
}

func TestNaturalLess(t *testing.T) {
	t.Parallel()

	assert.True(t, NaturalLess("Q9-1", "Q10-1"))
	assert.False(t, NaturalLess("Q10-1", "Q9-1"))
	assert.True(t, NaturalLess("Q1-1", "Q1-2"))
	assert.False(t, NaturalLess("Q1-1", "Q1-1"))
	// Case-insensitive on letter runs.
	assert.True(t, NaturalLess("q1-1", "Q1-2"))
}

func TestSlotKeyOrdering(t *testing.T) {
	t.Parallel()

	a := SlotKey{Slot: 9, Sub: 2}
	b := SlotKey{Slot: 10, Sub: 1}
	assert.True(t, a.Less(b))
	assert.False(t, b.Less(a))
	assert.Equal(t, "Q10-1", b.String())
}
