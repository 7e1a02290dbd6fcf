package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyFamilyDiscount(t *testing.T) {
	tests := []struct {
		name        string
		amount      int64
		basePercent int
		familySize  int
		want        int64
		wantSaved   int64
	}{
		{"no discount configured", 10000, 0, 3, 10000, 0},
		{"single member household", 10000, 20, 1, 10000, 0},
		{"family of two", 10000, 20, 2, 9000, 1000},
		{"family of three", 10000, 20, 3, 8667, 1333},
		{"family of four", 10000, 20, 4, 8500, 1500},
		{"floors fractional cents", 999, 10, 2, 949, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, saved := ApplyFamilyDiscount(tt.amount, tt.basePercent, tt.familySize)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantSaved, saved)
		})
	}
}

func TestFamilyDiscountGrowsWithHouseholdSize(t *testing.T) {
	prev := int64(10000)
	for size := 2; size <= 8; size++ {
		discounted, _ := ApplyFamilyDiscount(10000, 20, size)
		assert.Less(t, discounted, prev, "size %d should be cheaper than size %d", size, size-1)
		prev = discounted
	}

	// The effective discount never exceeds the configured base percent.
	floor, _ := ApplyFamilyDiscount(10000, 20, 1000)
	assert.GreaterOrEqual(t, floor, int64(8000))
}
