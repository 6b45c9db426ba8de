package cart

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsGrocery(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		category string
		want     bool
	}{
		// Explicit grocery categories accept.
		{"Coca-Cola Can", "beverage", true},
		{"Pringles Original", "snack", true},
		{"Cheddar Block", "dairy", true},
		// Explicit non-grocery categories reject, even with a grocery-ish name.
		{"Protein Drink Shaker", "sports equipment", false},
		{"Milk Frother", "appliance", false},
		{"Chip Clip", "kitchen", false},
		// Unknown category falls through to name keywords.
		{"mystery can", "other", true},
		{"juice box", "", true},
		{"wrench", "other", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, IsGrocery(tt.name, tt.category),
			"name=%q category=%q", tt.name, tt.category)
	}
}

func TestIsBag(t *testing.T) {
	t.Parallel()

	assert.True(t, IsBag("Shopping Bag", "other"))
	assert.True(t, IsBag("Canvas Tote", "accessory"))
	assert.True(t, IsBag("Something", "basket"))
	assert.False(t, IsBag("Coca-Cola Can", "beverage"))
}

func TestIsSentinel(t *testing.T) {
	t.Parallel()

	assert.True(t, IsSentinel(SentinelNoHand))
	assert.True(t, IsSentinel(SentinelUnidentifiable))
	assert.False(t, IsSentinel("Coca-Cola Can"))
}
