package cart

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)

func TestAddInsertsNewItem(t *testing.T) {
	t.Parallel()

	s := NewStore()
	result := s.Add("Pringles Original", "Pringles", "snack", 0.93, "captures/a.jpg", t0)

	require.True(t, result.Added)
	require.True(t, result.Mutated)
	assert.Equal(t, "pringles original_pringles", result.Key)
	assert.Equal(t, 1, result.NewCount)

	items := s.Snapshot()
	require.Len(t, items, 1)
	item := items[result.Key]
	assert.Equal(t, "Pringles Original", item.Name)
	assert.Equal(t, "Pringles", item.Brand)
	assert.Equal(t, 1, item.Count)
	assert.InDelta(t, 0.93, item.Confidence, 1e-9)
	assert.Equal(t, t0, item.LastSeen)
	assert.Equal(t, "captures/a.jpg", item.ImagePath)
}

func TestAddIncrementsExistingKey(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.Add("Pringles Original", "Pringles", "snack", 0.93, "captures/a.jpg", t0)
	result := s.Add("Pringles Original", "Pringles", "snack", 0.91, "captures/b.jpg", t0.Add(3*time.Second))

	assert.False(t, result.Added)
	assert.True(t, result.Mutated)
	assert.Equal(t, 2, result.NewCount)

	item := s.Snapshot()[result.Key]
	assert.Equal(t, 2, item.Count)
	// Confidence stays that of the original detection.
	assert.InDelta(t, 0.93, item.Confidence, 1e-9)
	// Most recent image wins.
	assert.Equal(t, "captures/b.jpg", item.ImagePath)
	assert.Equal(t, t0.Add(3*time.Second), item.LastSeen)
}

func TestLastSeenIsMonotonic(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.Add("Pringles Original", "Pringles", "snack", 0.93, "", t0)
	// An out-of-order timestamp must not move LastSeen backwards.
	s.Add("Pringles Original", "Pringles", "snack", 0.93, "", t0.Add(-5*time.Second))

	item := s.Snapshot()["pringles original_pringles"]
	assert.Equal(t, t0, item.LastSeen)
	assert.Equal(t, 2, item.Count)
}

func TestUpdateCooldownThrottlesSameKey(t *testing.T) {
	t.Parallel()

	s := NewStore(WithUpdateCooldown(5 * time.Second))
	first := s.Add("Pringles Original", "Pringles", "snack", 0.93, "", t0)
	require.True(t, first.Mutated)

	// Within the cooldown window the increment is dropped.
	second := s.Add("Pringles Original", "Pringles", "snack", 0.93, "", t0.Add(2*time.Second))
	assert.False(t, second.Mutated)
	assert.Equal(t, 1, s.Snapshot()[first.Key].Count)

	// Past the window it goes through again.
	third := s.Add("Pringles Original", "Pringles", "snack", 0.93, "", t0.Add(6*time.Second))
	assert.True(t, third.Mutated)
	assert.Equal(t, 2, third.NewCount)
}

func TestFindSimilar(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.Add("Pringles Original", "Pringles", "snack", 0.93, "", t0)

	key, ok := s.FindSimilar("Pringles Original Potato Crisps", "Pringles")
	require.True(t, ok)
	assert.Equal(t, "pringles original_pringles", key)

	_, ok = s.FindSimilar("Oat Milk", "Oatly")
	assert.False(t, ok)
}

func TestBumpMergesRepeatSighting(t *testing.T) {
	t.Parallel()

	s := NewStore()
	first := s.Add("Coca-Cola Can", "Coca-Cola", "beverage", 0.95, "captures/a.jpg", t0)

	result := s.Bump(first.Key, "captures/b.jpg", t0.Add(4*time.Second))
	require.True(t, result.Mutated)
	assert.Equal(t, 2, result.NewCount)

	item := s.Snapshot()[first.Key]
	assert.Equal(t, 2, item.Count)
	assert.Equal(t, "captures/b.jpg", item.ImagePath)
	assert.Equal(t, t0.Add(4*time.Second), item.LastSeen)

	// Bumping a vanished key is a no-op.
	gone := s.Bump("no such key", "", t0)
	assert.False(t, gone.Mutated)
}

func TestFindByName(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.Add("Coca-Cola Can", "Coca-Cola", "beverage", 0.95, "", t0)
	s.Add("Pringles Original", "Pringles", "snack", 0.93, "", t0)

	key, ok := s.FindByName("coca-cola can")
	require.True(t, ok)
	assert.Equal(t, "coca-cola can_coca-cola", key)

	_, ok = s.FindByName("garden hose")
	assert.False(t, ok)

	empty := NewStore()
	_, ok = empty.FindByName("anything")
	assert.False(t, ok)
}

func TestFindByNameRejectsWeakMatches(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.Add("Original Recipe Salsa", "Unknown", "food", 0.9, "", t0)

	// One shared token is not enough to claim the entry.
	_, ok := s.FindByName("Pringles Original")
	assert.False(t, ok)

	key, ok := s.FindByName("original recipe salsa")
	require.True(t, ok)
	assert.Equal(t, "original recipe salsa_unknown", key)
}

func TestApplyDealAnalysis(t *testing.T) {
	t.Parallel()

	s := NewStore()
	result := s.Add("Pringles Original", "Pringles", "snack", 0.93, "", t0)

	analysis := &DealAnalysis{
		BestDealMessage: "The best deal for Pringles Original is $1.75 at Dollar General.",
	}
	require.True(t, s.ApplyDealAnalysis(result.Key, analysis, nil))

	item := s.Snapshot()[result.Key]
	require.NotNil(t, item.DealAnalysis)
	require.NotNil(t, item.Price)
	assert.InDelta(t, 1.75, *item.Price, 1e-9)

	// Explicit price overrides extraction.
	price := 2.50
	require.True(t, s.ApplyDealAnalysis(result.Key, analysis, &price))
	assert.InDelta(t, 2.50, *s.Snapshot()[result.Key].Price, 1e-9)

	// Target merged away: patch is dropped.
	assert.False(t, s.ApplyDealAnalysis("vanished_key", analysis, nil))
}

func TestOnMutateFiresOnEveryMutation(t *testing.T) {
	t.Parallel()

	var calls int
	s := NewStore(WithOnMutate(func() { calls++ }))

	added := s.Add("Pringles Original", "Pringles", "snack", 0.93, "", t0)
	s.Add("Pringles Original", "Pringles", "snack", 0.93, "", t0.Add(time.Second))
	s.Bump(added.Key, "", t0.Add(2*time.Second))
	s.ApplyDealAnalysis(added.Key, &DealAnalysis{BestDealMessage: "x"}, nil)

	assert.Equal(t, 4, calls)

	// A throttled add must not notify.
	throttled := NewStore(WithUpdateCooldown(time.Minute), WithOnMutate(func() { calls++ }))
	throttled.Add("Coca-Cola Can", "Coca-Cola", "beverage", 0.95, "", t0)
	before := calls
	throttled.Add("Coca-Cola Can", "Coca-Cola", "beverage", 0.95, "", t0.Add(time.Second))
	assert.Equal(t, before, calls)
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	s := NewStore()
	coke := s.Add("Coca-Cola Can", "Coca-Cola", "beverage", 0.95, "", t0)
	s.Bump(coke.Key, "", t0.Add(time.Second))
	pringles := s.Add("Pringles Original", "Pringles", "snack", 0.93, "", t0)

	cokePrice := 1.35
	s.ApplyDealAnalysis(coke.Key, &DealAnalysis{BestDealMessage: "deal"}, &cokePrice)
	pringlesPrice := 1.75
	s.ApplyDealAnalysis(pringles.Key, &DealAnalysis{BestDealMessage: "deal"}, &pringlesPrice)

	summary := s.Summarize()
	assert.Equal(t, 3, summary.TotalItems)
	assert.Equal(t, 2, summary.UniqueItems)
	assert.Equal(t, []string{"beverage", "snack"}, summary.Categories)
	assert.Equal(t, []string{"Coca-Cola", "Pringles"}, summary.Brands)
	assert.Equal(t, 2, summary.ItemsWithDealInfo)
	// 2 cans at 1.35 plus 1 pringles at 1.75
	assert.InDelta(t, 4.45, summary.TotalPrice, 1e-9)
}

func TestExtractBestDealPrice(t *testing.T) {
	t.Parallel()

	price := ExtractBestDealPrice("best deal is $1.75 at Dollar General")
	require.NotNil(t, price)
	assert.InDelta(t, 1.75, *price, 1e-9)

	assert.Nil(t, ExtractBestDealPrice("no price mentioned"))
	assert.Nil(t, ExtractBestDealPrice(""))

	price = ExtractBestDealPrice("was $6, now $4.99")
	require.NotNil(t, price)
	assert.InDelta(t, 6.0, *price, 1e-9)
}

func TestBagDetection(t *testing.T) {
	t.Parallel()

	s := NewStore()
	detected, _ := s.BagDetection()
	assert.False(t, detected)

	s.SetBagDetected(0.90)
	s.SetBagDetected(0.85) // lower confidence does not regress

	detected, confidence := s.BagDetection()
	assert.True(t, detected)
	assert.InDelta(t, 0.90, confidence, 1e-9)
}
