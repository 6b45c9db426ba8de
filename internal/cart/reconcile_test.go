package cart

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedNearDuplicates injects two entries that the per-add filter would
// have caught had they arrived through it, simulating classifier
// variance producing distinct keys for one product.
func seedNearDuplicates(s *Store) {
	s.Add("Pringles Original", "Pringles", "snack", 0.93, "captures/a.jpg", t0)
	s.Add("Pringles Original Potato Crisps", "Pringles", "snack", 0.91, "captures/b.jpg", t0.Add(2*time.Second))
}

func TestReconcileMergesNearDuplicates(t *testing.T) {
	t.Parallel()

	s := NewStore()
	seedNearDuplicates(s)
	price := 1.75
	s.ApplyDealAnalysis("pringles original potato crisps_pringles", &DealAnalysis{BestDealMessage: "deal"}, &price)
	require.Equal(t, 2, s.Len())

	merged := s.Reconcile()
	assert.Equal(t, 1, merged)
	require.Equal(t, 1, s.Len())

	items := s.Items()
	item := items[0]
	assert.Equal(t, 2, item.Count)
	assert.InDelta(t, 0.93, item.Confidence, 1e-9) // max of the two
	assert.Equal(t, t0.Add(2*time.Second), item.LastSeen)
	require.NotNil(t, item.Price)
	assert.InDelta(t, 1.75, *item.Price, 1e-9)
	require.NotNil(t, item.DealAnalysis)
	assert.Equal(t, "captures/b.jpg", item.ImagePath)
}

func TestReconcileIsIdempotent(t *testing.T) {
	t.Parallel()

	s := NewStore()
	seedNearDuplicates(s)
	s.Add("Oat Milk Carton", "Oatly", "dairy", 0.92, "", t0)

	s.Reconcile()
	once := s.Snapshot()

	merged := s.Reconcile()
	assert.Zero(t, merged)
	assert.Equal(t, once, s.Snapshot())
}

func TestReconcileKeepsDistinctItems(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.Add("Coca-Cola Can", "Coca-Cola", "beverage", 0.95, "", t0)
	s.Add("Pringles Original", "Pringles", "snack", 0.93, "", t0)

	merged := s.Reconcile()
	assert.Zero(t, merged)
	assert.Equal(t, 2, s.Len())
}

func TestReconcileEmptyCart(t *testing.T) {
	t.Parallel()

	s := NewStore()
	assert.Zero(t, s.Reconcile())
	assert.Zero(t, s.Len())
}
