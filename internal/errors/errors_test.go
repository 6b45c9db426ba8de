package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorBuilder(t *testing.T) {
	t.Parallel()

	base := stderrors.New("connection refused")
	err := New(base).
		Component("classifier").
		Category(CategoryNetwork).
		Context("endpoint", "https://example.test/v1/classify").
		Build()

	assert.Equal(t, "connection refused", err.Error())
	assert.Equal(t, "classifier", err.Component)
	assert.Equal(t, CategoryNetwork, err.Category)
	assert.Equal(t, "https://example.test/v1/classify", err.Context["endpoint"])
	assert.False(t, err.Timestamp.IsZero())
}

func TestUnwrapPreservesOriginal(t *testing.T) {
	t.Parallel()

	base := stderrors.New("bad payload")
	err := Newf("decoding response: %w", base).Category(CategoryJSONParsing).Build()

	require.True(t, Is(err, base))

	var ee *EnhancedError
	require.True(t, As(err, &ee))
	assert.Equal(t, CategoryJSONParsing, ee.Category)
}

func TestIsMatchesByCategory(t *testing.T) {
	t.Parallel()

	a := Newf("a").Category(CategoryPersistence).Build()
	b := Newf("b").Category(CategoryPersistence).Build()
	c := Newf("c").Category(CategoryNetwork).Build()

	assert.True(t, stderrors.Is(a, b))
	assert.False(t, stderrors.Is(a, c))
}

func TestNewfWithoutCategoryDefaultsToGeneric(t *testing.T) {
	t.Parallel()

	err := Newf("item %q not in cart", "pringles_pringles").Build()
	assert.Equal(t, CategoryGeneric, err.Category)
	assert.Equal(t, `item "pringles_pringles" not in cart`, err.Error())
}
