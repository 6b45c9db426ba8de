package classify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClassifier struct {
	calls   int
	results []Result
	err     error
}

func (f *fakeClassifier) Classify(ctx context.Context, imagePath string) ([]Result, error) {
	f.calls++
	return f.results, f.err
}

var cokeResult = []Result{{ObjectName: "Coca-Cola Can", Brand: "Coca-Cola", Category: "beverage", Confidence: 0.95}}

func TestDispatchCallsClassifierOutsideCooldown(t *testing.T) {
	t.Parallel()

	fake := &fakeClassifier{results: cokeResult}
	d := NewDispatcher(fake, 5*time.Second)
	now := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)

	results, record := d.Dispatch(context.Background(), "captures/a.jpg", 1, "motion", now)
	require.Equal(t, 1, fake.calls)
	assert.Equal(t, cokeResult, results)
	assert.True(t, record.Success)
	assert.False(t, record.Skipped)
	assert.NotEmpty(t, record.ID)
	assert.Equal(t, "motion", record.DetectionSource)

	// Past the cooldown the classifier is called again.
	_, record = d.Dispatch(context.Background(), "captures/b.jpg", 50, "motion", now.Add(6*time.Second))
	assert.Equal(t, 2, fake.calls)
	assert.False(t, record.Skipped)
}

func TestDispatchReusesResultWithinCooldown(t *testing.T) {
	t.Parallel()

	fake := &fakeClassifier{results: cokeResult}
	d := NewDispatcher(fake, 5*time.Second)
	now := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)

	d.Dispatch(context.Background(), "captures/a.jpg", 1, "motion", now)
	results, record := d.Dispatch(context.Background(), "captures/b.jpg", 10, "scene_change", now.Add(2*time.Second))

	// API throttled, but the result still flows downstream.
	assert.Equal(t, 1, fake.calls)
	assert.Equal(t, cokeResult, results)
	assert.True(t, record.Skipped)
	assert.Equal(t, "api_cooldown", record.Reason)
	assert.True(t, record.Success)
	assert.Equal(t, "captures/b.jpg", record.ImagePath)
}

func TestDispatchRecordsErrorsAsErrorPayload(t *testing.T) {
	t.Parallel()

	fake := &fakeClassifier{err: errors.New("service unavailable")}
	d := NewDispatcher(fake, 5*time.Second)
	now := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)

	results, record := d.Dispatch(context.Background(), "captures/a.jpg", 1, "motion", now)
	require.Len(t, results, 1)
	assert.Equal(t, "Error", results[0].ObjectName)
	assert.Zero(t, results[0].Confidence)
	assert.False(t, record.Success)
	assert.Contains(t, record.Error, "service unavailable")
}

func TestEveryDispatchProducesExactlyOneRecord(t *testing.T) {
	t.Parallel()

	fake := &fakeClassifier{results: cokeResult}
	d := NewDispatcher(fake, 5*time.Second)
	now := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		d.Dispatch(context.Background(), "captures/a.jpg", i, "motion", now.Add(time.Duration(i)*time.Second))
	}

	records := d.Records()
	require.Len(t, records, 4)
	assert.Equal(t, 1, fake.calls)

	summary := d.Summarize()
	assert.Equal(t, 4, summary.TotalClassifications)
	assert.Equal(t, 4, summary.SuccessfulClassifications)
	assert.Equal(t, 3, summary.SkippedClassifications)
	assert.Equal(t, 1, summary.ActualAPICalls)
	assert.InDelta(t, 75.0, summary.DeduplicationRate, 1e-9)
}

func TestParsePayload(t *testing.T) {
	t.Parallel()

	// Single object.
	results := parsePayload(`{"object_name": "Pringles Original", "brand": "Pringles", "category": "snack", "confidence": 0.93}`)
	require.Len(t, results, 1)
	assert.Equal(t, "Pringles Original", results[0].ObjectName)

	// Fenced array.
	results = parsePayload("```json\n[{\"object_name\": \"a\", \"confidence\": 0.9}, {\"object_name\": \"b\", \"confidence\": 0.91}]\n```")
	assert.Len(t, results, 2)

	// Garbage degrades to a low-confidence Unknown record.
	results = parsePayload("I have no idea what that is")
	require.Len(t, results, 1)
	assert.Equal(t, "Unknown", results[0].ObjectName)
	assert.InDelta(t, 0.5, results[0].Confidence, 1e-9)
}
