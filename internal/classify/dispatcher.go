package classify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Classifier is the interface the dispatcher drives. Satisfied by
// *Client; tests substitute fakes.
type Classifier interface {
	Classify(ctx context.Context, imagePath string) ([]Result, error)
}

// Record is one audit entry. Every dispatch produces exactly one,
// whether the API was actually called or the cached result was reused.
type Record struct {
	ID              string    `json:"id"`
	Timestamp       time.Time `json:"timestamp"`
	FrameNumber     int       `json:"frame_number"`
	DetectionSource string    `json:"detection_source"`
	ImagePath       string    `json:"image_path"`
	Success         bool      `json:"success"`
	Results         []Result  `json:"result"`
	Error           string    `json:"error,omitempty"`
	Skipped         bool      `json:"skipped"`
	Reason          string    `json:"reason,omitempty"`
}

// Summary aggregates the audit log for the persisted results document.
type Summary struct {
	TotalClassifications      int     `json:"total_classifications"`
	SuccessfulClassifications int     `json:"successful_classifications"`
	FailedClassifications     int     `json:"failed_classifications"`
	SkippedClassifications    int     `json:"skipped_classifications"`
	ActualAPICalls            int     `json:"actual_api_calls"`
	DeduplicationRate         float64 `json:"deduplication_rate"`
}

// Dispatcher throttles classifier API usage. Inside the cooldown window
// the previous result is reused verbatim so cart updates still happen
// once per frame event; only the underlying API call is suppressed.
type Dispatcher struct {
	classifier Classifier
	cooldown   time.Duration

	mu          sync.Mutex
	lastCall    time.Time
	lastResults []Result
	records     []Record
}

// NewDispatcher creates a dispatcher around the given classifier.
func NewDispatcher(classifier Classifier, cooldown time.Duration) *Dispatcher {
	return &Dispatcher{
		classifier: classifier,
		cooldown:   cooldown,
	}
}

// Dispatch classifies the captured image, or reuses the last result if
// the API cooldown has not elapsed. The returned results may be nil
// when no previous result exists yet or the call failed.
func (d *Dispatcher) Dispatch(ctx context.Context, imagePath string, frameNumber int, source string, now time.Time) ([]Result, Record) {
	d.mu.Lock()
	withinCooldown := !d.lastCall.IsZero() && now.Sub(d.lastCall) < d.cooldown
	cached := d.lastResults
	d.mu.Unlock()

	record := Record{
		ID:              uuid.New().String(),
		Timestamp:       now,
		FrameNumber:     frameNumber,
		DetectionSource: source,
		ImagePath:       imagePath,
	}

	if withinCooldown {
		record.Skipped = true
		record.Reason = "api_cooldown"
		record.Success = cached != nil
		record.Results = cached
		d.append(record)
		logger.Debug("api cooldown active, reusing last classification",
			"frame", frameNumber, "objects", len(cached))
		return cached, record
	}

	results, err := d.classifier.Classify(ctx, imagePath)
	if err != nil {
		// Substitute an error record so downstream bookkeeping sees a
		// payload; the pipeline's confidence gate drops it.
		results = []Result{{
			ObjectName: "Error",
			Brand:      "Unknown",
			Category:   "error",
			Confidence: 0,
		}}
		record.Error = err.Error()
	}
	record.Success = err == nil
	record.Results = results

	d.mu.Lock()
	d.lastCall = now
	d.lastResults = results
	d.mu.Unlock()

	d.append(record)
	return results, record
}

func (d *Dispatcher) append(record Record) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.records = append(d.records, record)
}

// Records returns a copy of the audit log.
func (d *Dispatcher) Records() []Record {
	d.mu.Lock()
	defer d.mu.Unlock()
	records := make([]Record, len(d.records))
	copy(records, d.records)
	return records
}

// Summarize builds aggregate statistics over the audit log.
func (d *Dispatcher) Summarize() Summary {
	d.mu.Lock()
	defer d.mu.Unlock()

	summary := Summary{TotalClassifications: len(d.records)}
	for i := range d.records {
		r := &d.records[i]
		if r.Success {
			summary.SuccessfulClassifications++
		} else {
			summary.FailedClassifications++
		}
		if r.Skipped {
			summary.SkippedClassifications++
		} else {
			summary.ActualAPICalls++
		}
	}
	if summary.TotalClassifications > 0 {
		summary.DeduplicationRate = float64(summary.SkippedClassifications) /
			float64(summary.TotalClassifications) * 100
	}
	return summary
}
