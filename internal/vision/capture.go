package vision

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gocv.io/x/gocv"

	"github.com/cartwatch/cartwatch-go/internal/conf"
	"github.com/cartwatch/cartwatch-go/internal/errors"
)

// CaptureGate rate-limits frame captures. Triggers arriving within the
// cooldown of the previous capture are dropped so a single reach into
// frame does not produce a burst of near-identical images.
type CaptureGate struct {
	dir      string
	cooldown time.Duration

	lastCapture time.Time
	hasCaptured bool

	now  func() time.Time
	save func(path string, img gocv.Mat) bool
}

// GateOption customizes a CaptureGate.
type GateOption func(*CaptureGate)

// WithClock overrides the gate's time source, for tests.
func WithClock(now func() time.Time) GateOption {
	return func(g *CaptureGate) { g.now = now }
}

// WithSaver overrides the image writer, for tests.
func WithSaver(save func(path string, img gocv.Mat) bool) GateOption {
	return func(g *CaptureGate) { g.save = save }
}

// NewCaptureGate creates a gate writing JPEGs under the configured
// capture directory.
func NewCaptureGate(settings conf.CaptureSettings, opts ...GateOption) *CaptureGate {
	g := &CaptureGate{
		dir:      settings.Path,
		cooldown: settings.Cooldown,
		now:      time.Now,
		save:     gocv.IMWrite,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// TryCapture saves the frame if the cooldown has elapsed. It returns
// the saved path and whether a capture happened.
func (g *CaptureGate) TryCapture(frame gocv.Mat, trigger Trigger) (string, bool, error) {
	now := g.now()
	if g.hasCaptured && now.Sub(g.lastCapture) < g.cooldown {
		return "", false, nil
	}

	if err := os.MkdirAll(g.dir, 0o755); err != nil {
		return "", false, errors.Newf("creating capture directory: %w", err).
			Component("vision").
			Category(errors.CategoryImageCapture).
			Context("dir", g.dir).
			Build()
	}

	name := fmt.Sprintf("capture_%s_%s_%.2f.jpg",
		now.Format("20060102_150405.000"), trigger.Source, trigger.Confidence)
	path := filepath.Join(g.dir, name)

	if !g.save(path, frame) {
		return "", false, errors.Newf("failed to write capture image").
			Component("vision").
			Category(errors.CategoryImageCapture).
			Context("path", path).
			Build()
	}

	g.lastCapture = now
	g.hasCaptured = true
	logger.Info("frame captured", "path", path, "source", trigger.Source, "confidence", trigger.Confidence)
	return path, true, nil
}

// Reset clears the cooldown state.
func (g *CaptureGate) Reset() {
	g.hasCaptured = false
	g.lastCapture = time.Time{}
}
