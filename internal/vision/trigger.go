package vision

import (
	"log/slog"

	"gocv.io/x/gocv"

	"github.com/cartwatch/cartwatch-go/internal/conf"
	"github.com/cartwatch/cartwatch-go/internal/logging"
)

var logger *slog.Logger

func init() {
	logger = logging.ForService("vision")
}

// Trigger describes why a frame was selected for classification.
type Trigger struct {
	Source     string // "scene_change" or "motion"
	Confidence float64
}

const (
	SourceSceneChange = "scene_change"
	SourceMotion      = "motion"

	sceneChangeConfidence = 0.9
	motionConfidence      = 0.8

	histBins = 32
)

// TriggerDetector watches the center region of the feed and reports
// when something worth classifying happens there. Scene changes are
// detected by histogram correlation against the previous frame, motion
// by background subtraction combined with frame differencing. Internal
// state advances on every frame so comparisons are always against the
// immediately preceding one.
type TriggerDetector struct {
	settings conf.DetectionSettings

	mog2        gocv.BackgroundSubtractorMOG2
	prevGray    gocv.Mat
	prevHist    []float32
	initialized bool
}

// NewTriggerDetector creates a detector from settings.
func NewTriggerDetector(settings conf.DetectionSettings) *TriggerDetector {
	return &TriggerDetector{
		settings: settings,
		mog2:     gocv.NewBackgroundSubtractorMOG2(),
		prevGray: gocv.NewMat(),
	}
}

// Close releases the detector's native resources.
func (d *TriggerDetector) Close() {
	_ = d.mog2.Close()
	_ = d.prevGray.Close()
}

// Process inspects one frame and reports whether it should trigger a
// capture. A scene change outranks plain motion when both fire.
func (d *TriggerDetector) Process(frame gocv.Mat) (Trigger, bool) {
	rect := CenterRegion(frame.Cols(), frame.Rows(), d.settings.CenterRegionWidth, d.settings.CenterRegionHeight)
	region := frame.Region(rect)
	defer func() { _ = region.Close() }()

	gray := gocv.NewMat()
	defer func() { _ = gray.Close() }()
	if err := gocv.CvtColor(region, &gray, gocv.ColorBGRToGray); err != nil {
		logger.Error("grayscale conversion failed", "error", err)
		return Trigger{}, false
	}

	hist := grayHistogram(gray)

	if !d.initialized {
		d.advance(gray, hist)
		d.initialized = true
		// Warm up the background model without triggering.
		mask := gocv.NewMat()
		d.mog2.Apply(gray, &mask)
		_ = mask.Close()
		return Trigger{}, false
	}

	sceneChanged := d.detectSceneChange(hist)
	moving := d.detectMotion(gray)
	d.advance(gray, hist)

	switch {
	case sceneChanged:
		return Trigger{Source: SourceSceneChange, Confidence: sceneChangeConfidence}, true
	case moving:
		return Trigger{Source: SourceMotion, Confidence: motionConfidence}, true
	default:
		return Trigger{}, false
	}
}

// detectSceneChange compares the histogram of the current center
// region with the previous one. Low correlation means the scene
// content changed abruptly.
func (d *TriggerDetector) detectSceneChange(hist []float32) bool {
	corr := histCorrelation(d.prevHist, hist)
	if corr < d.settings.HistogramThreshold {
		logger.Debug("scene change", "correlation", corr, "threshold", d.settings.HistogramThreshold)
		return true
	}
	return false
}

// detectMotion combines background subtraction with frame differencing
// over the center region. Either signal exceeding the ratio threshold
// counts as motion.
func (d *TriggerDetector) detectMotion(gray gocv.Mat) bool {
	total := gray.Cols() * gray.Rows()
	if total == 0 {
		return false
	}

	fgMask := gocv.NewMat()
	defer func() { _ = fgMask.Close() }()
	d.mog2.Apply(gray, &fgMask)
	gocv.Threshold(fgMask, &fgMask, 200, 255, gocv.ThresholdBinary)
	fgRatio := float64(gocv.CountNonZero(fgMask)) / float64(total)

	diff := gocv.NewMat()
	defer func() { _ = diff.Close() }()
	if err := gocv.AbsDiff(d.prevGray, gray, &diff); err != nil {
		logger.Error("frame differencing failed", "error", err)
		return fgRatio > d.settings.MotionRatioThreshold
	}
	gocv.Threshold(diff, &diff, float32(d.settings.MotionThreshold), 255, gocv.ThresholdBinary)
	diffRatio := float64(gocv.CountNonZero(diff)) / float64(total)

	if fgRatio > d.settings.MotionRatioThreshold || diffRatio > d.settings.MotionRatioThreshold {
		logger.Debug("motion", "fg_ratio", fgRatio, "diff_ratio", diffRatio,
			"threshold", d.settings.MotionRatioThreshold)
		return true
	}
	return false
}

func (d *TriggerDetector) advance(gray gocv.Mat, hist []float32) {
	_ = d.prevGray.Close()
	d.prevGray = gray.Clone()
	d.prevHist = hist
}

// grayHistogram computes a normalized intensity histogram of a
// grayscale image.
func grayHistogram(gray gocv.Mat) []float32 {
	histMat := gocv.NewMat()
	defer func() { _ = histMat.Close() }()

	mask := gocv.NewMat()
	defer func() { _ = mask.Close() }()

	gocv.CalcHist([]gocv.Mat{gray}, []int{0}, mask, &histMat, []int{histBins}, []float64{0, 256}, false)

	bins, err := histMat.DataPtrFloat32()
	if err != nil {
		logger.Error("reading histogram data failed", "error", err)
		return make([]float32, histBins)
	}
	out := make([]float32, len(bins))
	copy(out, bins)
	return out
}
