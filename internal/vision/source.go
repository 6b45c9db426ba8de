package vision

import (
	"gocv.io/x/gocv"

	"github.com/cartwatch/cartwatch-go/internal/conf"
	"github.com/cartwatch/cartwatch-go/internal/errors"
)

// Source wraps a video capture device or file.
type Source struct {
	capture *gocv.VideoCapture
	desc    string
}

// OpenSource opens the configured input. A non-empty Path takes
// precedence over the camera ID so recorded footage can be replayed
// through the same pipeline.
func OpenSource(settings conf.InputSettings) (*Source, error) {
	var (
		capture *gocv.VideoCapture
		desc    string
		err     error
	)
	if settings.Path != "" {
		capture, err = gocv.OpenVideoCapture(settings.Path)
		desc = settings.Path
	} else {
		capture, err = gocv.OpenVideoCapture(settings.CameraID)
		desc = "camera"
	}
	if err != nil {
		return nil, errors.Newf("opening video source: %w", err).
			Component("vision").
			Category(errors.CategoryVideoSource).
			Context("source", desc).
			Build()
	}
	if !capture.IsOpened() {
		_ = capture.Close()
		return nil, errors.Newf("video source did not open").
			Component("vision").
			Category(errors.CategoryVideoSource).
			Context("source", desc).
			Build()
	}

	logger.Info("video source opened", "source", desc, "fps", capture.Get(gocv.VideoCaptureFPS))
	return &Source{capture: capture, desc: desc}, nil
}

// Read fetches the next frame into the provided Mat. It returns false
// when the stream ends.
func (s *Source) Read(frame *gocv.Mat) bool {
	return s.capture.Read(frame)
}

// FPS reports the source frame rate, or 0 when unknown.
func (s *Source) FPS() float64 {
	return s.capture.Get(gocv.VideoCaptureFPS)
}

// Description identifies the source in logs.
func (s *Source) Description() string {
	return s.desc
}

// Close releases the underlying capture.
func (s *Source) Close() error {
	return s.capture.Close()
}
