package processor

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gocv.io/x/gocv"

	"github.com/cartwatch/cartwatch-go/internal/classify"
	"github.com/cartwatch/cartwatch-go/internal/conf"
	"github.com/cartwatch/cartwatch-go/internal/deals"
	"github.com/cartwatch/cartwatch-go/internal/errors"
	"github.com/cartwatch/cartwatch-go/internal/observability"
	"github.com/cartwatch/cartwatch-go/internal/reasoning"
	"github.com/cartwatch/cartwatch-go/internal/results"
	"github.com/cartwatch/cartwatch-go/internal/vision"
)

// maxConsecutiveReadFailures bounds camera stalls before giving up.
const maxConsecutiveReadFailures = 30

// RunRealtime watches the configured video source until the context is
// cancelled or the source ends.
func RunRealtime(ctx context.Context, settings *conf.Settings) error {
	classifier, err := classify.NewClient(settings.Classifier)
	if err != nil {
		return err
	}
	defer classifier.Close()
	reasoner, err := reasoning.NewClient(settings.Reasoning)
	if err != nil {
		return err
	}
	defer reasoner.Close()
	dealClient, err := deals.NewClient(settings.Deals)
	if err != nil {
		return err
	}
	defer dealClient.Close()
	writer, err := results.NewWriter(settings.Results)
	if err != nil {
		return err
	}
	metrics, err := observability.NewMetrics(prometheus.NewRegistry())
	if err != nil {
		return err
	}

	source, err := vision.OpenSource(settings.Input)
	if err != nil {
		return err
	}
	defer func() { _ = source.Close() }()

	detector := vision.NewTriggerDetector(settings.Detection)
	defer detector.Close()

	gate := vision.NewCaptureGate(settings.Capture)

	proc := New(settings, classifier, reasoner, dealClient, writer, metrics)
	proc.Start(ctx)
	defer proc.Shutdown()

	if settings.Telemetry.Enabled {
		startTelemetry(ctx, settings.Telemetry, metrics)
	}

	return proc.runLoop(ctx, source, detector, gate)
}

// RunFile replays a recorded video through the same pipeline.
func RunFile(ctx context.Context, settings *conf.Settings, videoPath string) error {
	settings.Input.Path = videoPath
	return RunRealtime(ctx, settings)
}

// runLoop is the frame loop shared by live and file sessions. Frames
// are sampled every Nth frame per the configured frame rate; each
// sampled frame advances the trigger detector, and triggers that pass
// the capture gate go to classification.
func (p *Processor) runLoop(ctx context.Context, source *vision.Source, detector *vision.TriggerDetector, gate *vision.CaptureGate) error {
	frame := gocv.NewMat()
	defer func() { _ = frame.Close() }()

	isFile := p.settings.Input.Path != ""
	sampleEvery := p.settings.Input.FrameRate
	if sampleEvery < 1 {
		sampleEvery = 1
	}

	frameNumber := 0
	readFailures := 0

	for {
		select {
		case <-ctx.Done():
			logger.Info("stopping frame loop", "frames_processed", frameNumber)
			return nil
		default:
		}

		if !source.Read(&frame) {
			if isFile {
				logger.Info("end of video", "source", source.Description(), "frames_processed", frameNumber)
				return nil
			}
			readFailures++
			if readFailures >= maxConsecutiveReadFailures {
				return errFrameReadStalled(source.Description(), readFailures)
			}
			time.Sleep(100 * time.Millisecond)
			continue
		}
		readFailures = 0

		if frame.Empty() {
			continue
		}

		frameNumber++
		p.FrameProcessed()
		if frameNumber%sampleEvery != 0 {
			continue
		}

		trigger, fired := detector.Process(frame)
		if !fired {
			continue
		}
		p.metrics.Triggers.WithLabelValues(trigger.Source).Inc()

		path, saved, err := gate.TryCapture(frame, trigger)
		if err != nil {
			logger.Error("capture failed", "error", err)
			continue
		}
		if !saved {
			continue
		}
		p.metrics.Captures.Inc()
		p.HandleCapture(ctx, path, frameNumber, trigger.Source)
	}
}

// startTelemetry serves the metrics registry over HTTP until the
// context ends.
func startTelemetry(ctx context.Context, settings conf.TelemetrySettings, metrics *observability.Metrics) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))

	server := &http.Server{Addr: settings.Listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("telemetry endpoint listening", "addr", settings.Listen)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("telemetry endpoint failed", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
}

func errFrameReadStalled(source string, failures int) error {
	return errors.Newf("video source stalled after %d consecutive read failures", failures).
		Component("processor").
		Category(errors.CategoryVideoSource).
		Context("source", source).
		Build()
}
