// Package conf defines the application settings and functions to load
// and persist them. Settings are sourced from an optional YAML config
// file, environment variables and command line flags, in that order of
// increasing precedence.
package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/cartwatch/cartwatch-go/internal/errors"
)

// InputSettings selects the video source to watch.
type InputSettings struct {
	CameraID  int    // camera device index, used when Path is empty
	Path      string // video file path, overrides the camera when set
	FrameRate int    // process every Nth frame, 1 = every frame
}

// DetectionSettings holds frame trigger detector tunables.
type DetectionSettings struct {
	CenterRegionWidth    float64 // center region width as fraction of frame width
	CenterRegionHeight   float64 // center region height as fraction of frame height
	MotionThreshold      float64 // pixel intensity delta for frame differencing
	MotionRatioThreshold float64 // minimum fraction of center region pixels in motion
	HistogramThreshold   float64 // correlation below this flags a scene change
}

// CaptureSettings holds capture gate tunables.
type CaptureSettings struct {
	Cooldown time.Duration // minimum interval between saved frames
	Path     string        // directory for captured JPEG images
}

// ClassifierSettings configures the external classification service.
type ClassifierSettings struct {
	Endpoint      string
	APIKey        string
	Model         string
	Timeout       time.Duration
	Cooldown      time.Duration // minimum interval between real API calls
	MinConfidence float64       // classifications below this never reach the cart
}

// ReasoningSettings configures the external reasoning service used for
// semantic duplicate checks and deal analysis.
type ReasoningSettings struct {
	Endpoint         string
	APIKey           string
	Model            string
	Timeout          time.Duration
	FuzzyMatchWindow time.Duration // recency window for fuzzy duplicate matches
}

// DealsSettings configures the deal-search service.
type DealsSettings struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
	CacheTTL time.Duration
	MaxDeals int // limit on deals passed to analysis
}

// CartSettings holds cart store tunables.
type CartSettings struct {
	UpdateCooldown      time.Duration // per-key increment throttle, 0 disables
	SimilarityThreshold float64       // name/brand similarity above this is a duplicate
}

// ResultsSettings holds persistence tunables.
type ResultsSettings struct {
	File       string        // path of the persisted results document
	FlushDelay time.Duration // debounce delay after the last cart mutation
}

// Settings aggregates the full application configuration.
type Settings struct {
	Debug bool

	Input      InputSettings
	Detection  DetectionSettings
	Capture    CaptureSettings
	Classifier ClassifierSettings
	Reasoning  ReasoningSettings
	Deals      DealsSettings
	Cart       CartSettings
	Results    ResultsSettings
	Telemetry  TelemetrySettings
}

// TelemetrySettings configures the Prometheus endpoint.
type TelemetrySettings struct {
	Enabled bool
	Listen  string // host:port
}

// Load reads the configuration file and environment and returns the
// effective settings. A missing config file is not an error: defaults
// are written to the first config path for the next run.
func Load() (*Settings, error) {
	// .env is optional, it carries API keys during development
	_ = godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := configPaths()
	if err != nil {
		return nil, err
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	setDefaults()
	bindEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.New(err).
				Component("conf").
				Category(errors.CategoryConfiguration).
				Build()
		}
		if err := writeDefaultConfig(configPaths[0]); err != nil {
			return nil, err
		}
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, errors.Newf("unmarshaling settings: %w", err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}

	return settings, nil
}

// Validate checks settings for values the pipeline cannot run with.
func (s *Settings) Validate() error {
	switch {
	case s.Detection.CenterRegionWidth <= 0 || s.Detection.CenterRegionWidth > 1:
		return validationError("detection.centerregionwidth must be in (0, 1]")
	case s.Detection.CenterRegionHeight <= 0 || s.Detection.CenterRegionHeight > 1:
		return validationError("detection.centerregionheight must be in (0, 1]")
	case s.Detection.MotionRatioThreshold < 0 || s.Detection.MotionRatioThreshold > 1:
		return validationError("detection.motionratiothreshold must be in [0, 1]")
	case s.Classifier.MinConfidence < 0 || s.Classifier.MinConfidence > 1:
		return validationError("classifier.minconfidence must be in [0, 1]")
	case s.Cart.SimilarityThreshold <= 0 || s.Cart.SimilarityThreshold >= 1:
		return validationError("cart.similaritythreshold must be in (0, 1)")
	case s.Results.FlushDelay < 0:
		return validationError("results.flushdelay must not be negative")
	case s.Input.FrameRate < 1:
		return validationError("input.framerate must be at least 1")
	case s.Telemetry.Enabled && s.Telemetry.Listen == "":
		return validationError("telemetry.listen is required when telemetry is enabled")
	}
	return nil
}

func validationError(msg string) error {
	return errors.Newf("%s", msg).
		Component("conf").
		Category(errors.CategoryValidation).
		Build()
}

// configPaths returns the directories searched for config.yaml:
// ./, then $XDG_CONFIG_HOME/cartwatch (or ~/.config/cartwatch).
func configPaths() ([]string, error) {
	paths := []string{"."}
	configDir, err := os.UserConfigDir()
	if err == nil {
		paths = append(paths, filepath.Join(configDir, "cartwatch"))
	}
	return paths, nil
}

// writeDefaultConfig persists the default settings so the user has a
// file to edit. Failure to write is not fatal, defaults still apply.
func writeDefaultConfig(dir string) error {
	settings := &Settings{}
	setDefaults()
	if err := viper.Unmarshal(settings); err != nil {
		return errors.Newf("unmarshaling default settings: %w", err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	data, err := yaml.Marshal(settings)
	if err != nil {
		return errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not write default config to %s: %v\n", path, err)
	}
	return nil
}
