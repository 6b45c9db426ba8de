package conf

import (
	"time"

	"github.com/spf13/viper"
)

// setDefaults registers the default value of every setting with viper.
// The numbers mirror the tuned behavior of the detection pipeline and
// should rarely need changing.
func setDefaults() {
	viper.SetDefault("debug", false)

	// Input
	viper.SetDefault("input.cameraid", 0)
	viper.SetDefault("input.path", "")
	viper.SetDefault("input.framerate", 1)

	// Frame trigger detection
	viper.SetDefault("detection.centerregionwidth", 0.3)
	viper.SetDefault("detection.centerregionheight", 0.3)
	viper.SetDefault("detection.motionthreshold", 30.0)
	viper.SetDefault("detection.motionratiothreshold", 0.01)
	viper.SetDefault("detection.histogramthreshold", 0.7)

	// Capture gate
	viper.SetDefault("capture.cooldown", 2*time.Second)
	viper.SetDefault("capture.path", "captures")

	// Classifier service
	viper.SetDefault("classifier.endpoint", "")
	viper.SetDefault("classifier.apikey", "")
	viper.SetDefault("classifier.model", "grocery-vision-lite")
	viper.SetDefault("classifier.timeout", 30*time.Second)
	viper.SetDefault("classifier.cooldown", 5*time.Second)
	viper.SetDefault("classifier.minconfidence", 0.88)

	// Reasoning service
	viper.SetDefault("reasoning.endpoint", "")
	viper.SetDefault("reasoning.apikey", "")
	viper.SetDefault("reasoning.model", "grocery-reasoning-lite")
	viper.SetDefault("reasoning.timeout", 30*time.Second)
	viper.SetDefault("reasoning.fuzzymatchwindow", 10*time.Second)

	// Deal search service
	viper.SetDefault("deals.endpoint", "")
	viper.SetDefault("deals.apikey", "")
	viper.SetDefault("deals.timeout", 20*time.Second)
	viper.SetDefault("deals.cachettl", 1*time.Hour)
	viper.SetDefault("deals.maxdeals", 10)

	// Cart store
	viper.SetDefault("cart.updatecooldown", 0*time.Second)
	viper.SetDefault("cart.similaritythreshold", 0.8)

	// Persistence
	viper.SetDefault("results.file", "results.json")
	viper.SetDefault("results.flushdelay", 2*time.Second)

	// Telemetry
	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.listen", "localhost:8090")
}

// bindEnv maps API key environment variables so they override both the
// config file and .env contents.
func bindEnv() {
	_ = viper.BindEnv("classifier.apikey", "CLASSIFIER_API_KEY")
	_ = viper.BindEnv("reasoning.apikey", "REASONING_API_KEY")
	_ = viper.BindEnv("deals.apikey", "DEALS_API_KEY")
}
