package realtime

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cartwatch/cartwatch-go/internal/conf"
	"github.com/cartwatch/cartwatch-go/internal/processor"
)

// Command creates the command for watching a live camera feed.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "realtime",
		Short: "Watch a camera feed in realtime mode",
		Long:  "Start watching the camera feed for items held in the center of the frame.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return processor.RunRealtime(cmd.Context(), settings)
		},
	}

	if err := setupFlags(cmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

// setupFlags configures flags specific to the realtime command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().IntVar(&settings.Input.CameraID, "camera", viper.GetInt("input.cameraid"), "Camera device index to watch")
	cmd.Flags().IntVar(&settings.Input.FrameRate, "framerate", viper.GetInt("input.framerate"), "Process every Nth frame")
	cmd.Flags().BoolVar(&settings.Telemetry.Enabled, "telemetry", viper.GetBool("telemetry.enabled"), "Enable Prometheus telemetry endpoint")
	cmd.Flags().StringVar(&settings.Telemetry.Listen, "listen", viper.GetString("telemetry.listen"), "Listen address and port of telemetry endpoint")

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}
