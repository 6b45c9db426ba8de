package file

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cartwatch/cartwatch-go/internal/conf"
	"github.com/cartwatch/cartwatch-go/internal/processor"
)

// Command creates the command for processing a recorded video file.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "file [input.mp4]",
		Short: "Process a video file",
		Long:  "Run a recorded video through the same pipeline as the live camera feed.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return processor.RunFile(cmd.Context(), settings, args[0])
		},
	}

	if err := setupFlags(cmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

// setupFlags configures flags specific to the file command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().IntVar(&settings.Input.FrameRate, "framerate", viper.GetInt("input.framerate"), "Process every Nth frame")

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}
