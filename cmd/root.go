// Package cmd assembles the command line interface.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cartwatch/cartwatch-go/cmd/file"
	"github.com/cartwatch/cartwatch-go/cmd/realtime"
	"github.com/cartwatch/cartwatch-go/internal/conf"
)

// RootCommand creates and returns the root command.
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cartwatch",
		Short: "Cartwatch CLI",
		Long:  "Watch a grocery video feed and keep a deduplicated shopping cart with live deal information.",
	}

	if err := setupFlags(rootCmd, settings); err != nil {
		cobra.CheckErr(err)
	}

	rootCmd.AddCommand(
		realtime.Command(settings),
		file.Command(settings),
	)

	return rootCmd
}

// setupFlags defines flags shared by every subcommand.
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&settings.Results.File, "results", viper.GetString("results.file"), "Path of the persisted results document")
	rootCmd.PersistentFlags().StringVar(&settings.Capture.Path, "capturepath", viper.GetString("capture.path"), "Directory for captured frames")
	rootCmd.PersistentFlags().Float64Var(&settings.Classifier.MinConfidence, "minconfidence", viper.GetFloat64("classifier.minconfidence"), "Confidence floor for cart updates, value between 0.0 and 1.0")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}
