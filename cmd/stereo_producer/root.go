package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/relabs-tech/uvc_stereo/internal/app"
	"github.com/relabs-tech/uvc_stereo/internal/calibration"
	"github.com/relabs-tech/uvc_stereo/internal/config"
	"github.com/relabs-tech/uvc_stereo/internal/logging"
)

const defaultConfigPath = "uvc_config.txt"

func newRootCommand() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "stereo_producer",
		Short:         "Stream a UVC stereo camera and its IMU to MQTT",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Configuration file path")

	load := func() (*config.Config, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		logging.Setup(cfg.LogLevel)
		return cfg, nil
	}

	runCmd := newRunCommand(load)
	rootCmd.RunE = runCmd.RunE
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(newCalibCommand(load))
	rootCmd.AddCommand(newRecordCommand(load))
	return rootCmd
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func newRunCommand(load func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Initialize the device and stream until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			return app.RunStereoProducer(ctx, cfg)
		},
	}
}

func newCalibCommand(load func() (*config.Config, error)) *cobra.Command {
	calibCmd := &cobra.Command{
		Use:   "calib",
		Short: "Calibration utilities",
	}

	var file string
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the calibration the producer would load",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			path := file
			if path == "" {
				path = cfg.CalibrationFile
			}
			if path == "" {
				return fmt.Errorf("no calibration file: set CALIBRATION_FILE or pass --file")
			}
			store, err := calibration.LoadFile(path, cfg.Pairs())
			if err != nil {
				return err
			}
			return app.WriteCalibrationTables(cmd.OutOrStdout(), store, cfg.Topology())
		},
	}
	showCmd.Flags().StringVar(&file, "file", "", "Calibration file (defaults to CALIBRATION_FILE)")

	calibCmd.AddCommand(showCmd)
	return calibCmd
}

func newRecordCommand(load func() (*config.Config, error)) *cobra.Command {
	var out string
	var frames uint64

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record raw frames from the capture source for later replay",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			n, err := app.RunRecord(ctx, cfg, out, frames)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "recorded %d frames to %s\n", n, out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "frames.raw", "Output recording path")
	cmd.Flags().Uint64VarP(&frames, "frames", "n", 100, "Frames to record (0 = until interrupted)")
	return cmd
}
