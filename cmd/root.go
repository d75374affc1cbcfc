// Package cmd implements the command-line surface using cobra.
package cmd

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"firestige.xyz/sahara/internal/config"
	"firestige.xyz/sahara/internal/core"
	"firestige.xyz/sahara/internal/filter"
	"firestige.xyz/sahara/internal/log"
	"firestige.xyz/sahara/internal/pipeline"
	"firestige.xyz/sahara/internal/report"
)

const usageLine = "sahara-replay <capture-file> <image-file>"

// Execute runs the root command against the OS filesystem.
func Execute() error {
	return newRootCmd(afero.NewOsFs()).Execute()
}

type rootOptions struct {
	configFile string
	logLevel   string
	logFormat  string
	reportPath string
	device     string
}

func newRootCmd(fs afero.Fs) *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   usageLine,
		Short: "Reconstruct a Sahara-downloaded image from a USB capture",
		Long: `sahara-replay reads a USBPcap capture (pcap or pcapng) of a Sahara download
session, follows the hello / read / end-of-image exchange and writes every
byte range the device requested into the image file at its offset. Ranges the
device never asked for are zero-filled.

Examples:
  sahara-replay flash.pcapng prog_firehose.elf
  sahara-replay --report session.yml flash.pcap prog_firehose.elf
  sahara-replay -c sahara.yml --log-level debug flash.pcap out.bin
  sahara-replay --device 1:7 busy-hub.pcapng prog_firehose.elf
`,
		Args:          usageArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd, fs, opts, args[0], args[1])
		},
	}

	cmd.Flags().StringVarP(&opts.configFile, "config", "c", "", "config file path")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	cmd.Flags().StringVar(&opts.logFormat, "log-format", "", "log format: text, json")
	cmd.Flags().StringVar(&opts.reportPath, "report", "", "write a YAML session report to this path")
	cmd.Flags().StringVar(&opts.device, "device", "", "only replay transfers of this USB device (bus:address)")

	return cmd
}

func usageArgs(cmd *cobra.Command, args []string) error {
	if err := cobra.ExactArgs(2)(cmd, args); err != nil {
		return fmt.Errorf("%w: usage: %s: %v", core.ErrUsage, usageLine, err)
	}
	return nil
}

// loadConfig loads the optional config file and applies flag overrides.
func loadConfig(cmd *cobra.Command, opts *rootOptions) (*config.GlobalConfig, error) {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Log.Level = opts.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = opts.logFormat
	}
	if flags.Changed("report") {
		cfg.Replay.Report = opts.reportPath
	}
	if flags.Changed("device") {
		cfg.Replay.Device = opts.device
	}

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func runReplay(cmd *cobra.Command, fs afero.Fs, opts *rootOptions, capturePath, imagePath string) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}

	logger, err := log.Init(cfg.Log, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	device, err := filter.ParseDevice(cfg.Replay.Device)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrUsage, err)
	}

	b := pipeline.NewBuilder().
		WithFs(fs).
		WithCapture(capturePath).
		WithImage(imagePath).
		WithReplayConfig(cfg.Replay).
		WithLogger(logger)
	if device != nil {
		logger.Debug("filtering transfers", "device", device.String())
		b.WithFilter(device)
	}
	p := b.Build()

	runErr := p.Run()
	if runErr == nil {
		logger.Info("image reconstructed", "image", imagePath, "summary", p.Metrics())
	}

	if cfg.Replay.Report != "" {
		if err := report.Save(fs, cfg.Replay.Report, p.Report()); err != nil {
			if runErr != nil {
				logger.Warn("failed to save session report", "error", err)
				return runErr
			}
			return err
		}
	}

	return runErr
}
