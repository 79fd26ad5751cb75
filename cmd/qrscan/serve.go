package main

import (
	"github.com/spf13/cobra"

	"github.com/Skryldev/qrscan/adapters/gst"
	"github.com/Skryldev/qrscan/core"
	"github.com/Skryldev/qrscan/httpapi"
)

func newServeCmd(opts *options) *cobra.Command {
	var flags scannerFlags
	var addr string
	var live bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the decode API and live-scan websocket",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := loggerFrom(cmd.Context())
			cfg := opts.cfg
			if addr != "" {
				cfg.HTTP.Addr = addr
			}
			flags.validate = cfg.Validator.Endpoint != ""
			scanner, cleanup, err := buildScanner(cfg, logger, flags)
			if err != nil {
				return err
			}
			defer cleanup()

			serverOpts := []httpapi.Option{httpapi.WithLogger(logger)}
			if live {
				ctrl := scanner.NewController(gst.NewDevices(cfg.Capture.Device, logger))
				serverOpts = append(serverOpts, httpapi.WithCapture(ctrl, func() core.Sink { return gst.NewSink(logger) }))
			}
			return httpapi.New(scanner, cfg.HTTP, serverOpts...).Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().BoolVar(&live, "live", false, "enable /v1/live on the configured capture device")
	cmd.Flags().BoolVar(&flags.vips, "vips", false, "decode HEIF/AVIF/TIFF through libvips")
	return cmd
}
