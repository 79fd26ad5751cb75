package main

import (
	"context"
	"fmt"
	"time"

	"github.com/mdp/qrterminal/v3"
	"github.com/spf13/cobra"

	"github.com/Skryldev/qrscan/adapters/gst"
	"github.com/Skryldev/qrscan/adapters/validator"
	"github.com/Skryldev/qrscan/capture"
	"github.com/Skryldev/qrscan/core"
	apperrors "github.com/Skryldev/qrscan/errors"
)

func newScanCmd(opts *options) *cobra.Command {
	var device string
	var timeout time.Duration
	var validate, echo bool
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan a QR code from a V4L2 camera",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := loggerFrom(cmd.Context())
			cfg := opts.cfg
			if device != "" {
				cfg.Capture.Device = device
			}
			scanner, cleanup, err := buildScanner(cfg, logger, scannerFlags{})
			if err != nil {
				return err
			}
			defer cleanup()

			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			ctrl := scanner.NewController(gst.NewDevices(cfg.Capture.Device, logger))
			defer ctrl.Close()

			found := make(chan core.Payload, 1)
			session, err := ctrl.Open(gst.NewSink(logger), func(p core.Payload) { found <- p })
			if err != nil {
				return err
			}
			session.OnStateChange(func(ch capture.StateChange) {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s -> %s\n", ch.From, ch.To)
			})
			if err := session.Start(ctx); err != nil {
				return fmt.Errorf("%s: %w", apperrors.KindOf(err).UserMessage(), err)
			}

			var payload core.Payload
			select {
			case payload = <-found:
			case <-ctx.Done():
				return ctx.Err()
			}
			session.Stop()

			fmt.Fprintln(cmd.OutOrStdout(), payload.Text)
			if echo {
				qrterminal.GenerateHalfBlock(payload.Text, qrterminal.L, cmd.OutOrStdout())
			}
			if !validate {
				return nil
			}
			v, err := validator.New(cfg.Validator, validator.WithLogger(logger))
			if err != nil {
				return err
			}
			res, err := v.Validate(cmd.Context(), payload)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "valid=%t reference=%s\n", res.Valid, res.Reference)
			return nil
		},
	}
	cmd.Flags().StringVar(&device, "device", "", "V4L2 device node (default from config)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "give up after this long (0 waits until interrupted)")
	cmd.Flags().BoolVar(&validate, "validate", false, "hand the payload to the configured validator")
	cmd.Flags().BoolVar(&echo, "echo", false, "re-render the payload in the terminal")
	return cmd
}
