package main

import (
	"fmt"

	"github.com/mdp/qrterminal/v3"
	"github.com/spf13/cobra"

	"github.com/Skryldev/qrscan"
	apperrors "github.com/Skryldev/qrscan/errors"
)

func newDecodeCmd(opts *options) *cobra.Command {
	var flags scannerFlags
	var echo bool
	cmd := &cobra.Command{
		Use:   "decode FILE...",
		Short: "Decode QR codes from image files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := loggerFrom(cmd.Context())
			scanner, cleanup, err := buildScanner(opts.cfg, logger, flags)
			if err != nil {
				return err
			}
			defer cleanup()

			failed := 0
			for _, path := range args {
				src, closer, err := qrscan.FromFile(path)
				if err != nil {
					return err
				}
				out, err := scanner.Submit(cmd.Context(), src)
				_ = closer.Close()
				if err != nil && (out == nil || !out.Attempt.Found()) {
					failed++
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s (%v)\n", path, apperrors.KindOf(err).UserMessage(), err)
					continue
				}
				if !out.Attempt.Found() {
					failed++
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", path, apperrors.KindNoCodeFound.UserMessage())
					continue
				}

				text := out.Attempt.Payload.Text
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", path, out.Attempt.Strategy, text)
				if out.Validation != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\tvalid=%t\treference=%s\n", path, out.Validation.Valid, out.Validation.Reference)
				}
				if err != nil {
					failed++
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: validation failed: %v\n", path, err)
				}
				if echo {
					qrterminal.GenerateHalfBlock(text, qrterminal.L, cmd.OutOrStdout())
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d images failed", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&flags.validate, "validate", false, "hand decoded payloads to the configured validator")
	cmd.Flags().BoolVar(&flags.vips, "vips", false, "decode HEIF/AVIF/TIFF through libvips")
	cmd.Flags().BoolVar(&echo, "echo", false, "re-render each decoded payload in the terminal")
	return cmd
}
