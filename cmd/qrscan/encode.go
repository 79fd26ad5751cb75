package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mdp/qrterminal/v3"
	"github.com/spf13/cobra"
	"rsc.io/qr"

	"github.com/Skryldev/qrscan/adapters/encoder"
	"github.com/Skryldev/qrscan/core"
)

var levels = map[string]qr.Level{"L": qr.L, "M": qr.M, "Q": qr.Q, "H": qr.H}

func newEncodeCmd() *cobra.Command {
	var output, level string
	var scale, quality int
	cmd := &cobra.Command{
		Use:   "encode TEXT",
		Short: "Render TEXT as a QR code image or in the terminal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lvl, ok := levels[strings.ToUpper(level)]
			if !ok {
				return fmt.Errorf("unknown level %q (want L, M, Q or H)", level)
			}
			if output == "" {
				qrterminal.GenerateHalfBlock(args[0], lvl, cmd.OutOrStdout())
				return nil
			}

			code, err := qr.Encode(args[0], lvl)
			if err != nil {
				return err
			}
			if scale > 0 {
				code.Scale = scale
			}
			format := formatFor(output)
			enc := encoder.For(format)
			if enc == nil {
				return fmt.Errorf("cannot write %s: use .png or .jpg", filepath.Ext(output))
			}
			data, err := enc.Encode(cmd.Context(), code.Image(), core.EncodeOptions{Quality: quality})
			if err != nil {
				return err
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return err
			}
			loggerFrom(cmd.Context()).Info("encode.wrote", "path", output, "format", string(format), "bytes", len(data))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write an image here instead of printing to the terminal")
	cmd.Flags().StringVar(&level, "level", "M", "error correction level: L, M, Q or H")
	cmd.Flags().IntVar(&scale, "scale", 8, "pixels per module")
	cmd.Flags().IntVar(&quality, "quality", 0, "JPEG quality (0 = encoder default)")
	return cmd
}

func formatFor(path string) core.Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return core.FormatPNG
	case ".jpg", ".jpeg":
		return core.FormatJPEG
	}
	return core.FormatUnknown
}
