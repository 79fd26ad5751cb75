package main

import (
	"context"
	"log"
	"os"

	"github.com/spf13/cobra"

	"pkt.systems/psi"
	"pkt.systems/pslog"

	"github.com/Skryldev/qrscan/config"
	"github.com/Skryldev/qrscan/core"
)

func main() {
	psi.Run(submain)
}

func submain(ctx context.Context) int {
	logger := newLogger()
	ctx = pslog.ContextWithLogger(ctx, logger)
	log.SetOutput(pslog.LogLogger(logger).Writer())
	log.SetFlags(0)

	root := newRootCmd()
	root.SetArgs(os.Args[1:])

	if err := root.ExecuteContext(ctx); err != nil {
		pslog.Ctx(ctx).With("err", err).Error("qrscan command failed")
		return 1
	}
	return 0
}

func newLogger() pslog.Logger {
	return pslog.LoggerFromEnv(
		pslog.WithEnvWriter(os.Stderr),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeConsole}),
	)
}

// options is shared by all subcommands.
type options struct {
	cfgPath string
	cfg     config.Config
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "qrscan",
		Short:         "Decode QR codes from images and live cameras",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.cfgPath)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			// The config file may pick the level; LOG_LEVEL wins.
			if _, set := os.LookupEnv("LOG_LEVEL"); !set && cfg.LogLevel != "" {
				_ = os.Setenv("LOG_LEVEL", cfg.LogLevel)
				cmd.SetContext(pslog.ContextWithLogger(cmd.Context(), newLogger()))
			}
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&opts.cfgPath, "config", "c", "", "path to a YAML config file")

	root.AddCommand(newDecodeCmd(opts))
	root.AddCommand(newScanCmd(opts))
	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newEncodeCmd())
	root.AddCommand(newConfigCmd(opts))
	return root
}

// coreLogger adapts a pslog.Logger to core.Logger.
type coreLogger struct{ l pslog.Logger }

func loggerFrom(ctx context.Context) core.Logger { return coreLogger{l: pslog.Ctx(ctx)} }

func (c coreLogger) Debug(msg string, fields ...interface{}) { c.l.Debug(msg, fields...) }
func (c coreLogger) Info(msg string, fields ...interface{})  { c.l.Info(msg, fields...) }
func (c coreLogger) Warn(msg string, fields ...interface{})  { c.l.Warn(msg, fields...) }
func (c coreLogger) Error(msg string, fields ...interface{}) { c.l.Error(msg, fields...) }
