package main

import (
	"github.com/Skryldev/qrscan"
	"github.com/Skryldev/qrscan/adapters/storage"
	"github.com/Skryldev/qrscan/adapters/validator"
	"github.com/Skryldev/qrscan/adapters/vips"
	"github.com/Skryldev/qrscan/config"
	"github.com/Skryldev/qrscan/core"
)

// scannerFlags selects the optional collaborators of a Scanner.
type scannerFlags struct {
	validate bool
	vips     bool
}

// buildScanner wires a Scanner from cfg.  The returned cleanup releases
// libvips when it was started.
func buildScanner(cfg config.Config, logger core.Logger, f scannerFlags) (*qrscan.Scanner, func(), error) {
	opts := []qrscan.Option{qrscan.WithLogger(logger)}
	cleanup := func() {}

	if f.validate {
		v, err := validator.New(cfg.Validator, validator.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, qrscan.WithValidator(v))
	}
	if cfg.SnapshotDir != "" {
		store, err := storage.NewLocal(cfg.SnapshotDir, 0)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, qrscan.WithSnapshots(store))
	}
	if f.vips {
		backend := vips.NewBackend(vips.BackendConfig{MaxWorkers: cfg.WorkerCount})
		opts = append(opts, qrscan.WithVips(backend))
		cleanup = backend.Shutdown
	}

	s := qrscan.New(cfg, opts...)
	s.Start()
	return s, func() {
		s.Stop()
		cleanup()
	}, nil
}
