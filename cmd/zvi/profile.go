package main

import (
	"errors"
	"os"
	"runtime"
	"runtime/pprof"
	"runtime/trace"

	"github.com/felixge/fgprof"
)

// startProfiling starts the profiles requested in cfg. The returned function
// stops them and writes the heap profile, if any.
//
//nolint:gocritic // hugeParam acceptable for config struct in CLI tool
func startProfiling(cfg config) (func() error, error) {
	var stops []func() error
	stopAll := func() error {
		var errs []error
		for i := len(stops) - 1; i >= 0; i-- {
			errs = append(errs, stops[i]())
		}
		return errors.Join(errs...)
	}

	if cfg.fgProfile != "" {
		f, err := os.Create(cfg.fgProfile)
		if err != nil {
			return nil, err
		}
		stopFG := fgprof.Start(f, fgprof.FormatPprof)
		stops = append(stops, func() error {
			return errors.Join(stopFG(), f.Close())
		})
	}

	if cfg.cpuProfile != "" {
		f, err := os.Create(cfg.cpuProfile)
		if err != nil {
			return nil, errors.Join(err, stopAll())
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			_ = f.Close()
			return nil, errors.Join(err, stopAll())
		}
		stops = append(stops, func() error {
			pprof.StopCPUProfile()
			return f.Close()
		})
	}

	if cfg.traceFile != "" {
		f, err := os.Create(cfg.traceFile)
		if err != nil {
			return nil, errors.Join(err, stopAll())
		}
		if err := trace.Start(f); err != nil {
			_ = f.Close()
			return nil, errors.Join(err, stopAll())
		}
		stops = append(stops, func() error {
			trace.Stop()
			return f.Close()
		})
	}

	if cfg.memProfile != "" {
		path := cfg.memProfile
		stops = append(stops, func() error {
			runtime.GC()
			f, err := os.Create(path)
			if err != nil {
				return err
			}
			return errors.Join(pprof.WriteHeapProfile(f), f.Close())
		})
	}

	return stopAll, nil
}
