// Command zvi inspects and exports frames of ZVI image sequences.
//
// Usage:
//
//	zvi [flags] info FILE
//	zvi [flags] digest [-start N] [-stop N] [-step N] FILE
//	zvi [flags] export [-out DIR] [-format cbor|png] [-workers N] FILE
//
// FILE may be an http or https URL served with range request support. The
// frame shape is not stored in the file and must be given with -shape.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/meigma/zvi"
	"github.com/meigma/zvi/cache"
	"github.com/meigma/zvi/cache/disk"
	"github.com/meigma/zvi/container"
	"github.com/meigma/zvi/container/ole"
	zvihttp "github.com/meigma/zvi/http"
)

const defaultShape = "660x492"

type config struct {
	shape         zvi.Shape
	cacheDir      string
	cacheMaxBytes int64
	compress      bool
	verbose       bool
	cpuProfile    string
	memProfile    string
	traceFile     string
	fgProfile     string
}

// errUsage marks command line errors; the usage text has already been printed.
var errUsage = errors.New("usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the command line in args and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, rest, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		if !errors.Is(err, errUsage) {
			fmt.Fprintln(stderr, "zvi:", err)
		}
		return 2
	}

	level := slog.LevelInfo
	if cfg.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	stopProfiling, err := startProfiling(cfg)
	if err != nil {
		logger.Error("start profiling", "error", err)
		return 1
	}

	err = dispatch(ctx, cfg, rest, stdout, stderr, logger)
	if stopErr := stopProfiling(); stopErr != nil {
		logger.Error("stop profiling", "error", stopErr)
	}
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage):
		return 2
	default:
		logger.Error("command failed", "error", err)
		return 1
	}
}

//nolint:gocritic // hugeParam acceptable for config struct in CLI tool
func dispatch(ctx context.Context, cfg config, args []string, stdout, stderr io.Writer, logger *slog.Logger) error {
	if len(args) == 0 {
		fmt.Fprintln(stderr, "zvi: missing command (info, digest, export)")
		return errUsage
	}
	cmd, args := args[0], args[1:]
	switch cmd {
	case "info":
		return runInfo(cfg, args, stdout, stderr, logger)
	case "digest":
		return runDigest(cfg, args, stdout, stderr, logger)
	case "export":
		return runExport(ctx, cfg, args, stdout, stderr, logger)
	default:
		fmt.Fprintf(stderr, "zvi: unknown command %q\n", cmd)
		return errUsage
	}
}

func parseFlags(args []string, stderr io.Writer) (config, []string, error) {
	var cfg config
	var shape string
	fs := flag.NewFlagSet("zvi", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&shape, "shape", defaultShape, "frame shape as WIDTHxHEIGHT")
	fs.StringVar(&cfg.cacheDir, "cache", "", "cache stream contents in this directory")
	fs.Int64Var(&cfg.cacheMaxBytes, "cache-max-bytes", 0, "cache size limit in bytes (0 = unlimited)")
	fs.BoolVar(&cfg.compress, "compress", false, "zstd-compress cached streams")
	fs.BoolVar(&cfg.verbose, "v", false, "enable debug logging")
	fs.StringVar(&cfg.cpuProfile, "cpuprofile", "", "write CPU profile to file")
	fs.StringVar(&cfg.memProfile, "memprofile", "", "write heap profile to file")
	fs.StringVar(&cfg.traceFile, "trace", "", "write trace to file")
	fs.StringVar(&cfg.fgProfile, "fgprofile", "", "write fgprof (wall clock) profile to file")
	if err := fs.Parse(args); err != nil {
		return config{}, nil, fmt.Errorf("%w: %w", errUsage, err)
	}
	s, err := zvi.ParseShape(shape)
	if err != nil {
		return config{}, nil, err
	}
	cfg.shape = s
	if cfg.cacheMaxBytes < 0 {
		return config{}, nil, errors.New("-cache-max-bytes must be >= 0")
	}
	return cfg, fs.Args(), nil
}

// openSequence opens file, which may be an http or https URL, routing
// stream reads through the disk cache when one is configured. The returned
// function closes the sequence.
//
//nolint:gocritic // hugeParam acceptable for config struct in CLI tool
func openSequence(cfg config, file string, logger *slog.Logger) (*zvi.Sequence, func(), error) {
	opts := []zvi.Option{zvi.WithLogger(logger), zvi.WithFilename(file)}
	if cfg.cacheDir == "" && !isURL(file) {
		seq, err := zvi.Open(file, cfg.shape, opts...)
		if err != nil {
			return nil, nil, err
		}
		return seq, func() { closeSequence(seq, logger) }, nil
	}

	var store *disk.Cache
	if cfg.cacheDir != "" {
		var err error
		store, err = disk.New(cfg.cacheDir, disk.WithMaxBytes(cfg.cacheMaxBytes))
		if err != nil {
			return nil, nil, fmt.Errorf("open cache: %w", err)
		}
	}

	var base container.Container
	var err error
	if isURL(file) {
		base, err = zvihttp.Open(file)
	} else {
		base, err = ole.Open(file)
	}
	if err != nil {
		return nil, nil, err
	}
	if store != nil {
		cached, err := cache.NewContainer(base, store,
			cache.WithCompression(cfg.compress),
			cache.WithLogger(logger),
		)
		if err != nil {
			_ = base.Close()
			return nil, nil, err
		}
		base = cached
	}

	seq, err := zvi.New(base, cfg.shape, opts...)
	if err != nil {
		return nil, nil, err
	}
	return seq, func() {
		closeSequence(seq, logger)
		if store != nil {
			stats := store.Stats()
			logger.Debug("stream cache stats",
				"hits", stats.Hits,
				"misses", stats.Misses,
				"bytes", store.SizeBytes(),
			)
		}
	}, nil
}

func closeSequence(seq *zvi.Sequence, logger *slog.Logger) {
	if err := seq.Close(); err != nil {
		logger.Warn("close sequence", "error", err)
	}
}

func isURL(file string) bool {
	return strings.HasPrefix(file, "http://") || strings.HasPrefix(file, "https://")
}

// fileArg returns the single positional FILE argument of a subcommand.
func fileArg(fs *flag.FlagSet, stderr io.Writer) (string, error) {
	if fs.NArg() != 1 {
		fmt.Fprintf(stderr, "zvi %s: expected exactly one FILE argument\n", fs.Name())
		return "", errUsage
	}
	return fs.Arg(0), nil
}
