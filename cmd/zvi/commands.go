package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/meigma/zvi"
	"github.com/meigma/zvi/export"
)

// rangeFlags selects frames with Python slice semantics. Unset bounds cover
// the whole sequence.
type rangeFlags struct {
	start, stop, step int
	hasStart, hasStop bool
}

func (r *rangeFlags) register(fs *flag.FlagSet) {
	fs.Func("start", "first frame index (negative counts from the end)", func(s string) error {
		r.hasStart = true
		_, err := fmt.Sscan(s, &r.start)
		return err
	})
	fs.Func("stop", "stop before this frame index (negative counts from the end)", func(s string) error {
		r.hasStop = true
		_, err := fmt.Sscan(s, &r.stop)
		return err
	})
	fs.IntVar(&r.step, "step", 1, "index step")
}

func (r *rangeFlags) view(seq *zvi.Sequence) (*zvi.View, error) {
	start, stop := r.start, r.stop
	switch {
	case !r.hasStart && r.step < 0:
		start = seq.Len() - 1
	case !r.hasStart:
		start = 0
	}
	switch {
	case !r.hasStop && r.step < 0:
		// One before index 0 once normalized.
		stop = -seq.Len() - 1
	case !r.hasStop:
		stop = seq.Len()
	}
	return seq.Slice(start, stop, r.step)
}

func runInfo(cfg config, args []string, stdout, stderr io.Writer, logger *slog.Logger) error {
	fs := flag.NewFlagSet("info", flag.ContinueOnError)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	file, err := fileArg(fs, stderr)
	if err != nil {
		return err
	}

	seq, done, err := openSequence(cfg, file, logger)
	if err != nil {
		return err
	}
	defer done()

	items := seq.Items()
	fmt.Fprintln(stdout, seq.String())
	fmt.Fprintf(stdout, "Streams: %d\n", len(items))
	if len(items) > 0 {
		fmt.Fprintf(stdout, "Items: %d..%d\n", items[0], items[len(items)-1])
	}
	return nil
}

func runDigest(cfg config, args []string, stdout, stderr io.Writer, logger *slog.Logger) error {
	fs := flag.NewFlagSet("digest", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var rf rangeFlags
	rf.register(fs)
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	file, err := fileArg(fs, stderr)
	if err != nil {
		return err
	}

	seq, done, err := openSequence(cfg, file, logger)
	if err != nil {
		return err
	}
	defer done()

	view, err := rf.view(seq)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(stdout)
	for _, idx := range view.Indices() {
		frame, err := seq.Frame(idx)
		switch {
		case errors.Is(err, zvi.ErrMissingFrame):
			fmt.Fprintf(w, "%d\tmissing\n", idx)
		case err != nil:
			_ = w.Flush()
			return err
		default:
			fmt.Fprintf(w, "%d\t%s\n", idx, frame.Digest())
		}
	}
	return w.Flush()
}

func runExport(ctx context.Context, cfg config, args []string, stdout, stderr io.Writer, logger *slog.Logger) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		rf        rangeFlags
		outDir    string
		format    string
		workers   int
		overwrite bool
	)
	rf.register(fs)
	fs.StringVar(&outDir, "out", ".", `output directory, or "-" for a CBOR sequence on stdout`)
	fs.StringVar(&format, "format", string(export.FormatPNG), "output format: cbor or png")
	fs.IntVar(&workers, "workers", runtime.GOMAXPROCS(0), "frames exported in parallel")
	fs.BoolVar(&overwrite, "overwrite", false, "replace existing frame files")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	file, err := fileArg(fs, stderr)
	if err != nil {
		return err
	}
	f, err := export.ParseFormat(format)
	if err != nil {
		return err
	}
	if outDir == "-" && f != export.FormatCBOR {
		return errors.New(`export: -out - requires -format cbor`)
	}

	seq, done, err := openSequence(cfg, file, logger)
	if err != nil {
		return err
	}
	defer done()

	view, err := rf.view(seq)
	if err != nil {
		return err
	}

	if outDir == "-" {
		return exportStream(ctx, seq, view, stdout, logger)
	}
	sink, err := export.NewFileSink(outDir, f, export.WithOverwrite(overwrite))
	if err != nil {
		return err
	}
	n, err := exportFiles(ctx, seq, view, sink, workers, logger)
	if err != nil {
		return err
	}
	logger.Info("export complete", "frames", n, "dir", outDir, "format", string(f))
	return nil
}

// exportStream writes the view as a CBOR sequence in index order.
func exportStream(ctx context.Context, seq *zvi.Sequence, view *zvi.View, w io.Writer, logger *slog.Logger) error {
	bw := bufio.NewWriter(w)
	enc := export.NewCBOREncoder(bw)
	for _, idx := range view.Indices() {
		if err := ctx.Err(); err != nil {
			return err
		}
		frame, err := seq.Frame(idx)
		if errors.Is(err, zvi.ErrMissingFrame) {
			logger.Warn("skipping missing frame", "index", idx)
			continue
		}
		if err != nil {
			return err
		}
		if err := enc.Encode(frame); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// exportFiles writes one file per frame using up to workers goroutines and
// returns the number of files written. Missing frames and frames that
// already have a file are skipped.
func exportFiles(parent context.Context, seq *zvi.Sequence, view *zvi.View, sink *export.FileSink, workers int, logger *slog.Logger) (int, error) {
	g, ctx := errgroup.WithContext(parent)
	if workers > 0 {
		g.SetLimit(workers)
	}

	var written atomic.Int64
	for _, idx := range view.Indices() {
		if ctx.Err() != nil {
			break
		}
		if !sink.ShouldWrite(idx) {
			logger.Debug("frame file exists", "index", idx, "path", sink.Path(idx))
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			frame, err := seq.Frame(idx)
			if errors.Is(err, zvi.ErrMissingFrame) {
				logger.Warn("skipping missing frame", "index", idx)
				return nil
			}
			if err != nil {
				return err
			}
			ok, err := sink.Write(frame)
			if err != nil {
				return err
			}
			if ok {
				written.Add(1)
				logger.Debug("exported frame", "index", idx)
			}
			return nil
		})
	}
	err := g.Wait()
	if err == nil {
		// Frames queued before an interrupt may all succeed.
		err = parent.Err()
	}
	return int(written.Load()), err
}
