// Command cwgen writes synthetic structured log lines, the same ones the fake
// backend returns, for trying the file backend:
//
//	cwgen --rate 20 --out /tmp/app.log &
//	cwinsights --backend file -g /tmp/app.log -f
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"cwinsights/internal/model"
	"cwinsights/internal/querier/fake"
)

// batch is how many lines are generated at once while streaming.
const batch = 64

type options struct {
	count    int
	rate     float64
	out      string
	group    string
	seed     int64
	duration time.Duration
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opt options
	cmd := &cobra.Command{
		Use:           "cwgen",
		Short:         "Generate synthetic JSON log lines",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opt.rate <= 0 && opt.count <= 0 {
				return errors.New("--count must be positive when --rate is 0")
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			if opt.duration > 0 {
				var c context.CancelFunc
				ctx, c = context.WithTimeout(ctx, opt.duration)
				defer c()
			}

			var w io.Writer = cmd.OutOrStdout()
			if opt.out != "" {
				f, err := os.OpenFile(opt.out, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			n, err := generate(ctx, w, opt, time.Now)
			if opt.out != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d lines to %s\n", n, opt.out)
			}
			return err
		},
	}
	f := cmd.Flags()
	f.IntVarP(&opt.count, "count", "n", 500, "lines to write (0 with --rate: until interrupted)")
	f.Float64Var(&opt.rate, "rate", 0, "lines per second; 0 writes --count lines spread over the last hour at once")
	f.StringVarP(&opt.out, "out", "o", "", "output file (default stdout)")
	f.StringVar(&opt.group, "group", "synthetic", "log group name used in the generated streams")
	f.Int64Var(&opt.seed, "seed", 1, "random seed")
	f.DurationVar(&opt.duration, "duration", 0, "stop after this long (e.g. 30s); 0 runs until done")
	return cmd
}

// generate writes lines to w and returns how many it wrote. Interruption by
// ctx is not an error.
func generate(ctx context.Context, w io.Writer, opt options, now func() time.Time) (int, error) {
	bw := bufio.NewWriter(w)
	defer bw.Flush()

	if opt.rate <= 0 {
		end := now()
		recs := fake.Generate(opt.count, model.TimeRange{Start: end.Add(-time.Hour), End: end}, opt.group, opt.seed)
		for i, r := range recs {
			if err := writeRecord(bw, r); err != nil {
				return i, err
			}
		}
		return len(recs), nil
	}

	lim := rate.NewLimiter(rate.Limit(opt.rate), 1)
	written := 0
	for b := int64(0); ; b++ {
		end := now()
		recs := fake.Generate(batch, model.TimeRange{Start: end.Add(-time.Second), End: end}, opt.group, opt.seed+b)
		for _, r := range recs {
			if opt.count > 0 && written >= opt.count {
				return written, nil
			}
			if err := lim.Wait(ctx); err != nil {
				// a deadline or interrupt ends the stream
				return written, nil
			}
			if err := writeRecord(bw, r); err != nil {
				return written, err
			}
			// readers tail the file: make each line visible right away
			if err := bw.Flush(); err != nil {
				return written, err
			}
			written++
		}
	}
}

func writeRecord(w *bufio.Writer, r model.Record) error {
	for _, f := range r {
		if f.Name == "@message" {
			_, err := fmt.Fprintln(w, f.Value)
			return err
		}
	}
	return nil
}
