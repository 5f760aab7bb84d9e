package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/NamanBalaji/fastdl/internal/engine"
	terrors "github.com/NamanBalaji/fastdl/internal/errors"
	"github.com/NamanBalaji/fastdl/internal/status"
)

func runDownload(cmd *cobra.Command, g *globalFlags, tf *transferFlags, df *downloadFlags, urls []string) error {
	if df.output != "" && len(urls) > 1 {
		return fmt.Errorf("--output needs exactly one URL, got %d", len(urls))
	}

	a, err := open(cmd, g, tf)
	if err != nil {
		return err
	}
	defer a.close()

	reqs := make([]engine.Request, 0, len(urls))
	for _, u := range urls {
		reqs = append(reqs, engine.Request{
			URL:      u,
			FileName: df.output,
			Force:    df.force,
			Resume:   !df.noResume,
		})
	}

	if len(reqs) == 1 {
		sink, done := sinkFor(cmd.ErrOrStderr(), displayName(reqs[0]), g.quiet)
		reqs[0].Sink = sink

		res, err := a.engine.Download(cmd.Context(), reqs[0])
		done()

		if res != nil {
			printResult(cmd.OutOrStdout(), res)
		}

		if err != nil {
			return err
		}

		if res.Status == status.Paused {
			return errPaused
		}

		return nil
	}

	return runBatch(cmd, a, reqs, nil)
}

// runBatch downloads reqs through the engine queue and reports each outcome. It fails if any
// transfer did not complete.
func runBatch(cmd *cobra.Command, a *app, reqs []engine.Request, priorities []int) error {
	sink, done := sinkFor(cmd.ErrOrStderr(), fmt.Sprintf("%d downloads", len(reqs)), a.quiet)
	stop := followBatch(a.engine, sink)

	outcomes := a.engine.RunBatch(cmd.Context(), a.cfg.TaskConcurrency, reqs, priorities)

	stop()
	done()

	var failed, paused int

	for _, o := range outcomes {
		if o.Result != nil {
			printResult(cmd.OutOrStdout(), o.Result)
		}

		switch {
		case o.Err != nil:
			failed++
		case o.Result != nil && o.Result.Status == status.Paused:
			paused++
		}
	}

	if skipped := len(reqs) - len(outcomes); skipped > 0 {
		paused += skipped
	}

	switch {
	case failed > 0:
		return fmt.Errorf("%d of %d downloads failed", failed, len(reqs))
	case paused > 0:
		return errPaused
	default:
		return nil
	}
}

func displayName(r engine.Request) string {
	if r.FileName != "" {
		return r.FileName
	}

	return r.URL
}

func printResult(w io.Writer, res *engine.Result) {
	switch res.Status {
	case status.Completed:
		fmt.Fprintf(w, "%s: saved %s in %s (%s)\n",
			res.Path, humanize.IBytes(uint64(max(res.Covered, 0))), res.Elapsed.Round(time.Millisecond), res.Mode)
	case status.Paused:
		fmt.Fprintf(w, "%s: paused at %s of %s\n", res.Path, humanize.IBytes(uint64(max(res.Covered, 0))), sizeString(res.Size))
	default:
		if code, ok := terrors.GetStatusCode(res.Err); ok {
			fmt.Fprintf(w, "%s: %s (HTTP %d): %v\n", target(res), status.String(res.Status), code, res.Err)
			return
		}

		fmt.Fprintf(w, "%s: %s: %v\n", target(res), status.String(res.Status), res.Err)
	}
}

func target(res *engine.Result) string {
	if res.Path != "" {
		return res.Path
	}

	return res.URL
}

func sizeString(n int64) string {
	if n < 0 {
		return "unknown size"
	}

	return humanize.IBytes(uint64(n))
}
