package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"

	"github.com/NamanBalaji/fastdl/internal/progress"
)

// barSink renders snapshots of one transfer as a terminal progress bar.
type barSink struct {
	name string
	w    io.Writer
	bar  *progressbar.ProgressBar
}

func newBarSink(w io.Writer, name string) *barSink {
	bar := progressbar.NewOptions64(-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(name),
		progressbar.OptionShowBytes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionOnCompletion(func() { _, _ = fmt.Fprintln(w) }),
	)

	return &barSink{name: name, w: w, bar: bar}
}

func (b *barSink) Report(s progress.Snapshot) {
	if s.BytesTotal >= 0 && b.bar.GetMax64() != s.BytesTotal {
		b.bar.ChangeMax64(s.BytesTotal)
	}

	b.bar.Describe(fmt.Sprintf("%s (%d)", b.name, s.ActiveFetchers))
	_ = b.bar.Set64(s.BytesCompleted)
}

// done leaves the bar on its own line whether or not the transfer finished.
func (b *barSink) done() {
	if b.bar.IsFinished() {
		return
	}

	_ = b.bar.Exit()
	_, _ = fmt.Fprintln(b.w)
}

// sinkFor picks a bar for interactive terminals and nothing otherwise.
func sinkFor(w io.Writer, name string, quiet bool) (progress.Sink, func()) {
	f, ok := w.(*os.File)
	if quiet || !ok || !(isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		return nil, func() {}
	}

	b := newBarSink(w, name)

	return b, b.done
}
