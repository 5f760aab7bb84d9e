package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/NamanBalaji/fastdl/internal/repository"
)

func newListCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show recorded transfers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := open(cmd, g, nil)
			if err != nil {
				return err
			}
			defer a.close()

			entries, err := a.engine.List()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATE\tPROGRESS\tVALIDATOR\tUPDATED\tPATH")

			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					e.ID.String()[:8], entryState(e), entryProgress(e), validator(e),
					humanize.RelTime(e.UpdatedAt, time.Now(), "ago", "from now"), e.Path)
			}

			return w.Flush()
		},
	}
}

func entryState(e *repository.Entry) string {
	if e.Complete() {
		return "complete"
	}

	return "partial"
}

func entryProgress(e *repository.Entry) string {
	covered := humanize.IBytes(uint64(e.Covered()))
	if e.Size < 0 {
		return covered + "/?"
	}

	pct := 100.0
	if e.Size > 0 {
		pct = float64(e.Covered()) / float64(e.Size) * 100
	}

	return fmt.Sprintf("%s/%s %.1f%%", covered, humanize.IBytes(uint64(e.Size)), pct)
}

func validator(e *repository.Entry) string {
	switch {
	case e.ETag != "":
		return e.ETag
	case e.LastModified != "":
		return e.LastModified
	default:
		return "-"
	}
}
