// Package cli is the fastdl command line.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// downloadFlags only apply to downloads started from the command line.
type downloadFlags struct {
	output   string
	force    bool
	noResume bool
}

func (d *downloadFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&d.output, "output", "o", "", "file name to save as")
	f.BoolVarP(&d.force, "force", "f", false, "overwrite a destination this tool did not create")
	f.BoolVar(&d.noResume, "no-resume", false, "ignore recorded progress and start over")
}

// NewRootCommand builds the command tree. Running it with URLs downloads them.
func NewRootCommand() *cobra.Command {
	var (
		g  globalFlags
		tf transferFlags
		df downloadFlags
	)

	root := &cobra.Command{
		Use:           "fastdl [flags] URL...",
		Short:         "Resumable multi-connection HTTP downloader",
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}

			return runDownload(cmd, &g, &tf, &df, args)
		},
	}

	g.register(root)
	tf.register(root)
	df.register(root)

	download := &cobra.Command{
		Use:   "download URL...",
		Short: "Download one or more URLs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDownload(cmd, &g, &tf, &df, args)
		},
	}
	df.register(download)

	root.AddCommand(
		download,
		newTasksCommand(&g, &tf),
		newListCommand(&g),
		newCleanCommand(&g),
		newRemoveCommand(&g),
	)

	return root
}

// Execute runs the command line against args and returns the process exit code.
func Execute(ctx context.Context, args []string) int {
	root := NewRootCommand()
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fastdl: %v\n", err)
	}

	return ExitCode(err)
}
