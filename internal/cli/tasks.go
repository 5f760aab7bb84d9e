package cli

import (
	"github.com/spf13/cobra"

	"github.com/NamanBalaji/fastdl/internal/config"
	"github.com/NamanBalaji/fastdl/internal/engine"
)

func newTasksCommand(g *globalFlags, tf *transferFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "tasks FILE",
		Short: "Download every URL listed in a YAML task file",
		Long: `Download every URL listed in a YAML task file, highest priority first:

  download:
    https://example.com/a.iso:
      dir: /data
      threads: 8
      priority: 10
    https://example.com/b.iso: {}`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tasks, err := config.LoadTasks(args[0])
			if err != nil {
				return err
			}

			a, err := open(cmd, g, tf)
			if err != nil {
				return err
			}
			defer a.close()

			reqs := make([]engine.Request, 0, len(tasks))
			prios := make([]int, 0, len(tasks))

			for _, t := range tasks {
				reqs = append(reqs, engine.Request{
					URL:      t.URL,
					Dir:      t.Dir,
					FileName: t.FileName,
					Threads:  t.Threads,
					Force:    t.Force,
					Resume:   t.ShouldResume(),
					Headers:  t.Headers,
				})
				prios = append(prios, t.Priority)
			}

			return runBatch(cmd, a, reqs, prios)
		},
	}
}
