package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRemoveCommand(g *globalFlags) *cobra.Command {
	var deleteFile bool

	cmd := &cobra.Command{
		Use:   "remove PATH...",
		Short: "Forget recorded transfers",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := open(cmd, g, nil)
			if err != nil {
				return err
			}
			defer a.close()

			for _, p := range args {
				if err := a.engine.Remove(p, deleteFile); err != nil {
					return fmt.Errorf("%s: %w", p, err)
				}

				fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", p)
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&deleteFile, "delete-file", false, "delete the downloaded file as well")

	return cmd
}
