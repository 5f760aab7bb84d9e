package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCleanCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Forget finished transfers and transfers whose file is gone",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := open(cmd, g, nil)
			if err != nil {
				return err
			}
			defer a.close()

			n, err := a.engine.Clean()
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "removed %d entries\n", n)

			return nil
		},
	}
}
