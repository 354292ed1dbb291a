package cli

import "github.com/spf13/cobra"

func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "caseflow",
		Short: "Dispute case workflow, approval and collections engine",
	}

	cmd.Flags().String("config", "config.yaml", "Path to config file")
	return cmd
}
