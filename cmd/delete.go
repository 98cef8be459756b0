package cmd

import (
	"github.com/spf13/cobra"

	"github.com/dedupfs/dfm/pkg/action"
)

func DeleteCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "delete [ROOT]...",
		Short: "Find duplicate files and delete the redundant copies",
		Long: `Walk the given root paths and delete every member of each duplicate
set except the canonical one. Use --dry-run to preview.`,

		Args: cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			runPipeline(cmd, args, action.ModeDelete)
		},
	}

	addPipelineFlags(command)
	return command
}
