package cmd

import (
	"github.com/spf13/cobra"

	"github.com/dedupfs/dfm/pkg/action"
)

func ScanCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "scan [ROOT]...",
		Short: "Find duplicate files and report them",
		Long:  `Walk the given root paths and report groups of byte-identical files without touching anything.`,

		Args: cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			runPipeline(cmd, args, action.ModeReport)
		},
	}

	addPipelineFlags(command)
	return command
}
