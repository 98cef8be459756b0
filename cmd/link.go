package cmd

import (
	"github.com/spf13/cobra"

	"github.com/dedupfs/dfm/pkg/action"
)

func LinkCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "link [ROOT]...",
		Short: "Find duplicate files and consolidate them into hardlinks",
		Long: `Walk the given root paths and replace every redundant copy with a
hardlink to the canonical member of its duplicate set. The canonical
member is the lexicographically first path, so runs are reproducible.
Use --dry-run to preview.`,

		Args: cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			runPipeline(cmd, args, action.ModeHardlink)
		},
	}

	addPipelineFlags(command)
	return command
}
