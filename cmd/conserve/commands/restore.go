package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/conserve/pkg/band"
	"github.com/marmos91/conserve/pkg/restore"
)

var (
	restoreBand      int
	restoreOverwrite bool
)

var restoreCmd = &cobra.Command{
	Use:   "restore <archive> <dest>",
	Short: "Restore a band's tree into dest",
	Args:  cobra.ExactArgs(2),
	RunE:  runRestore,
}

func init() {
	restoreCmd.Flags().IntVarP(&restoreBand, "band", "b", -1, "band id to restore (default: most recent)")
	restoreCmd.Flags().BoolVar(&restoreOverwrite, "overwrite", false, "overwrite existing files at the destination")
}

func runRestore(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return fatal(err)
	}
	stopMetrics := maybeServeMetrics(GetMetricsAddr())
	defer stopMetrics()

	a, c, bd, err := openArchive(ctx, cfg, args[0])
	if err != nil {
		return fatal(err)
	}
	defer bd.Close()

	bandID := restoreBand
	if bandID < 0 {
		ids, err := band.ListBandIDs(ctx, a.Transport())
		if err != nil {
			return fatal(err)
		}
		if len(ids) == 0 {
			return fatal(fmt.Errorf("archive has no bands to restore"))
		}
		bandID = ids[len(ids)-1]
	}

	summary, err := restore.Run(ctx, a, c, bd, bandID, args[1], restore.Options{Overwrite: restoreOverwrite})
	if err != nil {
		return fatal(err)
	}

	fmt.Printf("band %d: %d entries restored\n", summary.BandID, summary.EntriesRestored)
	if len(summary.Conflicts) > 0 {
		fmt.Printf("  %d conflicts (use --overwrite to replace): %v\n", len(summary.Conflicts), summary.Conflicts)
	}
	if len(summary.MetadataWarnings) > 0 {
		fmt.Printf("  %d metadata warnings\n", len(summary.MetadataWarnings))
	}
	if summary.HasFailures() {
		for kind, count := range summary.EntriesFailed {
			fmt.Printf("  %d entries failed: %s\n", count, kind)
		}
		return someFailed(fmt.Errorf("restore completed with failed entries"))
	}
	return nil
}
