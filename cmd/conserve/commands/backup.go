package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/conserve/pkg/backup"
)

var backupExcludes []string

var backupCmd = &cobra.Command{
	Use:   "backup <archive> <source>",
	Short: "Back up a source tree into a new band",
	Args:  cobra.ExactArgs(2),
	RunE:  runBackup,
}

func init() {
	backupCmd.Flags().StringArrayVar(&backupExcludes, "exclude", nil, "glob pattern to exclude (repeatable)")
}

func runBackup(cmd *cobra.Command, args []string) error {
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

	opts := backup.DefaultOptions()
	opts.Excludes = backupExcludes
	opts.ChunkSize = int64(cfg.Backup.ChunkSize)
	opts.WorkerCount = cfg.Backup.WorkerCount

	summary, err := backup.Run(ctx, a, c, bd, args[1], opts)
	if err != nil {
		return fatal(err)
	}

	fmt.Printf("band %d: %d entries backed up, %d blocks written, %d deduped, %d bytes read\n",
		summary.BandID, summary.EntriesOK, summary.BlocksWritten, summary.BlocksDeduped, summary.BytesRead)
	if summary.HasFailures() {
		failed := 0
		for kind, count := range summary.EntriesFailed {
			fmt.Printf("  %d entries failed: %s\n", count, kind)
			failed += count
		}
		return someFailed(fmt.Errorf("backup completed with %d failed entries", failed))
	}
	return nil
}
