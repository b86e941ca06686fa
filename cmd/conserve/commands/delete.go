package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/conserve/pkg/gc"
)

var deleteBandID int

var deleteCmd = &cobra.Command{
	Use:   "delete <archive> --band <id>",
	Short: "Delete a band and reclaim every block no remaining band references",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

func init() {
	deleteCmd.Flags().IntVar(&deleteBandID, "band", -1, "band id to delete (required)")
}

func runDelete(cmd *cobra.Command, args []string) error {
	if deleteBandID < 0 {
		return usageErr(fmt.Errorf("--band is required"))
	}

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

	summary, err := gc.Run(ctx, a, c, bd, gc.Options{DeleteBands: []int{deleteBandID}})
	if err != nil {
		return fatal(err)
	}

	fmt.Printf("deleted band %d: %d blocks reclaimed, %d bytes freed\n",
		deleteBandID, summary.BlocksDeleted, summary.BytesReclaimed)
	return nil
}
