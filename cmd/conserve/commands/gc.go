package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/conserve/pkg/gc"
)

var gcForce bool

var gcCmd = &cobra.Command{
	Use:   "gc <archive>",
	Short: "Reclaim blocks no surviving band references",
	Args:  cobra.ExactArgs(1),
	RunE:  runGC,
}

func init() {
	gcCmd.Flags().BoolVar(&gcForce, "force", false, "proceed even if the newest band is incomplete")
}

func runGC(cmd *cobra.Command, args []string) error {
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

	summary, err := gc.Run(ctx, a, c, bd, gc.Options{Force: gcForce})
	if err != nil {
		return fatal(err)
	}

	fmt.Printf("gc: %d bands deleted, %d blocks reclaimed, %d bytes freed\n",
		summary.BandsDeleted, summary.BlocksDeleted, summary.BytesReclaimed)
	return nil
}
