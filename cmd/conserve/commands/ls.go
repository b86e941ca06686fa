package commands

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/marmos91/conserve/internal/cli/output"
	"github.com/marmos91/conserve/pkg/band"
	"github.com/marmos91/conserve/pkg/stitch"
)

var lsBand int

var lsCmd = &cobra.Command{
	Use:   "ls <archive>",
	Short: "List the entries of a band's stitched tree",
	Args:  cobra.ExactArgs(1),
	RunE:  runLs,
}

func init() {
	lsCmd.Flags().IntVarP(&lsBand, "band", "b", -1, "band id to list (default: most recent)")
}

func runLs(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return fatal(err)
	}

	t, err := resolveTransport(ctx, cfg, args[0])
	if err != nil {
		return fatal(err)
	}
	c, err := cfg.Codec.Codec()
	if err != nil {
		return fatal(err)
	}

	bandID := lsBand
	if bandID < 0 {
		ids, err := band.ListBandIDs(ctx, t)
		if err != nil {
			return fatal(err)
		}
		if len(ids) == 0 {
			return fatal(fmt.Errorf("archive has no bands to list"))
		}
		bandID = ids[len(ids)-1]
	}

	entries, err := stitch.New(t, c).ListEntries(ctx, bandID)
	if err != nil {
		return fatal(err)
	}

	table := output.NewTableData("KIND", "SIZE", "APATH")
	for _, e := range entries {
		table.AddRow(string(e.Kind), strconv.FormatUint(e.Size, 10), e.Apath)
	}
	return output.PrintTable(os.Stdout, table)
}
