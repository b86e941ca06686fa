package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/conserve/internal/cli/output"
	"github.com/marmos91/conserve/internal/cli/timeutil"
	"github.com/marmos91/conserve/pkg/band"
)

var versionsShort bool

var versionsCmd = &cobra.Command{
	Use:   "versions <archive>",
	Short: "List the bands (versions) in an archive",
	Args:  cobra.ExactArgs(1),
	RunE:  runVersions,
}

func init() {
	versionsCmd.Flags().BoolVar(&versionsShort, "short", false, "print only band ids, one per line")
}

func runVersions(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return fatal(err)
	}

	t, err := resolveTransport(ctx, cfg, args[0])
	if err != nil {
		return fatal(err)
	}

	ids, err := band.ListBandIDs(ctx, t)
	if err != nil {
		return fatal(err)
	}

	if versionsShort {
		for _, id := range ids {
			fmt.Printf("%06d\n", id)
		}
		return nil
	}

	table := output.NewTableData("BAND", "STARTED", "HOSTNAME", "STATE")
	for _, id := range ids {
		head, err := band.ReadHead(ctx, t, id)
		if err != nil {
			return fatal(err)
		}
		complete, err := band.IsComplete(ctx, t, id)
		if err != nil {
			return fatal(err)
		}
		state := "complete"
		if !complete {
			state = "incomplete"
		}
		table.AddRow(
			band.Dir(id),
			head.StartTime.Local().Format(timeutil.LocalTimeFormat),
			head.Hostname,
			state,
		)
	}
	return output.PrintTable(os.Stdout, table)
}
