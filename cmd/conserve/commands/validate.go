package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/conserve/internal/cli/output"
	"github.com/marmos91/conserve/pkg/validate"
)

var validateDeep bool

var validateCmd = &cobra.Command{
	Use:   "validate <archive>",
	Short: "Check archive structural integrity, and optionally every block's hash",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func init() {
	validateCmd.Flags().BoolVar(&validateDeep, "deep", false, "also decompress and hash-verify every block, including unreferenced ones")
}

func runValidate(cmd *cobra.Command, args []string) error {
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

	report, err := validate.Run(ctx, a, c, bd, validate.Options{Deep: validateDeep})
	if err != nil {
		return fatal(err)
	}

	fmt.Printf("checked %d bands, %d blocks (%d deep)\n", report.BandsChecked, report.BlocksChecked, report.DeepBlocksChecked)
	if report.OK() {
		fmt.Println("archive is consistent")
		return nil
	}

	table := output.NewTableData("BAND", "KIND", "DETAIL")
	for _, f := range report.Findings {
		table.AddRow(f.Band, f.Kind.String(), f.Msg)
	}
	if err := output.PrintTable(os.Stdout, table); err != nil {
		return fatal(err)
	}
	return someFailed(fmt.Errorf("validate found %d issues", len(report.Findings)))
}
