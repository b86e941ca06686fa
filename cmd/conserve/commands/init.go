package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/conserve/pkg/archive"
)

var initCmd = &cobra.Command{
	Use:   "init <archive>",
	Short: "Initialize a new, empty archive",
	Args:  cobra.ExactArgs(1),
	RunE:  runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return fatal(err)
	}

	t, err := resolveTransport(ctx, cfg, args[0])
	if err != nil {
		return fatal(err)
	}

	a, err := archive.Init(ctx, t)
	if err != nil {
		return fatal(err)
	}

	fmt.Printf("initialized archive %s at %s\n", a.Header.ArchiveID, args[0])
	return nil
}
