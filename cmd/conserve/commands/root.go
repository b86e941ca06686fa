// Package commands implements Conserve's CLI commands.
package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile     string
	metricsAddr string
)

// Exit codes, per spec.md §6.
const (
	ExitOK          = 0
	ExitSomeFailed  = 2
	ExitFatal       = 3
	ExitUsage       = 4
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "conserve",
	Short: "Conserve - content-addressed, append-only backup archive",
	Long: `Conserve copies a source file tree into an append-only,
content-addressed archive on a pluggable object-store transport, and can
reconstruct any past version later.

Use "conserve [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/conserve/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "if set, serve Prometheus metrics on this address for the duration of the command")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(versionsCmd)
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(gcCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(versionCmd)
}

// GetConfigFile returns the config file path from the global flag.
func GetConfigFile() string {
	return cfgFile
}

// GetMetricsAddr returns the --metrics-addr flag's value, empty if unset.
func GetMetricsAddr() string {
	return metricsAddr
}
