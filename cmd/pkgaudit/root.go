// ABOUTME: Root command for the pkgaudit CLI
// ABOUTME: Sets up global flags and subcommands

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Global flags.
var (
	cfgFile     string
	logLevel    string
	logFormat   string
	metricsFile string
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pkgaudit",
		Short: "pkgaudit - NixOS package availability auditor",
		Long: `pkgaudit checks whether the packages installed on a NixOS host still
exist, unbroken and secure, in the latest nixpkgs snapshot.

The snapshot is a SQLite database downloaded per release channel and kept
in a local cache that is only refreshed when the upstream version changes.
Installed packages are read from declarative configuration files and the
nix profile manifest. Renamed or removed packages are explained through
the nixpkgs alias set.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags.
	cmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: $XDG_CONFIG_HOME/pkgaudit/config.yaml)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); overrides config")
	cmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (json, text); overrides config")
	cmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile on exit")

	// Add subcommands.
	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newAuditCmd())
	cmd.AddCommand(newCacheCmd())
	cmd.AddCommand(newVersionsCmd())
	cmd.AddCommand(newOptionsCmd())
	cmd.AddCommand(newDBCmd())

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "pkgaudit version %s\n", buildVersion)
			fmt.Fprintf(out, "  Git SHA:    %s\n", gitSHA)
			fmt.Fprintf(out, "  Build Time: %s\n", buildTime)
		},
	}
}
