// ABOUTME: Versions command listing the latest snapshot version of installed packages
// ABOUTME: Reads the installed set and queries the package snapshot in one pass

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

type versionsOptions struct {
	ConfigFiles     []string
	ProfileManifest string
	JSON            bool
}

func newVersionsCmd() *cobra.Command {
	var opts versionsOptions

	cmd := &cobra.Command{
		Use:   "versions",
		Short: "Show the latest snapshot version of every installed package",
		Long: `Versions prints the version each installed package has in the latest
package snapshot. Packages missing from the snapshot, or listed more than
once, are left out.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), optionsFromFlags(cmd))
			if err != nil {
				return err
			}
			defer a.Close()

			if !cmd.Flags().Changed("profile-manifest") {
				opts.ProfileManifest = a.cfg.ProfileManifest
			}
			return runVersions(cmd.Context(), a, opts)
		},
	}

	cmd.Flags().StringArrayVar(&opts.ConfigFiles, "config-file", nil, "declarative configuration file to read packages from (repeatable)")
	cmd.Flags().StringVar(&opts.ProfileManifest, "profile-manifest", "", "nix profile manifest (default from config, empty to skip)")
	cmd.Flags().BoolVarP(&opts.JSON, "json", "j", false, "output as JSON")

	return cmd
}

func runVersions(ctx context.Context, a *app, opts versionsOptions) error {
	ctx = contextOrBackground(ctx)

	db, _, err := a.openPackages(ctx)
	if err != nil {
		return a.fail("open package snapshot", err)
	}
	defer db.Close()

	pkgs, err := a.installedPackages(opts.ConfigFiles, opts.ProfileManifest)
	if err != nil {
		return a.fail("read installed packages", err)
	}

	attrs := make([]string, 0, len(pkgs))
	for _, p := range pkgs {
		attrs = append(attrs, p.Identity)
	}

	latest, err := db.Versions(ctx, attrs)
	if err != nil {
		return a.fail("look up versions", err)
	}

	if opts.JSON {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(latest)
	}

	names := make([]string, 0, len(latest))
	for name := range latest {
		names = append(names, name)
	}
	sort.Strings(names)

	width := 0
	for _, name := range names {
		width = max(width, len(name))
	}
	for _, name := range names {
		fmt.Fprintf(a.out, "%-*s  %s\n", width, name, latest[name])
	}
	return nil
}
