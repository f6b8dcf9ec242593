// ABOUTME: Snapshot database commands for producers and debugging
// ABOUTME: Provides build, info, and lookup operations on SQLite snapshots

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/hikmaai-io/hikmaai-pkgaudit/internal/pkgdb"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Package snapshot database commands",
		Long:  `Commands for building and inspecting SQLite package snapshots.`,
	}

	cmd.AddCommand(newDBBuildCmd())
	cmd.AddCommand(newDBInfoCmd())
	cmd.AddCommand(newDBLookupCmd())

	return cmd
}

func newDBBuildCmd() *cobra.Command {
	var (
		input  string
		output string
	)

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build a snapshot database from JSON records",
		Long: `Build writes a SQLite snapshot from either an {"attribute": "version"}
object or an array of {"attribute", "version", "broken", "insecure"}
records. Records with status flags also produce the meta table. The
output file is replaced atomically. Use "-" to read from stdin.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return dbBuild(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), input, output)
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "-", "JSON records file")
	cmd.Flags().StringVarP(&output, "output", "o", "", "snapshot database to write")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

func newDBInfoCmd() *cobra.Command {
	var outputJSON bool

	cmd := &cobra.Command{
		Use:   "info <path>",
		Short: "Show snapshot schema and statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return dbInfo(cmd.Context(), cmd.OutOrStdout(), args[0], outputJSON)
		},
	}

	cmd.Flags().BoolVarP(&outputJSON, "json", "j", false, "output as JSON")

	return cmd
}

func newDBLookupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <path> <attribute>",
		Short: "Look up one attribute in a snapshot",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return dbLookup(cmd.Context(), cmd.OutOrStdout(), args[0], args[1])
		},
	}
}

func dbBuild(ctx context.Context, stdin io.Reader, out io.Writer, input, output string) error {
	ctx = contextOrBackground(ctx)

	r := stdin
	if input != "-" {
		f, err := os.Open(input)
		if err != nil {
			return classify("read records", err)
		}
		defer f.Close()
		r = f
	}

	records, hasFlags, err := pkgdb.DecodeRecords(r)
	if err != nil {
		return classify("decode records", err)
	}

	if hasFlags {
		err = pkgdb.BuildSnapshot(ctx, output, records)
	} else {
		err = pkgdb.BuildFromRecords(ctx, output, pkgdb.VersionMap(records))
	}
	if err != nil {
		return classify("build snapshot", err)
	}

	fmt.Fprintf(out, "Wrote %d attributes to %s\n", len(records), output)
	return nil
}

func dbInfo(ctx context.Context, out io.Writer, path string, outputJSON bool) error {
	db, err := pkgdb.Open(contextOrBackground(ctx), path)
	if err != nil {
		return classify("open snapshot", err)
	}
	defer db.Close()

	info := db.Info()
	if outputJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}

	fmt.Fprintf(out, "Snapshot:    %s\n", info.Path)
	fmt.Fprintf(out, "Attributes:  %d\n", info.Attributes)
	fmt.Fprintf(out, "Tables:      pkgs=%t meta=%t\n", info.HasPackages, info.HasMeta)
	fmt.Fprintf(out, "Bloom:       %d bytes, %d hashes, %.2f%% false positives\n",
		info.Bloom.BitSetSize, info.Bloom.HashFunctions, info.Bloom.FalsePositiveRate*100)
	return nil
}

func dbLookup(ctx context.Context, out io.Writer, path, attribute string) error {
	ctx = contextOrBackground(ctx)

	db, err := pkgdb.Open(ctx, path)
	if err != nil {
		return classify("open snapshot", err)
	}
	defer db.Close()

	rec, err := db.Lookup(ctx, attribute)
	if err != nil {
		return classify("look up attribute", err)
	}

	fmt.Fprintf(out, "Attribute: %s\n", rec.Attribute)
	fmt.Fprintf(out, "Version:   %s\n", rec.Version)
	fmt.Fprintf(out, "Broken:    %t\n", rec.Broken)
	fmt.Fprintf(out, "Insecure:  %t\n", rec.Insecure)
	return nil
}
