// ABOUTME: Options command looking up NixOS options in the cached options snapshot
// ABOUTME: Refreshes the options artifact and queries it with gjson

package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/hikmaai-io/hikmaai-pkgaudit/internal/config"
)

// errOptionNotFound is returned when the options snapshot has no such option.
var errOptionNotFound = errors.New("option not found")

func newOptionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "options",
		Short: "NixOS option lookups",
	}

	cmd.AddCommand(newOptionsGetCmd())

	return cmd
}

func newOptionsGetCmd() *cobra.Command {
	var outputJSON bool

	cmd := &cobra.Command{
		Use:     "get <name>",
		Short:   "Show a NixOS option from the latest options snapshot",
		Args:    cobra.ExactArgs(1),
		Example: `  pkgaudit options get services.openssh.enable`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), optionsFromFlags(cmd))
			if err != nil {
				return err
			}
			defer a.Close()
			return runOptionsGet(cmd.Context(), a, args[0], outputJSON)
		},
	}

	cmd.Flags().BoolVarP(&outputJSON, "json", "j", false, "output the raw option as JSON")

	return cmd
}

func runOptionsGet(ctx context.Context, a *app, name string, outputJSON bool) error {
	res, err := a.refreshKind(contextOrBackground(ctx), config.KindOptions)
	if err != nil {
		return a.fail("refresh options", err)
	}

	data, err := os.ReadFile(res.Path)
	if err != nil {
		return a.fail("read options", err)
	}

	option, ok := lookupOption(data, name)
	if !ok {
		return a.fail("look up option", fmt.Errorf("%s: %w", name, errOptionNotFound))
	}

	if outputJSON {
		fmt.Fprintln(a.out, option.Raw)
		return nil
	}

	fmt.Fprintln(a.out, name)
	printOptionField(a, "Type", option.Get("type"))
	printOptionField(a, "Default", optionText(option.Get("default")))
	printOptionField(a, "Example", optionText(option.Get("example")))
	printOptionField(a, "Read only", option.Get("readOnly"))
	printOptionField(a, "Description", option.Get("description"))
	if decls := option.Get("declarations"); decls.IsArray() {
		for _, d := range decls.Array() {
			fmt.Fprintf(a.out, "  Declared in: %s\n", d.String())
		}
	}
	return nil
}

// lookupOption finds name among the top-level keys. Option names contain
// dots, so a gjson path would descend instead of matching the key.
func lookupOption(data []byte, name string) (gjson.Result, bool) {
	var found gjson.Result
	ok := false
	gjson.ParseBytes(data).ForEach(func(key, value gjson.Result) bool {
		if key.String() == name {
			found, ok = value, true
			return false
		}
		return true
	})
	return found, ok
}

// optionText unwraps literalExpression and literalMD values.
func optionText(v gjson.Result) gjson.Result {
	if text := v.Get("text"); text.Exists() {
		return text
	}
	return v
}

func printOptionField(a *app, label string, v gjson.Result) {
	if !v.Exists() {
		return
	}
	fmt.Fprintf(a.out, "  %s: %s\n", label, v.String())
}
