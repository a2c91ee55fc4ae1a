package cli

// This file contains the list command for displaying the example catalog.

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"
)

func (a *App) list(ctx *cli.Context) error {
	lib, sink, err := a.openLibrary(ctx, false)
	if err != nil {
		return err
	}
	defer lib.Close()
	defer sink.Close()

	cat := lib.Catalog()
	examples := cat.Examples()
	if len(examples) == 0 {
		fmt.Println("No examples found")
		return nil
	}

	fmt.Printf("\n=== Examples (%d total, catalog v%d) ===\n\n", len(examples), cat.Version())

	for _, ex := range examples {
		fmt.Printf("%s  %s\n", ex.ID, ex.Meta.Title)
		if ex.Meta.Description != "" {
			fmt.Printf("   %s\n", ex.Meta.Description)
		}
		if len(ex.Meta.Categories) > 0 {
			fmt.Printf("   Categories: %s\n", strings.Join(ex.Meta.Categories, ", "))
		}
		if len(ex.Suites) > 0 {
			names := make([]string, len(ex.Suites))
			for i, s := range ex.Suites {
				names[i] = s.ID
			}
			fmt.Printf("   Suites: %s\n", strings.Join(names, ", "))
		}
		fmt.Println()
	}

	fmt.Println("Run an example:  koto-explorer exec <ID>")
	fmt.Println("Run its suites:  koto-explorer run <ID>")

	return nil
}
