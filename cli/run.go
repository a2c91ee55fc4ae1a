package cli

// This file contains the exec and run commands for executing example
// scripts and test suites.

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/multiplex55/koto-learning/model"
)

func (a *App) exec(ctx *cli.Context) error {
	exampleID := ctx.Args().First()
	if exampleID == "" {
		return fmt.Errorf("no example specified: usage: %s exec EXAMPLE", AppName)
	}

	lib, sink, err := a.openLibrary(ctx, false)
	if err != nil {
		return err
	}
	defer lib.Close()
	defer sink.Close()

	outcome, err := lib.RunExample(ctx.Context, exampleID)
	if outcome.Stdout != "" {
		fmt.Print(outcome.Stdout)
	}
	if outcome.Stderr != "" {
		fmt.Fprint(ctx.App.ErrWriter, outcome.Stderr)
	}
	if err != nil {
		return err
	}
	if outcome.ReturnValue != "" {
		fmt.Printf("=> %s\n", outcome.ReturnValue)
	}
	a.logger.Debug().Dur("duration", outcome.Duration).Msg("Example executed")

	return nil
}

func (a *App) run(ctx *cli.Context) error {
	exampleID := ctx.Args().First()
	if exampleID == "" {
		return fmt.Errorf("no example specified: usage: %s run EXAMPLE [SUITE]", AppName)
	}
	suiteID := ctx.Args().Get(1)

	lib, sink, err := a.openLibrary(ctx, false)
	if err != nil {
		return err
	}
	defer lib.Close()
	defer sink.Close()

	if suiteID != "" {
		res, err := lib.RunSuite(ctx.Context, exampleID, suiteID)
		if err != nil {
			return err
		}
		printSuiteResult(res)
		if !res.Passed() {
			return cli.Exit("", 1)
		}
		return nil
	}

	report, err := lib.RunAll(ctx.Context, exampleID)
	if err != nil {
		return err
	}
	printReport(report)
	if !report.Ok() {
		return cli.Exit("", 1)
	}
	return nil
}

func printReport(report model.RunReport) {
	fmt.Printf("\n=== Run %s (%s) ===\n", shortID(report.ID), report.ExampleID)

	for _, res := range report.Suites {
		printSuiteResult(res)
	}

	fmt.Printf("\nTotal: %d passed, %d failed, %d errored, %d skipped in %s\n",
		report.Passed, report.Failed, report.Errored, report.Skipped, report.Duration.Round(time.Millisecond))
}

func printSuiteResult(res model.SuiteResult) {
	status := "✓"
	if !res.Passed() {
		status = "✗"
	}
	fmt.Printf("\n%s %s [%s]\n", status, res.Name, res.Duration.Round(time.Millisecond))

	if res.Err != "" {
		fmt.Printf("   suite error: %s\n", res.Err)
		return
	}
	if res.SetupError != "" {
		fmt.Printf("   setup failed: %s\n", res.SetupError)
	}
	for _, c := range res.Cases {
		mark := "✓"
		switch c.Status {
		case model.CaseFailed:
			mark = "✗"
		case model.CaseErrored:
			mark = "!"
		case model.CaseSkipped:
			mark = "-"
		}
		fmt.Printf("   %s %s [%s]\n", mark, c.Name, c.Duration.Round(time.Millisecond))
		if c.Message != "" {
			fmt.Printf("     %s\n", c.Message)
		}
	}
	if res.TeardownError != "" {
		fmt.Printf("   teardown failed: %s\n", res.TeardownError)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
